// Package main is the mediaboard database migration tool. It applies
// the schema for the configured backend without starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/repository/factory"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "version":
		fmt.Printf("mediaboard migration tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		if err := runUp(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("schema is up to date")

	case "check":
		if err := runCheck(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("database is reachable")

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// runUp opens the configured backend, which applies any pending schema
// changes as part of the connection handshake.
func runUp(configPath string) error {
	cfg := config.MustLoad(configPath)
	logger := zerolog.New(os.Stderr).Level(zerolog.InfoLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := factory.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	return res.Database.Close()
}

func runCheck(configPath string) error {
	cfg := config.MustLoad(configPath)
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := factory.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer res.Database.Close()
	return res.Database.Health(ctx)
}

func printUsage() {
	fmt.Println(`mediaboard migration tool

Usage:
  mediaboard-migrate [-config path] <command>

Commands:
  up        Apply pending schema migrations
  check     Verify database connectivity and schema health
  version   Print version information
  help      Show this help message

Examples:
  mediaboard-migrate -config config.yaml up
  mediaboard-migrate -config config.yaml check`)
}
