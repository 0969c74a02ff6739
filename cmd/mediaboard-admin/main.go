// Package main is the mediaboard admin CLI: record deletion, orphan
// sweeps and admin token hashing, run against the same configuration
// as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/auth"
	cacheredis "github.com/prn-tf/mediaboard/internal/cache/redis"
	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/lock"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/pkg/crypto"
	"github.com/prn-tf/mediaboard/internal/repository/factory"
	"github.com/prn-tf/mediaboard/internal/service"
	"github.com/prn-tf/mediaboard/internal/storage"
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
		fmt.Printf("mediaboard admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "hash-token":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mediaboard-admin hash-token <token>")
			os.Exit(1)
		}
		hash, err := auth.HashToken(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)

	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mediaboard-admin delete <id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "invalid id: %s\n", args[1])
			os.Exit(1)
		}
		if err := runDelete(*configPath, id); err != nil {
			fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
			os.Exit(1)
		}

	case "verify":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mediaboard-admin verify <id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "invalid id: %s\n", args[1])
			os.Exit(1)
		}
		if err := runVerify(*configPath, id); err != nil {
			fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
			os.Exit(1)
		}

	case "sweep":
		fs := flag.NewFlagSet("sweep", flag.ExitOnError)
		dryRun := fs.Bool("dry-run", false, "log orphans without deleting")
		_ = fs.Parse(args[1:])
		if err := runSweep(*configPath, *dryRun); err != nil {
			fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func openStack(configPath string) (*config.Config, *factory.Result, storage.ContentStore, lock.Locker, func(), error) {
	cfg := config.MustLoad(configPath)
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	ctx := context.Background()

	dbres, err := factory.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	cleanup := func() { _ = dbres.Database.Close() }

	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, nil, fmt.Errorf("init content store: %w", err)
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Redis.Enabled {
		client, err := cacheredis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedisLocker(cacheredis.NewLocker(client))
		prev := cleanup
		cleanup = func() { _ = client.Close(); prev() }
	}

	return cfg, dbres, store, locker, cleanup, nil
}

func newStore(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.ContentStore, error) {
	paths := storage.DefaultPathConfig(cfg.DataDir)
	if cfg.Backend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			TempDir:         cfg.TempDir,
		}, paths, logger)
	}
	return storage.NewFilesystem(paths, cfg.TempDir, logger)
}

func runDelete(configPath string, id int64) error {
	_, dbres, store, locker, cleanup, err := openStack(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	m := metrics.New(prometheus.NewRegistry())
	bus := events.NewBus(logger)
	deletes := service.NewDeleteService(dbres.Repos.Media, store, locker, bus, m, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := deletes.Delete(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("deleted record %d (hash %s)\n", deleted.ID, deleted.Hash)
	return nil
}

func runVerify(configPath string, id int64) error {
	_, dbres, store, _, cleanup, err := openStack(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m, err := dbres.Repos.Media.GetByID(ctx, id)
	if err != nil {
		return err
	}

	src, err := store.Open(ctx, m.Hash, domain.VariantCanonical)
	if err != nil {
		return fmt.Errorf("open stored content: %w", err)
	}
	defer src.Close()

	sum, size, err := crypto.ComputeStreamSHA256(src)
	if err != nil {
		return err
	}
	if sum != m.Hash {
		return fmt.Errorf("record %d is corrupt: stored content hashes to %s, record says %s", id, sum, m.Hash)
	}
	if size != m.Size {
		return fmt.Errorf("record %d size mismatch: stored content is %d bytes, record says %d", id, size, m.Size)
	}
	fmt.Printf("record %d verified: %d bytes, hash %s\n", id, size, m.Hash)
	return nil
}

func runSweep(configPath string, dryRun bool) error {
	cfg, dbres, store, locker, cleanup, err := openStack(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	sweepCfg := cfg.Sweep
	if dryRun {
		sweepCfg.DryRun = true
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.InfoLevel)
	m := metrics.New(prometheus.NewRegistry())
	sweep := service.NewSweepService(dbres.Repos.Media, store, locker, m, sweepCfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	res := sweep.RunOnce(ctx)
	fmt.Printf("sweep finished: %d scanned, %d orphans, %d removed, %d bytes freed, dry_run=%v\n",
		res.Scanned, res.Orphans, res.Removed, res.BytesFreed, sweepCfg.DryRun)
	return nil
}

func printUsage() {
	fmt.Println(`mediaboard admin CLI

Usage:
  mediaboard-admin [-config path] <command> [arguments]

Commands:
  delete <id>       Delete a record and its stored files
  verify <id>       Re-hash a record's stored content against the database
  sweep [--dry-run] Remove unreferenced files from the content store
  hash-token <tok>  Print the bcrypt hash for an admin token
  version           Print version information
  help              Show this help message

Examples:
  mediaboard-admin -config config.yaml delete 42
  mediaboard-admin -config config.yaml sweep --dry-run
  mediaboard-admin hash-token s3cret`)
}
