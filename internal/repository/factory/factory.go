// Package factory opens the configured database backend and builds the
// repositories on top of it. It lives outside package repository so the
// driver packages can depend on the repository interfaces without a cycle.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/repository/postgres"
	"github.com/prn-tf/mediaboard/internal/repository/sqlite"
)

// Result contains the created repositories and database handle.
type Result struct {
	Repos    *repository.Repositories
	Database repository.DatabaseHealth
}

// Open connects to the configured database, runs migrations, and builds
// the repositories.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Result, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.ConfigFrom(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate SQLite: %w", err)
		}
		return &Result{
			Repos:    &repository.Repositories{Media: sqlite.NewMediaRepository(db)},
			Database: db,
		}, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
		}
		return &Result{
			Repos:    &repository.Repositories{Media: postgres.NewMediaRepository(db)},
			Database: db,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}
