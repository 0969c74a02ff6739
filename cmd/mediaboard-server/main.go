// Package main is the entry point for the mediaboard server: a
// content-addressed media board backend serving uploads, thumbnails
// and replacements over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/auth"
	"github.com/prn-tf/mediaboard/internal/cache/memory"
	cacheredis "github.com/prn-tf/mediaboard/internal/cache/redis"
	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/handler"
	"github.com/prn-tf/mediaboard/internal/lock"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/repository/factory"
	"github.com/prn-tf/mediaboard/internal/service"
	"github.com/prn-tf/mediaboard/internal/storage"
	"github.com/prn-tf/mediaboard/internal/thumbnail"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// recordCacheTTL bounds how long a record read stays cached; every
// mutation invalidates eagerly, so this only caps staleness after a
// missed invalidation.
const recordCacheTTL = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting mediaboard server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbres, err := factory.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbres.Database.Close()

	var (
		repo   repository.MediaRepository = dbres.Repos.Media
		locker lock.Locker
	)
	if cfg.Redis.Enabled {
		client, err := cacheredis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		repo = repository.NewCachedMediaRepository(repo, cacheredis.NewCache(client), recordCacheTTL, logger)
		locker = lock.NewRedisLocker(cacheredis.NewLocker(client))
	} else {
		mem := memory.NewCache()
		defer mem.Stop()
		repo = repository.NewCachedMediaRepository(repo, mem, recordCacheTTL, logger)
		locker = lock.NewMemoryLocker()
	}

	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("init content store: %w", err)
	}

	engine, err := thumbnail.New(thumbnailConfig(cfg.Thumbnail), logger)
	if err != nil {
		return fmt.Errorf("init thumbnail engine: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	bus := events.NewBus(logger)
	bus.Subscribe(func(ctx context.Context, ev domain.Event) error {
		logger.Debug().Str("event", ev.EventName()).Msg("lifecycle event")
		return nil
	})

	thumbs := service.NewThumbService(store, engine, cfg.Thumbnail.Async, m, logger)
	ingest := service.NewIngestService(repo, store, thumbs, bus, m, cfg.Upload, logger)
	archive := service.NewArchiveService(ingest, m, logger)
	replace := service.NewReplaceService(repo, store, thumbs, locker, bus, m, cfg.Upload, logger)
	deletes := service.NewDeleteService(repo, store, locker, bus, m, logger)

	sweep := service.NewSweepService(repo, store, locker, m, cfg.Sweep, logger)
	if cfg.Sweep.Enabled {
		sweep.Start()
		defer sweep.Stop()
	}

	router := handler.NewRouter(handler.Deps{
		Files:    handler.NewFileHandler(repo, store, thumbs, bus, m, cfg.Serve, cfg.Thumbnail.Mime, logger),
		Media:    handler.NewMediaHandler(ingest, archive, replace, deletes, auth.NewAuthorizer(cfg.Auth), cfg.Serve, logger),
		DB:       dbres.Database,
		Metrics:  m,
		Registry: registry,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newStore(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.ContentStore, error) {
	paths := storage.DefaultPathConfig(cfg.DataDir)
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			TempDir:         cfg.TempDir,
		}, paths, logger)
	default:
		return storage.NewFilesystem(paths, cfg.TempDir, logger)
	}
}

func thumbnailConfig(cfg config.ThumbnailConfig) thumbnail.Config {
	return thumbnail.Config{
		Engine:       cfg.Engine,
		Mime:         cfg.Mime,
		MaxWidth:     cfg.MaxWidth,
		MaxHeight:    cfg.MaxHeight,
		ScalePercent: cfg.ScalePercent,
		Fit:          cfg.Fit,
		Quality:      cfg.Quality,
		AlphaColor:   cfg.AlphaColor,
		MagickPath:   cfg.MagickPath,
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	var out = os.Stderr
	logger := zerolog.New(out)
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
