package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/lock"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/storage"
)

// SweepService removes stored files no record references anymore.
// Replacement and deletion already clean up after themselves; the sweep
// exists for what crashes and lost races leave behind.
type SweepService struct {
	mediaRepo repository.MediaRepository
	store     storage.ContentStore
	locker    lock.Locker
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       config.SweepConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSweepService creates a new SweepService.
func NewSweepService(
	mediaRepo repository.MediaRepository,
	store storage.ContentStore,
	locker lock.Locker,
	m *metrics.Metrics,
	cfg config.SweepConfig,
	logger zerolog.Logger,
) *SweepService {
	return &SweepService{
		mediaRepo: mediaRepo,
		store:     store,
		locker:    locker,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With().Str("service", "sweep").Logger(),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the periodic sweep scheduler.
func (s *SweepService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("grace_period", s.cfg.GracePeriod).
		Int("batch_size", s.cfg.BatchSize).
		Bool("dry_run", s.cfg.DryRun).
		Msg("starting orphan sweep scheduler")

	go s.runLoop()
}

// Stop stops the sweep scheduler and waits for a running sweep to end.
func (s *SweepService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.doneChan

	s.logger.Info().Msg("orphan sweep scheduler stopped")
}

func (s *SweepService) runLoop() {
	defer close(s.doneChan)

	// Run immediately on start.
	s.RunOnce(context.Background())

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// SweepResult contains the result of one sweep run.
type SweepResult struct {
	// Scanned is the number of stored files visited.
	Scanned int

	// Orphans is the number of unreferenced files found past the grace
	// period.
	Orphans int

	// Removed is the number of files actually deleted.
	Removed int

	// BytesFreed is the total size of removed canonical files.
	BytesFreed int64

	// Errors is the number of failures during the run.
	Errors int

	// Duration is how long the run took.
	Duration time.Duration
}

// RunOnce executes a single sweep. Callable manually (admin CLI) or by
// the scheduler.
func (s *SweepService) RunOnce(ctx context.Context) SweepResult {
	start := time.Now()
	result := SweepResult{}

	lockKey := lock.Keys.Sweep()
	lockTTL := s.cfg.Interval / 2
	if lockTTL < 5*time.Minute {
		lockTTL = 5 * time.Minute
	}

	acquired, err := s.locker.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to acquire sweep lock")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}
	if !acquired {
		s.logger.Debug().Msg("sweep lock held by another instance, skipping run")
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if _, err := s.locker.Release(ctx, lockKey); err != nil {
			s.logger.Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	referenced, err := s.mediaRepo.ListHashes(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list referenced hashes")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}

	cutoff := time.Now().Add(-s.cfg.GracePeriod)

	err = s.store.Walk(ctx, func(hash string) error {
		result.Scanned++

		if _, ok := referenced[hash]; ok {
			return nil
		}

		info, err := s.store.Stat(ctx, hash, domain.VariantCanonical)
		if err != nil {
			// Already gone, or a thumb-only leftover; Remove below would
			// handle the latter, but without a stat there is no age check.
			return nil
		}
		if info.ModTime.After(cutoff) {
			// Too fresh; might be an ingest that has not created its
			// record yet.
			return nil
		}

		// The referenced set is a snapshot; a record ingested while the
		// walk runs is not in it. Recheck against the live table before
		// touching the file.
		exists, err := s.mediaRepo.ExistsByHash(ctx, hash)
		if err != nil {
			s.logger.Error().Err(err).Str("hash", hash).Msg("failed to recheck hash reference")
			result.Errors++
			return nil
		}
		if exists {
			return nil
		}

		result.Orphans++

		if s.cfg.DryRun {
			s.logger.Info().
				Str("hash", hash).
				Int64("size", info.Size).
				Msg("[dry run] would remove orphan file")
			return nil
		}

		if err := s.store.Remove(ctx, hash); err != nil {
			s.logger.Error().Err(err).Str("hash", hash).Msg("failed to remove orphan file")
			result.Errors++
			return nil
		}

		result.Removed++
		result.BytesFreed += info.Size

		s.logger.Debug().
			Str("hash", hash).
			Int64("size", info.Size).
			Msg("removed orphan file")

		if s.cfg.BatchSize > 0 && result.Removed >= s.cfg.BatchSize {
			return errSweepBatchDone
		}
		return nil
	})
	if err != nil && !errors.Is(err, errSweepBatchDone) {
		s.logger.Error().Err(err).Msg("store walk failed")
		result.Errors++
	}

	result.Duration = time.Since(start)
	s.metrics.RecordSweep(result.Duration.Seconds(), result.Orphans, result.BytesFreed)

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("orphans", result.Orphans).
		Int("removed", result.Removed).
		Int64("bytes_freed", result.BytesFreed).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("orphan sweep completed")

	return result
}

// errSweepBatchDone stops the walk once the batch budget is spent.
var errSweepBatchDone = errors.New("sweep batch budget spent")
