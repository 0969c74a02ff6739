package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/lock"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/storage"
)

// DeleteService removes records together with their stored files.
type DeleteService struct {
	mediaRepo repository.MediaRepository
	store     storage.ContentStore
	locker    lock.Locker
	bus       *events.Bus
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewDeleteService creates a new DeleteService.
func NewDeleteService(
	mediaRepo repository.MediaRepository,
	store storage.ContentStore,
	locker lock.Locker,
	bus *events.Bus,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *DeleteService {
	return &DeleteService{
		mediaRepo: mediaRepo,
		store:     store,
		locker:    locker,
		bus:       bus,
		metrics:   m,
		logger:    logger.With().Str("service", "delete").Logger(),
	}
}

// Delete removes a record and both its stored variants. The row goes
// first; once no record references the hash, file removal can be
// retried harmlessly and the sweep covers anything left behind.
func (s *DeleteService) Delete(ctx context.Context, id int64) (*domain.Media, error) {
	lockKey := lock.Keys.MediaMutate(id)
	acquired, err := s.locker.AcquireWithRetry(ctx, lockKey, mutateLockTTL, mutateLockRetries, mutateLockDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !acquired {
		return nil, ErrBusy
	}
	defer func() {
		if _, err := s.locker.Release(ctx, lockKey); err != nil {
			s.logger.Warn().Err(err).Int64("id", id).Msg("failed to release mutate lock")
		}
	}()

	m, err := s.mediaRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrMediaNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.mediaRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrMediaNotFound
		}
		s.logger.Error().Err(err).Int64("id", id).Msg("failed to delete record")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.store.Remove(ctx, m.Hash); err != nil {
		s.logger.Warn().Err(err).Str("hash", m.Hash).Msg("failed to remove content files")
	}

	s.metrics.DeletionsTotal.Inc()
	s.logger.Info().
		Int64("id", m.ID).
		Str("hash", m.Hash).
		Msg("media deleted")

	s.bus.Publish(ctx, domain.DeletionEvent{Media: m})

	return m, nil
}
