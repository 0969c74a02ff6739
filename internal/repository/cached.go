package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
)

// cachedMediaRepository decorates a MediaRepository with read-through
// caching of by-ID lookups. Every file request resolves an ID to a
// record, so that path gets the cache; everything else passes through
// with invalidation.
type cachedMediaRepository struct {
	inner  MediaRepository
	cache  Cache
	ttl    time.Duration
	keys   CacheKey
	logger zerolog.Logger
}

// NewCachedMediaRepository wraps a MediaRepository with a cache.
// Cache failures degrade to the inner repository, never to an error.
func NewCachedMediaRepository(inner MediaRepository, cache Cache, ttl time.Duration, logger zerolog.Logger) MediaRepository {
	return &cachedMediaRepository{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "media_cache").Logger(),
	}
}

func (r *cachedMediaRepository) Create(ctx context.Context, m *domain.Media) error {
	return r.inner.Create(ctx, m)
}

func (r *cachedMediaRepository) GetByID(ctx context.Context, id int64) (*domain.Media, error) {
	key := r.keys.MediaByID(id)

	if data, err := r.cache.Get(ctx, key); err == nil {
		m := &domain.Media{}
		if err := json.Unmarshal(data, m); err == nil {
			return m, nil
		}
		// Corrupt entry, drop it and fall through.
		_ = r.cache.Delete(ctx, key)
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn().Err(err).Msg("cache read failed")
	}

	m, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(m); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			r.logger.Warn().Err(err).Msg("cache write failed")
		}
	}
	return m, nil
}

func (r *cachedMediaRepository) GetByHash(ctx context.Context, hash string) (*domain.Media, error) {
	return r.inner.GetByHash(ctx, hash)
}

func (r *cachedMediaRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	return r.inner.ExistsByHash(ctx, hash)
}

func (r *cachedMediaRepository) Update(ctx context.Context, m *domain.Media) error {
	if err := r.inner.Update(ctx, m); err != nil {
		return err
	}
	r.invalidate(ctx, m.ID)
	return nil
}

func (r *cachedMediaRepository) AddTags(ctx context.Context, id int64, tags []string) (int, error) {
	added, err := r.inner.AddTags(ctx, id, tags)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		r.invalidate(ctx, id)
	}
	return added, nil
}

func (r *cachedMediaRepository) Delete(ctx context.Context, id int64) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *cachedMediaRepository) List(ctx context.Context, opts ListOptions) ([]*domain.Media, error) {
	return r.inner.List(ctx, opts)
}

func (r *cachedMediaRepository) Count(ctx context.Context) (int64, error) {
	return r.inner.Count(ctx)
}

func (r *cachedMediaRepository) ListHashes(ctx context.Context) (map[string]struct{}, error) {
	return r.inner.ListHashes(ctx)
}

func (r *cachedMediaRepository) invalidate(ctx context.Context, id int64) {
	if err := r.cache.Delete(ctx, r.keys.MediaByID(id)); err != nil {
		r.logger.Warn().Err(err).Int64("id", id).Msg("cache invalidation failed")
	}
}
