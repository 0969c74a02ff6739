package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/mime"
	"github.com/prn-tf/mediaboard/internal/storage"
	"github.com/prn-tf/mediaboard/internal/thumbnail"
)

// ThumbService generates thumbnails into the content store.
// A record whose source cannot be decoded still gets a thumbnail: the
// generic placeholder, so serving never has to special-case the slot.
type ThumbService struct {
	store   storage.ContentStore
	engine  thumbnail.Engine
	metrics *metrics.Metrics
	async   bool
	logger  zerolog.Logger
}

// asyncThumbTimeout bounds a background render once the originating
// request has already been answered.
const asyncThumbTimeout = 2 * time.Minute

// NewThumbService creates a new ThumbService. With async enabled,
// Generate returns immediately and renders on a background goroutine;
// an empty slot in the meantime heals through Ensure at serve time.
func NewThumbService(
	store storage.ContentStore,
	engine thumbnail.Engine,
	async bool,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ThumbService {
	return &ThumbService{
		store:   store,
		engine:  engine,
		metrics: m,
		async:   async,
		logger:  logger.With().Str("service", "thumbnail").Logger(),
	}
}

// Generate builds the thumbnail for a record and writes it to the store,
// overwriting any previous one. Non-image sources and undecodable images
// fall back to the placeholder.
func (s *ThumbService) Generate(ctx context.Context, m *domain.Media) error {
	if s.async {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), asyncThumbTimeout)
			defer cancel()
			if err := s.generate(ctx, m); err != nil {
				s.logger.Warn().Err(err).Int64("id", m.ID).Msg("background thumbnail generation failed")
			}
		}()
		return nil
	}
	return s.generate(ctx, m)
}

func (s *ThumbService) generate(ctx context.Context, m *domain.Media) error {
	data, outcome, err := s.render(ctx, m)
	if err != nil {
		return err
	}

	if err := s.store.PutThumb(ctx, m.Hash, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}

	s.metrics.ThumbnailsTotal.WithLabelValues(outcome).Inc()
	s.logger.Debug().
		Int64("id", m.ID).
		Str("hash", m.Hash).
		Str("outcome", outcome).
		Msg("thumbnail written")
	return nil
}

// Ensure generates the thumbnail only if the slot is empty. Used at
// serve time so records migrated from older deployments heal lazily.
func (s *ThumbService) Ensure(ctx context.Context, m *domain.Media) error {
	exists, err := s.store.Exists(ctx, m.Hash, domain.VariantThumb)
	if err != nil {
		return fmt.Errorf("failed to check thumbnail: %w", err)
	}
	if exists {
		return nil
	}
	// Synchronous even in async mode: the caller is about to serve the
	// slot and needs it filled.
	return s.generate(ctx, m)
}

func (s *ThumbService) render(ctx context.Context, m *domain.Media) (data []byte, outcome string, err error) {
	if mime.IsImage(m.Mime) {
		src, err := s.store.Open(ctx, m.Hash, domain.VariantCanonical)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open source content: %w", err)
		}
		defer src.Close()

		data, err = s.engine.Generate(ctx, src, m.Mime)
		if err == nil {
			return data, "ok", nil
		}
		if !errors.Is(err, domain.ErrDecode) {
			return nil, "", fmt.Errorf("thumbnail generation failed: %w", err)
		}
		s.logger.Warn().
			Int64("id", m.ID).
			Str("mime", m.Mime).
			Msg("source undecodable, using placeholder thumbnail")
	}

	data, err = s.engine.RenderPlaceholder(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render placeholder: %w", err)
	}
	return data, "placeholder", nil
}
