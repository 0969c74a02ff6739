package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/lock"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/mime"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/storage"
)

const (
	mutateLockTTL     = 30 * time.Second
	mutateLockRetries = 3
	mutateLockDelay   = 100 * time.Millisecond
)

// ReplaceService swaps the file behind an existing record while the
// record keeps its identity: ID, tags, uploader and posted time survive.
type ReplaceService struct {
	mediaRepo repository.MediaRepository
	store     storage.ContentStore
	thumbs    *ThumbService
	policy    *mime.Policy
	locker    lock.Locker
	bus       *events.Bus
	metrics   *metrics.Metrics
	client    *http.Client
	maxSize   int64
	logger    zerolog.Logger
}

// NewReplaceService creates a new ReplaceService.
func NewReplaceService(
	mediaRepo repository.MediaRepository,
	store storage.ContentStore,
	thumbs *ThumbService,
	locker lock.Locker,
	bus *events.Bus,
	m *metrics.Metrics,
	cfg config.UploadConfig,
	logger zerolog.Logger,
) *ReplaceService {
	return &ReplaceService{
		mediaRepo: mediaRepo,
		store:     store,
		thumbs:    thumbs,
		policy:    mime.NewPolicy(cfg.AllowedMimes),
		locker:    locker,
		bus:       bus,
		metrics:   m,
		client:    &http.Client{Timeout: 2 * time.Minute},
		maxSize:   cfg.MaxSize,
		logger:    logger.With().Str("service", "replace").Logger(),
	}
}

// ReplaceInput contains the data needed to replace a record's content.
type ReplaceInput struct {
	ID       int64
	Body     io.Reader
	Filename string

	// Source, when non-empty, overwrites the recorded provenance.
	// Empty preserves the existing one.
	Source string
}

// ReplaceOutput contains the result of a replacement.
type ReplaceOutput struct {
	Media *domain.Media
}

// Replace swaps the content behind an existing record.
//
// The new bytes are fully persisted before the record row mutates, and
// the old bytes are only removed after it has. A crash at any point
// leaves either the old or the new state serveable, plus at worst one
// unreferenced file for the sweep.
func (s *ReplaceService) Replace(ctx context.Context, input ReplaceInput) (*ReplaceOutput, error) {
	lockKey := lock.Keys.MediaMutate(input.ID)
	acquired, err := s.locker.AcquireWithRetry(ctx, lockKey, mutateLockTTL, mutateLockRetries, mutateLockDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !acquired {
		return nil, ErrBusy
	}
	defer func() {
		if _, err := s.locker.Release(ctx, lockKey); err != nil {
			s.logger.Warn().Err(err).Int64("id", input.ID).Msg("failed to release mutate lock")
		}
	}()

	m, err := s.mediaRepo.GetByID(ctx, input.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrMediaNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	body := input.Body
	if s.maxSize > 0 {
		body = newCapReader(body, s.maxSize)
	}

	hash, size, err := s.store.Put(ctx, body)
	if err != nil {
		if errors.Is(err, domain.ErrUploadTooLarge) {
			return nil, domain.ErrUploadTooLarge
		}
		s.logger.Error().Err(err).Int64("id", input.ID).Msg("failed to store replacement content")
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if hash == m.Hash {
		// Same bytes; only the display metadata can change.
		return s.updateMetadata(ctx, m, input)
	}

	// A different record owning the new hash blocks the swap: hashes stay
	// unique across active records.
	if other, err := s.mediaRepo.GetByHash(ctx, hash); err == nil && other.ID != m.ID {
		return nil, &domain.DuplicateContentError{ExistingID: other.ID, Hash: hash}
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	detectedMime, ext, err := s.detectStored(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !s.policy.Allows(detectedMime) {
		if err := s.store.Remove(ctx, hash); err != nil {
			s.logger.Warn().Err(err).Str("hash", hash).Msg("failed to remove rejected content")
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, detectedMime)
	}

	original := *m
	oldHash := m.Hash

	m.Hash = hash
	m.Size = size
	m.Mime = detectedMime
	m.Ext = ext
	if input.Filename != "" {
		m.Filename = input.Filename
	}
	if input.Source != "" {
		m.SetSource(input.Source)
	}

	if err := s.mediaRepo.Update(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicateHash) {
			winner, gerr := s.mediaRepo.GetByHash(ctx, hash)
			if gerr != nil {
				return nil, fmt.Errorf("%w: %v", ErrInternalError, gerr)
			}
			return nil, &domain.DuplicateContentError{ExistingID: winner.ID, Hash: hash}
		}
		s.logger.Error().Err(err).Int64("id", m.ID).Msg("failed to update record")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	// The old bytes are unreferenced now. Removal failures are not fatal:
	// Remove is retry-safe and the sweep picks up leftovers.
	if err := s.store.Remove(ctx, oldHash); err != nil {
		s.logger.Warn().Err(err).Str("hash", oldHash).Msg("failed to remove replaced content")
	}

	s.bus.Publish(ctx, domain.ThumbnailRequestedEvent{Media: m})
	if err := s.thumbs.Generate(ctx, m); err != nil {
		s.logger.Warn().Err(err).Int64("id", m.ID).Msg("thumbnail regeneration failed")
	}

	s.metrics.ReplacementsTotal.Inc()
	s.logger.Info().
		Int64("id", m.ID).
		Str("old_hash", oldHash).
		Str("new_hash", m.Hash).
		Str("mime", m.Mime).
		Msg("media content replaced")

	s.bus.Publish(ctx, domain.ReplacedEvent{Original: &original, Replacement: m})

	return &ReplaceOutput{Media: m}, nil
}

// ReplaceFromURLInput contains the data needed to replace content from a
// remote URL.
type ReplaceFromURLInput struct {
	ID  int64
	URL string
}

// ReplaceFromURL fetches a remote file and uses it as the replacement
// content. The URL is recorded as the new provenance.
func (s *ReplaceService) ReplaceFromURL(ctx context.Context, input ReplaceFromURLInput) (*ReplaceOutput, error) {
	u, err := url.Parse(input.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return nil, ErrInvalidURL
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch returned %d", ErrInvalidURL, resp.StatusCode)
	}

	return s.Replace(ctx, ReplaceInput{
		ID:       input.ID,
		Body:     resp.Body,
		Filename: path.Base(u.Path),
		Source:   input.URL,
	})
}

// updateMetadata handles the identical-bytes case of Replace.
func (s *ReplaceService) updateMetadata(ctx context.Context, m *domain.Media, input ReplaceInput) (*ReplaceOutput, error) {
	changed := false
	if input.Filename != "" && input.Filename != m.Filename {
		m.Filename = input.Filename
		changed = true
	}
	if input.Source != "" && input.Source != m.GetSource() {
		m.SetSource(input.Source)
		changed = true
	}
	if !changed {
		return &ReplaceOutput{Media: m}, nil
	}

	if err := s.mediaRepo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return &ReplaceOutput{Media: m}, nil
}

// detectStored sniffs the content type of already-stored bytes.
func (s *ReplaceService) detectStored(ctx context.Context, hash string) (string, string, error) {
	rc, err := s.store.Open(ctx, hash, domain.VariantCanonical)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	detectedMime, ext := mime.Detect(head[:n])
	return detectedMime, ext, nil
}
