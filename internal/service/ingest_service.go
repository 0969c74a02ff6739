package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/mime"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/storage"
)

// sniffLen is how many leading bytes content-type detection reads.
const sniffLen = 3072

// IngestService handles single-file ingestion: store the bytes, detect
// the type, create the record, derive the thumbnail.
type IngestService struct {
	mediaRepo repository.MediaRepository
	store     storage.ContentStore
	thumbs    *ThumbService
	policy    *mime.Policy
	bus       *events.Bus
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       config.UploadConfig
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	mediaRepo repository.MediaRepository,
	store storage.ContentStore,
	thumbs *ThumbService,
	bus *events.Bus,
	m *metrics.Metrics,
	cfg config.UploadConfig,
	logger zerolog.Logger,
) *IngestService {
	return &IngestService{
		mediaRepo: mediaRepo,
		store:     store,
		thumbs:    thumbs,
		policy:    mime.NewPolicy(cfg.AllowedMimes),
		bus:       bus,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With().Str("service", "ingest").Logger(),
	}
}

// IngestInput contains the data needed to ingest one file.
type IngestInput struct {
	Body     io.Reader
	Filename string
	Uploader string
	Source   string
	Tags     []string
}

// IngestOutput contains the result of ingesting one file.
type IngestOutput struct {
	Media *domain.Media

	// Created is false when the bytes matched an existing record and the
	// merge collision policy attached the tags to it instead.
	Created bool

	// TagsAdded is the number of tags newly attached during a merge.
	TagsAdded int
}

// Ingest stores the content and creates (or merges into) a record.
//
// The bytes land in the content store first; identity questions are
// settled afterwards against the hash the store computed. A colliding
// upload therefore never corrupts existing content, because identical
// bytes map to the identical path.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestOutput, error) {
	body := input.Body
	if s.cfg.MaxSize > 0 {
		body = newCapReader(body, s.cfg.MaxSize)
	}

	hash, size, err := s.store.Put(ctx, body)
	if err != nil {
		if errors.Is(err, domain.ErrUploadTooLarge) {
			s.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			return nil, domain.ErrUploadTooLarge
		}
		s.logger.Error().Err(err).Str("filename", input.Filename).Msg("failed to store content")
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	existing, err := s.mediaRepo.GetByHash(ctx, hash)
	if err == nil {
		return s.resolveCollision(ctx, existing, input)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error().Err(err).Str("hash", hash).Msg("failed to check for duplicate")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	detectedMime, ext, err := s.detectStored(ctx, hash)
	if err != nil {
		return nil, err
	}

	if !s.policy.Allows(detectedMime) {
		// Nothing references the hash yet, so the bytes can go.
		if err := s.store.Remove(ctx, hash); err != nil {
			s.logger.Warn().Err(err).Str("hash", hash).Msg("failed to remove rejected content")
		}
		s.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, detectedMime)
	}

	m := domain.NewMedia(hash, detectedMime, ext, input.Filename, input.Uploader, size)
	m.Tags = cleanTags(input.Tags)
	m.SetSource(input.Source)

	if err := s.mediaRepo.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicateHash) {
			// Lost the insert race; the winner's record is authoritative.
			winner, gerr := s.mediaRepo.GetByHash(ctx, hash)
			if gerr != nil {
				return nil, fmt.Errorf("%w: %v", ErrInternalError, gerr)
			}
			return s.resolveCollision(ctx, winner, input)
		}
		s.logger.Error().Err(err).Str("hash", hash).Msg("failed to create record")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.bus.Publish(ctx, domain.ThumbnailRequestedEvent{Media: m})
	if err := s.thumbs.Generate(ctx, m); err != nil {
		// The record is valid without a thumbnail; the slot heals on the
		// first serve request.
		s.logger.Warn().Err(err).Int64("id", m.ID).Msg("thumbnail generation failed")
	}

	s.metrics.UploadsTotal.WithLabelValues("created").Inc()
	s.metrics.UploadBytes.Add(float64(size))

	s.logger.Info().
		Int64("id", m.ID).
		Str("hash", m.Hash).
		Str("mime", m.Mime).
		Int64("size", m.Size).
		Str("uploader", m.Uploader).
		Msg("media ingested")

	s.bus.Publish(ctx, domain.AdditionEvent{Media: m})

	return &IngestOutput{Media: m, Created: true}, nil
}

// resolveCollision applies the configured collision policy when the
// ingested bytes already belong to a record.
func (s *IngestService) resolveCollision(ctx context.Context, existing *domain.Media, input IngestInput) (*IngestOutput, error) {
	s.metrics.DuplicatesTotal.Inc()

	if s.cfg.CollisionPolicy != config.CollisionMerge {
		s.metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
		return nil, &domain.DuplicateContentError{ExistingID: existing.ID, Hash: existing.Hash}
	}

	added, err := s.mediaRepo.AddTags(ctx, existing.ID, cleanTags(input.Tags))
	if err != nil {
		s.logger.Error().Err(err).Int64("id", existing.ID).Msg("failed to merge tags")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	merged, err := s.mediaRepo.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
	s.logger.Info().
		Int64("id", existing.ID).
		Int("tags_added", added).
		Msg("duplicate upload merged into existing record")

	return &IngestOutput{Media: merged, Created: false, TagsAdded: added}, nil
}

// detectStored sniffs the content type of already-stored bytes.
func (s *IngestService) detectStored(ctx context.Context, hash string) (string, string, error) {
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

// cleanTags drops empty tags and exact duplicates, preserving order.
func cleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// capReader enforces the upload size cap while streaming. It fails with
// domain.ErrUploadTooLarge as soon as the source exceeds the limit, so
// oversized uploads never finish writing.
type capReader struct {
	r         io.Reader
	remaining int64
}

func newCapReader(r io.Reader, max int64) *capReader {
	return &capReader{r: r, remaining: max}
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		// Distinguish "exactly at the limit" from "over it".
		var probe [1]byte
		n, err := c.r.Read(probe[:])
		if n > 0 {
			return 0, domain.ErrUploadTooLarge
		}
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}
