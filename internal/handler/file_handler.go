package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/service"
	"github.com/prn-tf/mediaboard/internal/storage"
)

// farFutureExpires is the Expires value advertised when no cache TTL is
// configured. Content is addressed by hash and never mutates in place,
// so an effectively unbounded lifetime is safe.
const farFutureExpires = "Fri, 02 Sep 2101 12:42:42 GMT"

// FileHandler serves canonical files and thumbnails.
type FileHandler struct {
	repo      repository.MediaRepository
	store     storage.ContentStore
	thumbs    *service.ThumbService
	bus       *events.Bus
	metrics   *metrics.Metrics
	serve     config.ServeConfig
	thumbMime string
	logger    zerolog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(
	repo repository.MediaRepository,
	store storage.ContentStore,
	thumbs *service.ThumbService,
	bus *events.Bus,
	m *metrics.Metrics,
	serve config.ServeConfig,
	thumbMime string,
	logger zerolog.Logger,
) *FileHandler {
	return &FileHandler{
		repo:      repo,
		store:     store,
		thumbs:    thumbs,
		bus:       bus,
		metrics:   m,
		serve:     serve,
		thumbMime: thumbMime,
		logger:    logger.With().Str("component", "file_handler").Logger(),
	}
}

// RegisterRoutes mounts the serving routes.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/image/{id}", h.handleImage)
	r.Get("/thumb/{id}", h.handleThumb)
}

func (h *FileHandler) handleImage(w http.ResponseWriter, r *http.Request) {
	h.serveVariant(w, r, domain.VariantCanonical)
}

func (h *FileHandler) handleThumb(w http.ResponseWriter, r *http.Request) {
	h.serveVariant(w, r, domain.VariantThumb)
}

func (h *FileHandler) serveVariant(w http.ResponseWriter, r *http.Request, variant domain.Variant) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "media not found"})
		return
	}

	m, err := h.repo.GetByID(ctx, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if variant == domain.VariantThumb {
		// Heals thumbnails lost to a crash or an older store layout.
		if err := h.thumbs.Ensure(ctx, m); err != nil {
			respondError(w, h.logger, err)
			return
		}
	}

	info, err := h.store.Stat(ctx, m.Hash, variant)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.logger.Error().
				Int64("id", m.ID).
				Str("hash", m.Hash).
				Str("variant", string(variant)).
				Msg("record exists but backing file is missing")
			respondJSON(w, http.StatusNotFound, errorResponse{Error: "media not found"})
			return
		}
		respondError(w, h.logger, err)
		return
	}

	mimeType := m.Mime
	if variant == domain.VariantThumb {
		mimeType = h.thumbMime
	}

	lastMod := info.ModTime.UTC().Format(http.TimeFormat)
	w.Header().Set("Last-Modified", lastMod)
	w.Header().Set("Expires", h.expiresValue())

	// Byte-for-byte header comparison: hashed content never changes
	// under a URL, so a matching string is always a valid hit and a
	// mismatched one just costs a full response.
	if ims := r.Header.Get("If-Modified-Since"); ims != "" && ims == lastMod {
		h.publishDownload(ctx, m, variant, mimeType, true)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	rc, err := h.store.Open(ctx, m.Hash, variant)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if variant == domain.VariantCanonical {
		w.Header().Set("Content-Disposition", inlineDisposition(m.NiceFilename()))
	}

	h.publishDownload(ctx, m, variant, mimeType, false)

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug().Err(err).Int64("id", m.ID).Msg("response copy aborted")
	}
}

func (h *FileHandler) publishDownload(ctx context.Context, m *domain.Media, variant domain.Variant, mimeType string, notModified bool) {
	cache := "full"
	if notModified {
		cache = "not_modified"
	}
	h.metrics.DownloadsTotal.WithLabelValues(string(variant), cache).Inc()
	h.bus.Publish(ctx, domain.DownloadingEvent{
		Media:       m,
		Variant:     variant,
		Path:        h.store.PathFor(m.Hash, variant),
		Mime:        mimeType,
		NotModified: notModified,
	})
}

func (h *FileHandler) expiresValue() string {
	if h.serve.ExpiresSeconds > 0 {
		return time.Now().
			Add(time.Duration(h.serve.ExpiresSeconds) * time.Second).
			UTC().
			Format(http.TimeFormat)
	}
	return farFutureExpires
}

// inlineDisposition builds an inline content-disposition header with a
// quoted filename, stripping characters that would break the quoting.
func inlineDisposition(name string) string {
	clean := strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(name)
	return `inline; filename="` + clean + `"`
}
