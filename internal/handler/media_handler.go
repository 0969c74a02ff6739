package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/auth"
	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/mime"
	"github.com/prn-tf/mediaboard/internal/service"
)

const (
	// maxMultipartMemory bounds the in-memory part of multipart parsing;
	// larger uploads spill to temp files.
	maxMultipartMemory = 32 << 20

	// sniffLen is how many leading bytes the upload dispatcher reads to
	// decide between single-file ingestion and archive expansion.
	sniffLen = 3072
)

// MediaHandler handles uploads, replacements and deletions.
type MediaHandler struct {
	ingest  *service.IngestService
	archive *service.ArchiveService
	replace *service.ReplaceService
	deletes *service.DeleteService
	authz   *auth.Authorizer
	serve   config.ServeConfig
	logger  zerolog.Logger
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(
	ingest *service.IngestService,
	archive *service.ArchiveService,
	replace *service.ReplaceService,
	deletes *service.DeleteService,
	authz *auth.Authorizer,
	serve config.ServeConfig,
	logger zerolog.Logger,
) *MediaHandler {
	return &MediaHandler{
		ingest:  ingest,
		archive: archive,
		replace: replace,
		deletes: deletes,
		authz:   authz,
		serve:   serve,
		logger:  logger.With().Str("component", "media_handler").Logger(),
	}
}

// RegisterRoutes mounts the mutation routes.
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.handleUpload)
	r.Post("/replace/{id}", h.handleReplace)
	r.Post("/delete", h.handleDelete)
}

// mediaView is the JSON shape of a record in responses.
type mediaView struct {
	ID        int64    `json:"id"`
	Hash      string   `json:"hash"`
	Mime      string   `json:"mime"`
	Size      int64    `json:"size"`
	Filename  string   `json:"filename,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Link      string   `json:"link"`
	ThumbLink string   `json:"thumb_link"`
}

func (h *MediaHandler) newMediaView(m *domain.Media) mediaView {
	link := fmt.Sprintf("/image/%d", m.ID)
	if h.serve.ImageLink != "" {
		link = m.ExpandLinkTemplate(h.serve.ImageLink)
	}
	thumbLink := fmt.Sprintf("/thumb/%d", m.ID)
	if h.serve.ThumbLink != "" {
		thumbLink = m.ExpandLinkTemplate(h.serve.ThumbLink)
	}
	return mediaView{
		ID:        m.ID,
		Hash:      m.Hash,
		Mime:      m.Mime,
		Size:      m.Size,
		Filename:  m.Filename,
		Tags:      m.Tags,
		Link:      link,
		ThumbLink: thumbLink,
	}
}

type uploadResponse struct {
	Media mediaView `json:"media"`

	// Created is false when the bytes merged into an existing record.
	Created   bool `json:"created"`
	TagsAdded int  `json:"tags_added,omitempty"`
}

type archiveResponse struct {
	Ingested   []mediaView `json:"ingested"`
	Duplicates int         `json:"duplicates"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
}

type deleteResponse struct {
	Deleted mediaView `json:"deleted"`
}

func (h *MediaHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	tags := strings.Fields(r.FormValue("tags"))
	uploader := r.FormValue("uploader")
	source := r.FormValue("source")

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		respondError(w, h.logger, err)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		respondError(w, h.logger, err)
		return
	}

	if mt, _ := mime.Detect(head[:n]); mime.IsArchive(mt) {
		out, err := h.archive.Expand(ctx, service.ExpandInput{
			Src:      file,
			Size:     header.Size,
			Mime:     mt,
			Uploader: uploader,
			Source:   source,
			Tags:     tags,
		})
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		views := make([]mediaView, 0, len(out.Ingested))
		for _, m := range out.Ingested {
			views = append(views, h.newMediaView(m))
		}
		respondJSON(w, http.StatusCreated, archiveResponse{
			Ingested:   views,
			Duplicates: out.Duplicates,
			Skipped:    out.Skipped,
			Failed:     out.Failed,
		})
		return
	}

	out, err := h.ingest.Ingest(ctx, service.IngestInput{
		Body:     file,
		Filename: header.Filename,
		Uploader: uploader,
		Source:   source,
		Tags:     tags,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if !out.Created {
		status = http.StatusOK
	}
	respondJSON(w, status, uploadResponse{
		Media:     h.newMediaView(out.Media),
		Created:   out.Created,
		TagsAdded: out.TagsAdded,
	})
}

func (h *MediaHandler) handleReplace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "media not found"})
		return
	}

	if err := h.authz.Authorize(auth.TokenFromRequest(r), auth.PermReplace); err != nil {
		respondError(w, h.logger, err)
		return
	}

	// A url form field replaces from a remote source; otherwise the
	// replacement bytes come from the file field.
	if remote := r.FormValue("url"); remote != "" {
		out, err := h.replace.ReplaceFromURL(ctx, service.ReplaceFromURLInput{ID: id, URL: remote})
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, uploadResponse{Media: h.newMediaView(out.Media), Created: true})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	out, err := h.replace.Replace(ctx, service.ReplaceInput{
		ID:       id,
		Body:     file,
		Filename: header.Filename,
		Source:   r.FormValue("source"),
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, uploadResponse{Media: h.newMediaView(out.Media), Created: true})
}

func (h *MediaHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.authz.Authorize(auth.TokenFromRequest(r), auth.PermDelete); err != nil {
		respondError(w, h.logger, err)
		return
	}

	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid id"})
		return
	}

	m, err := h.deletes.Delete(ctx, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, deleteResponse{Deleted: h.newMediaView(m)})
}
