package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/service"
)

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Error string `json:"error"`

	// ExistingID names the record that already owns the content when a
	// duplicate upload is rejected.
	ExistingID int64 `json:"existing_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError translates the domain error taxonomy into HTTP status
// codes. Unknown errors are logged and masked as a plain 500 so
// internal details never reach the client.
func respondError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var dup *domain.DuplicateContentError
	switch {
	case errors.As(err, &dup):
		respondJSON(w, http.StatusConflict, errorResponse{
			Error:      "duplicate content",
			ExistingID: dup.ExistingID,
		})
	case errors.Is(err, domain.ErrDuplicateContent):
		respondJSON(w, http.StatusConflict, errorResponse{Error: "duplicate content"})
	case errors.Is(err, domain.ErrUnsupportedType):
		respondJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "unsupported content type"})
	case errors.Is(err, domain.ErrUploadTooLarge):
		respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload exceeds size limit"})
	case errors.Is(err, domain.ErrMediaNotFound), errors.Is(err, repository.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "media not found"})
	case errors.Is(err, domain.ErrPermissionDenied):
		respondJSON(w, http.StatusForbidden, errorResponse{Error: "permission denied"})
	case errors.Is(err, service.ErrBusy):
		respondJSON(w, http.StatusConflict, errorResponse{Error: "record is busy, try again"})
	case errors.Is(err, service.ErrInvalidURL):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid source url"})
	case errors.Is(err, service.ErrNotAnArchive):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "not a supported archive"})
	default:
		logger.Error().Err(err).Msg("request failed")
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
