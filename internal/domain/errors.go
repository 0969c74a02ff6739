// Package domain contains the core business entities for mediaboard.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, disk, etc.),
// which the coordinators translate into this taxonomy at their boundary.

var (
	// ErrDuplicateContent indicates the ingested bytes hash to the same
	// value as a different active record.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrUnsupportedType indicates the detected mime is not in the
	// configured allow-list.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrUploadTooLarge indicates the upload exceeds the configured cap.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")

	// ErrStorage indicates an I/O failure reading or writing the content
	// store. Fatal to the single operation, never to the process.
	ErrStorage = errors.New("content store failure")

	// ErrDecode indicates the thumbnail source could not be decoded.
	// Recoverable: ingestion degrades to a placeholder thumbnail.
	ErrDecode = errors.New("source image undecodable")

	// ErrMediaNotFound indicates the requested record does not exist.
	ErrMediaNotFound = errors.New("media not found")

	// ErrFileMissing indicates a record exists but its backing file is
	// absent. Treated as a data-integrity anomaly, not a client error.
	ErrFileMissing = errors.New("backing file missing")

	// ErrPermissionDenied indicates the caller lacks the permission the
	// operation requires.
	ErrPermissionDenied = errors.New("permission denied")
)

// DuplicateContentError carries the identity of the record that already
// owns the colliding hash, so upload failures can name the duplicate post.
type DuplicateContentError struct {
	ExistingID int64
	Hash       string
}

// Error implements the error interface.
func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf(">>%d already has hash %s", e.ExistingID, e.Hash)
}

// Unwrap makes the error match ErrDuplicateContent via errors.Is.
func (e *DuplicateContentError) Unwrap() error {
	return ErrDuplicateContent
}
