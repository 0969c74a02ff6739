// Package service provides business logic services for mediaboard.
package service

import "errors"

// Common service errors.
var (
	// ErrInternalError wraps unexpected failures crossing the service
	// boundary; handlers map it to a 500 without leaking detail.
	ErrInternalError = errors.New("internal server error")

	// ErrNotAnArchive indicates the uploaded file is not a supported
	// archive format.
	ErrNotAnArchive = errors.New("not a supported archive format")

	// ErrBusy indicates a per-record lock could not be acquired in time.
	ErrBusy = errors.New("record is busy, try again")

	// ErrInvalidURL indicates a fetch URL was rejected.
	ErrInvalidURL = errors.New("invalid source URL")
)
