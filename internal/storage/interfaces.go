// Package storage implements the content store: canonical files and their
// derived thumbnails, addressed purely by content hash. No entry is ever
// mutated in place - a "replace" at this layer is "write new content under
// a new hash, remove old content separately".
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prn-tf/mediaboard/internal/domain"
)

// ErrNotFound indicates the requested content does not exist in the store.
var ErrNotFound = errors.New("content not found in store")

// Info describes a stored file.
type Info struct {
	// Size is the file size in bytes.
	Size int64

	// ModTime is the last-modification timestamp, used for
	// conditional-GET handling at serve time.
	ModTime time.Time
}

// ContentStore is the interface for content-addressed file storage.
// Implementations: local filesystem (default) and S3.
type ContentStore interface {
	// Put stores canonical content, computing its SHA-256 hash while
	// writing. The destination is derived deterministically from the
	// hash; writing bytes that are already present is a cheap no-op, so
	// concurrent identical writes converge without corruption.
	Put(ctx context.Context, r io.Reader) (hash string, size int64, err error)

	// PutThumb writes (or overwrites) the thumbnail slot for a hash.
	PutThumb(ctx context.Context, hash string, r io.Reader) error

	// Open returns a reader over the requested variant. This is the
	// atomic open-or-fail primitive: callers must not pre-check
	// existence and then open. Returns ErrNotFound if absent.
	Open(ctx context.Context, hash string, variant domain.Variant) (io.ReadCloser, error)

	// Stat returns size and modification time for the requested variant.
	// Returns ErrNotFound if absent.
	Stat(ctx context.Context, hash string, variant domain.Variant) (*Info, error)

	// PathFor returns the storage location for a hash and variant. Pure;
	// no guarantee the file exists.
	PathFor(hash string, variant domain.Variant) string

	// Remove deletes the canonical file and the thumbnail for a hash.
	// Absent files are not an error, so removal is safe to retry.
	Remove(ctx context.Context, hash string) error

	// Exists reports whether the requested variant is present.
	Exists(ctx context.Context, hash string, variant domain.Variant) (bool, error)

	// Walk calls fn with the hash of every stored canonical file. Used by
	// the orphan sweep. Iteration stops on the first error from fn.
	Walk(ctx context.Context, fn func(hash string) error) error
}
