// Package repository defines data access interfaces for mediaboard.
// These interfaces abstract database operations, allowing for different
// implementations (SQLite, PostgreSQL, mocks for testing) while keeping
// the service layer clean.
package repository

import (
	"context"

	"github.com/prn-tf/mediaboard/internal/domain"
)

// ListOptions controls pagination for listing queries.
type ListOptions struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int

	// Offset is the number of records to skip.
	Offset int
}

// MediaRepository defines the interface for media record access.
type MediaRepository interface {
	// Create persists a new record and assigns its ID.
	// Returns ErrDuplicateHash if another record already owns the hash;
	// the caller resolves the collision by re-reading with GetByHash.
	Create(ctx context.Context, m *domain.Media) error

	// GetByID retrieves a record by ID.
	GetByID(ctx context.Context, id int64) (*domain.Media, error)

	// GetByHash retrieves the record owning the given content hash.
	GetByHash(ctx context.Context, hash string) (*domain.Media, error)

	// ExistsByHash checks whether any record owns the given content hash.
	ExistsByHash(ctx context.Context, hash string) (bool, error)

	// Update rewrites a record in place, tags included. The hash swap
	// performed during replacement goes through here as a single
	// statement so readers never observe a half-updated row.
	// Returns ErrDuplicateHash if the new hash belongs to another record.
	Update(ctx context.Context, m *domain.Media) error

	// AddTags attaches any of the given tags not already present.
	// Returns the number of tags that were new.
	AddTags(ctx context.Context, id int64, tags []string) (int, error)

	// Delete removes a record and its tags.
	Delete(ctx context.Context, id int64) error

	// List returns records ordered by ID with pagination.
	List(ctx context.Context, opts ListOptions) ([]*domain.Media, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// ListHashes returns the set of content hashes referenced by any
	// record. Used by the orphan sweep to compare against the store.
	ListHashes(ctx context.Context) (map[string]struct{}, error)
}
