package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/repository"
)

// mediaRepository implements repository.MediaRepository for SQLite.
type mediaRepository struct {
	db *DB
}

// NewMediaRepository creates a new SQLite media repository.
func NewMediaRepository(db *DB) repository.MediaRepository {
	return &mediaRepository{db: db}
}

// Create persists a new record and assigns its ID.
func (r *mediaRepository) Create(ctx context.Context, m *domain.Media) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO media (hash, size, mime, ext, filename, source, uploader, posted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query,
			m.Hash, m.Size, m.Mime, m.Ext, m.Filename, m.Source, m.Uploader,
			m.Posted.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicateHash
			}
			return fmt.Errorf("failed to insert media: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get inserted media ID: %w", err)
		}
		m.ID = id

		return insertTags(ctx, tx, id, m.Tags)
	})
}

// GetByID retrieves a record by ID.
func (r *mediaRepository) GetByID(ctx context.Context, id int64) (*domain.Media, error) {
	return r.getOne(ctx, `WHERE id = ?`, id)
}

// GetByHash retrieves the record owning the given content hash.
func (r *mediaRepository) GetByHash(ctx context.Context, hash string) (*domain.Media, error) {
	return r.getOne(ctx, `WHERE hash = ?`, hash)
}

// ExistsByHash checks whether any record owns the given content hash.
func (r *mediaRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM media WHERE hash = ?)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check media existence: %w", err)
	}
	return exists, nil
}

// Update rewrites a record in place, tags included.
func (r *mediaRepository) Update(ctx context.Context, m *domain.Media) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE media
			SET hash = ?, size = ?, mime = ?, ext = ?, filename = ?, source = ?, uploader = ?, posted = ?
			WHERE id = ?
		`
		result, err := tx.ExecContext(ctx, query,
			m.Hash, m.Size, m.Mime, m.Ext, m.Filename, m.Source, m.Uploader,
			m.Posted.UTC().Format(time.RFC3339Nano),
			m.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicateHash
			}
			return fmt.Errorf("failed to update media: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return repository.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM media_tags WHERE media_id = ?`, m.ID); err != nil {
			return fmt.Errorf("failed to clear media tags: %w", err)
		}
		return insertTags(ctx, tx, m.ID, m.Tags)
	})
}

// AddTags attaches any of the given tags not already present.
func (r *mediaRepository) AddTags(ctx context.Context, id int64, tags []string) (int, error) {
	added := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM media WHERE id = ?)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check media existence: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}

		for _, tag := range tags {
			if tag == "" {
				continue
			}
			result, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO media_tags (media_id, tag) VALUES (?, ?)`,
				id, tag,
			)
			if err != nil {
				return fmt.Errorf("failed to insert tag: %w", err)
			}
			if rows, _ := result.RowsAffected(); rows > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// Delete removes a record; tags cascade.
func (r *mediaRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns records ordered by ID with pagination.
func (r *mediaRepository) List(ctx context.Context, opts repository.ListOptions) ([]*domain.Media, error) {
	query := `
		SELECT id, hash, size, mime, ext, filename, source, uploader, posted
		FROM media
		ORDER BY id
	`
	args := []interface{}{}
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	var items []*domain.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media rows: %w", err)
	}

	for _, m := range items {
		if m.Tags, err = r.loadTags(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// Count returns the total number of records.
func (r *mediaRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count media: %w", err)
	}
	return count, nil
}

// ListHashes returns the set of content hashes referenced by any record.
func (r *mediaRepository) ListHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT hash FROM media`)
	if err != nil {
		return nil, fmt.Errorf("failed to list media hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan media hash: %w", err)
		}
		hashes[hash] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media hashes: %w", err)
	}
	return hashes, nil
}

func (r *mediaRepository) getOne(ctx context.Context, where string, arg interface{}) (*domain.Media, error) {
	query := `
		SELECT id, hash, size, mime, ext, filename, source, uploader, posted
		FROM media
	` + where

	row := r.db.QueryRowContext(ctx, query, arg)
	m, err := scanMedia(row)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if m.Tags, err = r.loadTags(ctx, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *mediaRepository) loadTags(ctx context.Context, id int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tag FROM media_tags WHERE media_id = ? ORDER BY tag`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load media tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan media tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media tags: %w", err)
	}
	return tags, nil
}

func insertTags(ctx context.Context, tx *sql.Tx, id int64, tags []string) error {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO media_tags (media_id, tag) VALUES (?, ?)`,
			id, tag,
		); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMedia(s scanner) (*domain.Media, error) {
	m := &domain.Media{}
	var posted string

	err := s.Scan(
		&m.ID, &m.Hash, &m.Size, &m.Mime, &m.Ext,
		&m.Filename, &m.Source, &m.Uploader, &posted,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan media row: %w", err)
	}

	m.Posted, err = time.Parse(time.RFC3339Nano, posted)
	if err != nil {
		return nil, fmt.Errorf("failed to parse posted timestamp: %w", err)
	}
	return m, nil
}
