package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/repository"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS media (
    id          BIGSERIAL PRIMARY KEY,
    hash        TEXT        NOT NULL,
    size        BIGINT      NOT NULL,
    mime        TEXT        NOT NULL,
    ext         TEXT        NOT NULL,
    filename    TEXT        NOT NULL DEFAULT '',
    source      TEXT,
    uploader    TEXT        NOT NULL DEFAULT '',
    posted      TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_media_hash ON media(hash);

CREATE TABLE IF NOT EXISTS media_tags (
    media_id    BIGINT NOT NULL REFERENCES media(id) ON DELETE CASCADE,
    tag         TEXT   NOT NULL,
    PRIMARY KEY (media_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_media_tags_tag ON media_tags(tag);
`

// mediaRepository implements repository.MediaRepository for PostgreSQL.
type mediaRepository struct {
	db *DB
}

// NewMediaRepository creates a new PostgreSQL media repository.
func NewMediaRepository(db *DB) repository.MediaRepository {
	return &mediaRepository{db: db}
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create persists a new record and assigns its ID.
func (r *mediaRepository) Create(ctx context.Context, m *domain.Media) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			INSERT INTO media (hash, size, mime, ext, filename, source, uploader, posted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`
		err := tx.QueryRow(ctx, query,
			m.Hash, m.Size, m.Mime, m.Ext, m.Filename, m.Source, m.Uploader, m.Posted,
		).Scan(&m.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicateHash
			}
			return fmt.Errorf("failed to insert media: %w", err)
		}

		return insertTags(ctx, tx, m.ID, m.Tags)
	})
}

// GetByID retrieves a record by ID.
func (r *mediaRepository) GetByID(ctx context.Context, id int64) (*domain.Media, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByHash retrieves the record owning the given content hash.
func (r *mediaRepository) GetByHash(ctx context.Context, hash string) (*domain.Media, error) {
	return r.getOne(ctx, `WHERE hash = $1`, hash)
}

// ExistsByHash checks whether any record owns the given content hash.
func (r *mediaRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM media WHERE hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check media existence: %w", err)
	}
	return exists, nil
}

// Update rewrites a record in place, tags included.
func (r *mediaRepository) Update(ctx context.Context, m *domain.Media) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			UPDATE media
			SET hash = $1, size = $2, mime = $3, ext = $4, filename = $5, source = $6, uploader = $7, posted = $8
			WHERE id = $9
		`
		tag, err := tx.Exec(ctx, query,
			m.Hash, m.Size, m.Mime, m.Ext, m.Filename, m.Source, m.Uploader, m.Posted, m.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicateHash
			}
			return fmt.Errorf("failed to update media: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM media_tags WHERE media_id = $1`, m.ID); err != nil {
			return fmt.Errorf("failed to clear media tags: %w", err)
		}
		return insertTags(ctx, tx, m.ID, m.Tags)
	})
}

// AddTags attaches any of the given tags not already present.
func (r *mediaRepository) AddTags(ctx context.Context, id int64, tags []string) (int, error) {
	added := 0
	err := r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM media WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check media existence: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}

		for _, t := range tags {
			if t == "" {
				continue
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO media_tags (media_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, t,
			)
			if err != nil {
				return fmt.Errorf("failed to insert tag: %w", err)
			}
			if tag.RowsAffected() > 0 {
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
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	var items []*domain.Media
	for rows.Next() {
		m := &domain.Media{}
		if err := rows.Scan(
			&m.ID, &m.Hash, &m.Size, &m.Mime, &m.Ext,
			&m.Filename, &m.Source, &m.Uploader, &m.Posted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
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
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM media`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count media: %w", err)
	}
	return count, nil
}

// ListHashes returns the set of content hashes referenced by any record.
func (r *mediaRepository) ListHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT hash FROM media`)
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

func (r *mediaRepository) getOne(ctx context.Context, where string, arg any) (*domain.Media, error) {
	query := `
		SELECT id, hash, size, mime, ext, filename, source, uploader, posted
		FROM media
	` + where

	m := &domain.Media{}
	err := r.db.Pool.QueryRow(ctx, query, arg).Scan(
		&m.ID, &m.Hash, &m.Size, &m.Mime, &m.Ext,
		&m.Filename, &m.Source, &m.Uploader, &m.Posted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get media: %w", err)
	}

	if m.Tags, err = r.loadTags(ctx, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *mediaRepository) loadTags(ctx context.Context, id int64) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT tag FROM media_tags WHERE media_id = $1 ORDER BY tag`, id,
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

func insertTags(ctx context.Context, tx pgx.Tx, id int64, tags []string) error {
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO media_tags (media_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, t,
		); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	return nil
}
