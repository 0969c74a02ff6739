package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/pkg/crypto"
)

// Filesystem is the local-disk content store. Writes go to a temp file
// first and are renamed into their sharded location, so a reader can
// never observe a partially written file.
type Filesystem struct {
	paths   PathConfig
	tempDir string
	logger  zerolog.Logger
}

// NewFilesystem creates a filesystem content store rooted at cfg.BasePath.
func NewFilesystem(cfg PathConfig, tempDir string, logger zerolog.Logger) (*Filesystem, error) {
	for _, dir := range []string{
		filepath.Join(cfg.BasePath, "images"),
		filepath.Join(cfg.BasePath, "thumbs"),
		tempDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	return &Filesystem{
		paths:   cfg,
		tempDir: tempDir,
		logger:  logger.With().Str("component", "fs-store").Logger(),
	}, nil
}

// Put stores canonical content, hashing it in a single pass while
// spooling to a temp file. Identical bytes already present are a no-op.
func (s *Filesystem) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	tmpPath := filepath.Join(s.tempDir, uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	hr := crypto.NewHashReader(r)
	if _, err := io.Copy(tmp, hr); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("failed to spool content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to flush temp file: %w", err)
	}

	hash := hr.Sum()
	target := s.PathFor(hash, domain.VariantCanonical)

	if _, err := os.Stat(target); err == nil {
		// Same bytes, same address: the stored copy is already correct.
		return hash, hr.Size(), nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", 0, fmt.Errorf("failed to move content into place: %w", err)
	}

	s.logger.Debug().Str("hash", hash).Int64("size", hr.Size()).Msg("stored content")
	return hash, hr.Size(), nil
}

// PutThumb writes the thumbnail slot for a hash, replacing any previous
// thumbnail via the same temp-and-rename dance.
func (s *Filesystem) PutThumb(ctx context.Context, hash string, r io.Reader) error {
	tmpPath := filepath.Join(s.tempDir, uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to spool thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush temp file: %w", err)
	}

	target := s.PathFor(hash, domain.VariantThumb)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to move thumbnail into place: %w", err)
	}
	return nil
}

// Open opens the requested variant, failing atomically if absent.
func (s *Filesystem) Open(ctx context.Context, hash string, variant domain.Variant) (io.ReadCloser, error) {
	f, err := os.Open(s.PathFor(hash, variant))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	return f, nil
}

// Stat returns size and mtime for the requested variant.
func (s *Filesystem) Stat(ctx context.Context, hash string, variant domain.Variant) (*Info, error) {
	fi, err := os.Stat(s.PathFor(hash, variant))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat content: %w", err)
	}
	return &Info{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// PathFor returns the sharded path for a hash and variant.
func (s *Filesystem) PathFor(hash string, variant domain.Variant) string {
	return ComputePath(s.paths, hash, variant)
}

// Remove deletes the canonical file and thumbnail for a hash. Retry-safe:
// files already gone are not an error.
func (s *Filesystem) Remove(ctx context.Context, hash string) error {
	for _, variant := range []domain.Variant{domain.VariantCanonical, domain.VariantThumb} {
		if err := os.Remove(s.PathFor(hash, variant)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s file: %w", variant, err)
		}
	}
	return nil
}

// Exists reports whether the requested variant is present on disk.
func (s *Filesystem) Exists(ctx context.Context, hash string, variant domain.Variant) (bool, error) {
	_, err := os.Stat(s.PathFor(hash, variant))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat content: %w", err)
	}
	return true, nil
}

// Walk visits every stored canonical hash.
func (s *Filesystem) Walk(ctx context.Context, fn func(hash string) error) error {
	root := filepath.Join(s.paths.BasePath, "images")
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if !crypto.ValidateSHA256(name) {
			// Stray file, not ours to manage.
			return nil
		}
		return fn(name)
	})
}

// Ensure Filesystem implements ContentStore.
var _ ContentStore = (*Filesystem)(nil)
