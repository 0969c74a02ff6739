package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/pkg/crypto"
)

func newTestStore(t *testing.T) *Filesystem {
	t.Helper()
	root := t.TempDir()
	fs, err := NewFilesystem(DefaultPathConfig(root), filepath.Join(root, "temp"), zerolog.Nop())
	require.NoError(t, err)
	return fs
}

func TestFilesystemPutAndOpen(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()
	content := []byte("some canonical bytes")

	hash, size, err := fs.Put(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, crypto.ComputeSHA256(content), hash)
	require.Equal(t, int64(len(content)), size)

	rc, err := fs.Open(ctx, hash, domain.VariantCanonical)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestFilesystemPutIdempotent(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()
	content := []byte("written twice")

	hash1, _, err := fs.Put(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	hash2, _, err := fs.Put(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, hash1, hash2)

	// Exactly one file exists under the canonical path.
	fi, err := os.Stat(fs.PathFor(hash1, domain.VariantCanonical))
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), fi.Size())
}

func TestFilesystemOpenMissing(t *testing.T) {
	fs := newTestStore(t)

	_, err := fs.Open(context.Background(), testHash, domain.VariantCanonical)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = fs.Stat(context.Background(), testHash, domain.VariantThumb)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemRemoveRetrySafe(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	hash, _, err := fs.Put(ctx, bytes.NewReader([]byte("short lived")))
	require.NoError(t, err)
	require.NoError(t, fs.PutThumb(ctx, hash, bytes.NewReader([]byte("thumb"))))

	require.NoError(t, fs.Remove(ctx, hash))

	ok, err := fs.Exists(ctx, hash, domain.VariantCanonical)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = fs.Exists(ctx, hash, domain.VariantThumb)
	require.NoError(t, err)
	require.False(t, ok)

	// Second removal of absent files succeeds.
	require.NoError(t, fs.Remove(ctx, hash))
}

func TestFilesystemThumbOverwrite(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	hash, _, err := fs.Put(ctx, bytes.NewReader([]byte("image")))
	require.NoError(t, err)

	require.NoError(t, fs.PutThumb(ctx, hash, bytes.NewReader([]byte("v1"))))
	require.NoError(t, fs.PutThumb(ctx, hash, bytes.NewReader([]byte("v2 bigger"))))

	rc, err := fs.Open(ctx, hash, domain.VariantThumb)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, []byte("v2 bigger"), got)
}

func TestFilesystemWalk(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	h1, _, err := fs.Put(ctx, bytes.NewReader([]byte("one")))
	require.NoError(t, err)
	h2, _, err := fs.Put(ctx, bytes.NewReader([]byte("two")))
	require.NoError(t, err)

	seen := map[string]bool{}
	require.NoError(t, fs.Walk(ctx, func(hash string) error {
		seen[hash] = true
		return nil
	}))
	require.True(t, seen[h1])
	require.True(t, seen[h2])
	require.Len(t, seen, 2)
}
