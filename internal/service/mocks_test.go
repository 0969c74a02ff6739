// Package service provides business logic services for mediaboard.
package service

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/storage"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockMediaRepository struct {
	mock.Mock
}

func (m *mockMediaRepository) Create(ctx context.Context, media *domain.Media) error {
	args := m.Called(ctx, media)
	return args.Error(0)
}

func (m *mockMediaRepository) GetByID(ctx context.Context, id int64) (*domain.Media, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Media), args.Error(1)
}

func (m *mockMediaRepository) GetByHash(ctx context.Context, hash string) (*domain.Media, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Media), args.Error(1)
}

func (m *mockMediaRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *mockMediaRepository) Update(ctx context.Context, media *domain.Media) error {
	args := m.Called(ctx, media)
	return args.Error(0)
}

func (m *mockMediaRepository) AddTags(ctx context.Context, id int64, tags []string) (int, error) {
	args := m.Called(ctx, id, tags)
	return args.Int(0), args.Error(1)
}

func (m *mockMediaRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMediaRepository) List(ctx context.Context, opts repository.ListOptions) ([]*domain.Media, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Media), args.Error(1)
}

func (m *mockMediaRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMediaRepository) ListHashes(ctx context.Context) (map[string]struct{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

var _ repository.MediaRepository = (*mockMediaRepository)(nil)

// =============================================================================
// Mock Content Store
// =============================================================================

type mockContentStore struct {
	mock.Mock
}

// Put drains the reader like the real store would, so size-cap errors
// surface through it.
func (m *mockContentStore) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", 0, err
	}
	args := m.Called(ctx)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *mockContentStore) PutThumb(ctx context.Context, hash string, r io.Reader) error {
	_, _ = io.Copy(io.Discard, r)
	args := m.Called(ctx, hash)
	return args.Error(0)
}

func (m *mockContentStore) Open(ctx context.Context, hash string, variant domain.Variant) (io.ReadCloser, error) {
	args := m.Called(ctx, hash, variant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockContentStore) Stat(ctx context.Context, hash string, variant domain.Variant) (*storage.Info, error) {
	args := m.Called(ctx, hash, variant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Info), args.Error(1)
}

func (m *mockContentStore) PathFor(hash string, variant domain.Variant) string {
	args := m.Called(hash, variant)
	return args.String(0)
}

func (m *mockContentStore) Remove(ctx context.Context, hash string) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

func (m *mockContentStore) Exists(ctx context.Context, hash string, variant domain.Variant) (bool, error) {
	args := m.Called(ctx, hash, variant)
	return args.Bool(0), args.Error(1)
}

func (m *mockContentStore) Walk(ctx context.Context, fn func(hash string) error) error {
	args := m.Called(ctx)
	if hashes, ok := args.Get(0).([]string); ok {
		for _, h := range hashes {
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

var _ storage.ContentStore = (*mockContentStore)(nil)
