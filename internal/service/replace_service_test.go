package service

import (
	"bytes"
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/lock"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/repository"
)

func newTestReplace(t *testing.T, repo *mockMediaRepository, store *mockContentStore) *ReplaceService {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return NewReplaceService(
		repo, store, newTestThumbs(t, store, m),
		lock.NewMemoryLocker(), events.NewBus(zerolog.Nop()), m,
		config.UploadConfig{CollisionPolicy: config.CollisionError},
		zerolog.Nop(),
	)
}

func TestReplacePreservesIdentity(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestReplace(t, repo, store)

	posted := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	current := &domain.Media{
		ID: 7, Hash: "old-hash", Size: 100, Mime: "image/jpeg", Ext: "jpg",
		Filename: "orig.jpg", Uploader: "bob", Tags: []string{"cat"}, Posted: posted,
	}

	pngData := makePNG(t, 16, 16, color.NRGBA{B: 180, A: 255})

	repo.On("GetByID", mock.Anything, int64(7)).Return(current, nil).Once()
	store.On("Put", mock.Anything).Return("new-hash", int64(len(pngData)), nil).Once()
	repo.On("GetByHash", mock.Anything, "new-hash").Return(nil, repository.ErrNotFound).Once()
	store.On("Open", mock.Anything, "new-hash", domain.VariantCanonical).Return(pngBody(t, pngData), nil).Twice()
	repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Media")).Return(nil).Once()
	store.On("Remove", mock.Anything, "old-hash").Return(nil).Once()
	store.On("PutThumb", mock.Anything, "new-hash").Return(nil).Once()

	out, err := svc.Replace(context.Background(), ReplaceInput{
		ID: 7, Body: pngBody(t, pngData), Filename: "new.png",
	})
	require.NoError(t, err)

	// Identity survives the swap; only the content columns move.
	require.Equal(t, int64(7), out.Media.ID)
	require.Equal(t, "new-hash", out.Media.Hash)
	require.Equal(t, "image/png", out.Media.Mime)
	require.Equal(t, "png", out.Media.Ext)
	require.Equal(t, "new.png", out.Media.Filename)
	require.Equal(t, "bob", out.Media.Uploader)
	require.Equal(t, []string{"cat"}, out.Media.Tags)
	require.True(t, posted.Equal(out.Media.Posted))

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestReplaceForeignCollision(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestReplace(t, repo, store)

	current := &domain.Media{ID: 7, Hash: "old-hash"}
	other := &domain.Media{ID: 9, Hash: "taken-hash"}

	repo.On("GetByID", mock.Anything, int64(7)).Return(current, nil).Once()
	store.On("Put", mock.Anything).Return("taken-hash", int64(5), nil).Once()
	repo.On("GetByHash", mock.Anything, "taken-hash").Return(other, nil).Once()

	_, err := svc.Replace(context.Background(), ReplaceInput{
		ID: 7, Body: bytes.NewReader([]byte("bytes")),
	})

	var dup *domain.DuplicateContentError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, int64(9), dup.ExistingID)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Remove", mock.Anything, "old-hash")
}

func TestReplaceIdenticalBytes(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestReplace(t, repo, store)

	current := &domain.Media{ID: 7, Hash: "same-hash", Filename: "orig.png"}

	repo.On("GetByID", mock.Anything, int64(7)).Return(current, nil).Once()
	store.On("Put", mock.Anything).Return("same-hash", int64(5), nil).Once()
	repo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

	out, err := svc.Replace(context.Background(), ReplaceInput{
		ID: 7, Body: bytes.NewReader([]byte("bytes")), Filename: "renamed.png",
	})
	require.NoError(t, err)
	require.Equal(t, "same-hash", out.Media.Hash)
	require.Equal(t, "renamed.png", out.Media.Filename)
	store.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestReplaceNotFound(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestReplace(t, repo, store)

	repo.On("GetByID", mock.Anything, int64(404)).Return(nil, repository.ErrNotFound).Once()

	_, err := svc.Replace(context.Background(), ReplaceInput{
		ID: 404, Body: bytes.NewReader(nil),
	})
	require.ErrorIs(t, err, domain.ErrMediaNotFound)
}

func TestReplaceFromURLRejectsBadURL(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestReplace(t, repo, store)

	for _, raw := range []string{"", "ftp://example.com/x.png", "not a url", "file:///etc/passwd"} {
		_, err := svc.ReplaceFromURL(context.Background(), ReplaceFromURLInput{ID: 1, URL: raw})
		require.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestDeleteRemovesRecordAndFiles(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewDeleteService(repo, store, lock.NewMemoryLocker(), events.NewBus(zerolog.Nop()), m, zerolog.Nop())

	current := &domain.Media{ID: 7, Hash: "doomed-hash"}

	repo.On("GetByID", mock.Anything, int64(7)).Return(current, nil).Once()
	repo.On("Delete", mock.Anything, int64(7)).Return(nil).Once()
	store.On("Remove", mock.Anything, "doomed-hash").Return(nil).Once()

	deleted, err := svc.Delete(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), deleted.ID)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestDeleteNotFound(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewDeleteService(repo, store, lock.NewMemoryLocker(), events.NewBus(zerolog.Nop()), m, zerolog.Nop())

	repo.On("GetByID", mock.Anything, int64(404)).Return(nil, repository.ErrNotFound).Once()

	_, err := svc.Delete(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrMediaNotFound)
	store.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}
