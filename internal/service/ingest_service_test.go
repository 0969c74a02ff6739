package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/mime"
	"github.com/prn-tf/mediaboard/internal/repository"
	"github.com/prn-tf/mediaboard/internal/thumbnail"
)

func testThumbConfig() thumbnail.Config {
	return thumbnail.Config{
		Engine:       thumbnail.EngineImaging,
		Mime:         mime.JPEG,
		MaxWidth:     192,
		MaxHeight:    192,
		ScalePercent: 100,
		Fit:          thumbnail.FitInside,
		Quality:      75,
		AlphaColor:   "#000000",
	}
}

func newTestThumbs(t *testing.T, store *mockContentStore, m *metrics.Metrics) *ThumbService {
	t.Helper()
	engine, err := thumbnail.New(testThumbConfig(), zerolog.Nop())
	require.NoError(t, err)
	return NewThumbService(store, engine, false, m, zerolog.Nop())
}

func newTestIngest(t *testing.T, repo *mockMediaRepository, store *mockContentStore, cfg config.UploadConfig) *IngestService {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return NewIngestService(
		repo, store, newTestThumbs(t, store, m),
		events.NewBus(zerolog.Nop()), m, cfg, zerolog.Nop(),
	)
}

// makePNG encodes a small solid-color image.
func makePNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngBody(t *testing.T, data []byte) io.ReadCloser {
	t.Helper()
	return io.NopCloser(bytes.NewReader(data))
}

func TestIngestCreatesRecord(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestIngest(t, repo, store, config.UploadConfig{CollisionPolicy: config.CollisionError})

	pngData := makePNG(t, 16, 16, color.NRGBA{R: 200, A: 255})

	store.On("Put", mock.Anything).Return("hash-1", int64(len(pngData)), nil).Once()
	repo.On("GetByHash", mock.Anything, "hash-1").Return(nil, repository.ErrNotFound).Once()
	// Sniffed once for type detection, once for thumbnail rendering.
	store.On("Open", mock.Anything, "hash-1", domain.VariantCanonical).Return(pngBody(t, pngData), nil).Twice()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Media")).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Media).ID = 42
	}).Return(nil).Once()
	store.On("PutThumb", mock.Anything, "hash-1").Return(nil).Once()

	out, err := svc.Ingest(context.Background(), IngestInput{
		Body:     pngBody(t, pngData),
		Filename: "cat.png",
		Uploader: "alice",
		Tags:     []string{"cat", "", "cat", "cute"},
	})
	require.NoError(t, err)
	require.True(t, out.Created)
	require.Equal(t, int64(42), out.Media.ID)
	require.Equal(t, "image/png", out.Media.Mime)
	require.Equal(t, "png", out.Media.Ext)
	require.Equal(t, []string{"cat", "cute"}, out.Media.Tags)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestIngestDuplicateRejected(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestIngest(t, repo, store, config.UploadConfig{CollisionPolicy: config.CollisionError})

	existing := domain.NewMedia("hash-1", "image/png", "png", "orig.png", "bob", 100)
	existing.ID = 7

	store.On("Put", mock.Anything).Return("hash-1", int64(100), nil).Once()
	repo.On("GetByHash", mock.Anything, "hash-1").Return(existing, nil).Once()

	_, err := svc.Ingest(context.Background(), IngestInput{
		Body: bytes.NewReader([]byte("whatever")), Filename: "dup.png", Uploader: "alice",
	})

	require.ErrorIs(t, err, domain.ErrDuplicateContent)
	var dup *domain.DuplicateContentError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, int64(7), dup.ExistingID)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestDuplicateMergesTags(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestIngest(t, repo, store, config.UploadConfig{CollisionPolicy: config.CollisionMerge})

	existing := domain.NewMedia("hash-1", "image/png", "png", "orig.png", "bob", 100)
	existing.ID = 7
	existing.Tags = []string{"cat"}

	merged := *existing
	merged.Tags = []string{"cat", "cute"}

	store.On("Put", mock.Anything).Return("hash-1", int64(100), nil).Once()
	repo.On("GetByHash", mock.Anything, "hash-1").Return(existing, nil).Once()
	repo.On("AddTags", mock.Anything, int64(7), []string{"cat", "cute"}).Return(1, nil).Once()
	repo.On("GetByID", mock.Anything, int64(7)).Return(&merged, nil).Once()

	out, err := svc.Ingest(context.Background(), IngestInput{
		Body: bytes.NewReader([]byte("whatever")), Tags: []string{"cat", "cute"},
	})
	require.NoError(t, err)
	require.False(t, out.Created)
	require.Equal(t, 1, out.TagsAdded)
	require.Equal(t, []string{"cat", "cute"}, out.Media.Tags)
	repo.AssertExpectations(t)
}

func TestIngestUnsupportedType(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestIngest(t, repo, store, config.UploadConfig{
		AllowedMimes:    []string{"image/png"},
		CollisionPolicy: config.CollisionError,
	})

	textData := []byte("plain text, not an image at all")

	store.On("Put", mock.Anything).Return("hash-txt", int64(len(textData)), nil).Once()
	repo.On("GetByHash", mock.Anything, "hash-txt").Return(nil, repository.ErrNotFound).Once()
	store.On("Open", mock.Anything, "hash-txt", domain.VariantCanonical).Return(pngBody(t, textData), nil).Once()
	store.On("Remove", mock.Anything, "hash-txt").Return(nil).Once()

	_, err := svc.Ingest(context.Background(), IngestInput{Body: bytes.NewReader(textData)})
	require.ErrorIs(t, err, domain.ErrUnsupportedType)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestIngestTooLarge(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestIngest(t, repo, store, config.UploadConfig{
		MaxSize:         8,
		CollisionPolicy: config.CollisionError,
	})

	_, err := svc.Ingest(context.Background(), IngestInput{
		Body: bytes.NewReader(bytes.Repeat([]byte("x"), 64)),
	})
	require.ErrorIs(t, err, domain.ErrUploadTooLarge)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestLostInsertRace(t *testing.T) {
	repo := &mockMediaRepository{}
	store := &mockContentStore{}
	svc := newTestIngest(t, repo, store, config.UploadConfig{CollisionPolicy: config.CollisionError})

	pngData := makePNG(t, 8, 8, color.NRGBA{G: 120, A: 255})
	winner := domain.NewMedia("hash-1", "image/png", "png", "first.png", "bob", int64(len(pngData)))
	winner.ID = 3

	store.On("Put", mock.Anything).Return("hash-1", int64(len(pngData)), nil).Once()
	repo.On("GetByHash", mock.Anything, "hash-1").Return(nil, repository.ErrNotFound).Once()
	store.On("Open", mock.Anything, "hash-1", domain.VariantCanonical).Return(pngBody(t, pngData), nil).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateHash).Once()
	repo.On("GetByHash", mock.Anything, "hash-1").Return(winner, nil).Once()

	_, err := svc.Ingest(context.Background(), IngestInput{Body: pngBody(t, pngData)})

	var dup *domain.DuplicateContentError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, int64(3), dup.ExistingID)
}
