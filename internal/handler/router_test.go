package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/mediaboard/internal/auth"
	"github.com/prn-tf/mediaboard/internal/config"
	"github.com/prn-tf/mediaboard/internal/events"
	"github.com/prn-tf/mediaboard/internal/lock"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/mime"
	"github.com/prn-tf/mediaboard/internal/repository/sqlite"
	"github.com/prn-tf/mediaboard/internal/service"
	"github.com/prn-tf/mediaboard/internal/storage"
	"github.com/prn-tf/mediaboard/internal/thumbnail"
)

const testAdminToken = "letmein"

// newTestRouter wires the full pipeline against an in-memory database
// and an on-disk store, then mounts it the way the server binary does.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	repo := sqlite.NewMediaRepository(db)

	store, err := storage.NewFilesystem(storage.DefaultPathConfig(t.TempDir()), t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	engine, err := thumbnail.New(thumbnail.Config{
		Engine:       thumbnail.EngineImaging,
		Mime:         mime.JPEG,
		MaxWidth:     128,
		MaxHeight:    128,
		ScalePercent: 100,
		Fit:          thumbnail.FitInside,
		Quality:      75,
		AlphaColor:   "#000000",
	}, zerolog.Nop())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	bus := events.NewBus(zerolog.Nop())
	locker := lock.NewMemoryLocker()

	uploadCfg := config.UploadConfig{
		MaxSize:         10 << 20,
		CollisionPolicy: config.CollisionError,
	}

	thumbs := service.NewThumbService(store, engine, false, m, zerolog.Nop())
	ingest := service.NewIngestService(repo, store, thumbs, bus, m, uploadCfg, zerolog.Nop())
	archive := service.NewArchiveService(ingest, m, zerolog.Nop())
	replace := service.NewReplaceService(repo, store, thumbs, locker, bus, m, uploadCfg, zerolog.Nop())
	deletes := service.NewDeleteService(repo, store, locker, bus, m, zerolog.Nop())

	hash, err := auth.HashToken(testAdminToken)
	require.NoError(t, err)
	authz := auth.NewAuthorizer(config.AuthConfig{AdminTokenHash: hash})

	serve := config.ServeConfig{}

	return NewRouter(Deps{
		Files:    NewFileHandler(repo, store, thumbs, bus, m, serve, mime.JPEG, zerolog.Nop()),
		Media:    NewMediaHandler(ingest, archive, replace, deletes, authz, serve, zerolog.Nop()),
		DB:       db,
		Metrics:  m,
		Registry: registry,
		Logger:   zerolog.Nop(),
	})
}

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

// multipartUpload builds a multipart request body with one file part
// and optional extra form fields.
func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, router http.Handler, filename string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, data, fields)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndServe(t *testing.T) {
	router := newTestRouter(t)
	data := makePNG(t, 64, 48, color.NRGBA{R: 200, A: 255})

	rec := doUpload(t, router, "cat.png", data, map[string]string{"tags": "cat cute"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.True(t, up.Created)
	require.NotZero(t, up.Media.ID)
	require.Equal(t, "image/png", up.Media.Mime)
	require.Equal(t, []string{"cat", "cute"}, up.Media.Tags)
	require.Equal(t, fmt.Sprintf("/image/%d", up.Media.ID), up.Media.Link)

	req := httptest.NewRequest(http.MethodGet, up.Media.Link, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "inline")
	require.Contains(t, rec.Header().Get("Content-Disposition"), "cat cute")
	require.Equal(t, farFutureExpires, rec.Header().Get("Expires"))
	require.NotEmpty(t, rec.Header().Get("Last-Modified"))
	require.Equal(t, data, rec.Body.Bytes())

	// Thumbnails are re-encoded, so only the type is asserted.
	req = httptest.NewRequest(http.MethodGet, up.Media.ThumbLink, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, mime.JPEG, rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Body.Bytes())
}

func TestConditionalGet(t *testing.T) {
	router := newTestRouter(t)
	data := makePNG(t, 32, 32, color.NRGBA{G: 120, A: 255})

	rec := doUpload(t, router, "a.png", data, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))

	req := httptest.NewRequest(http.MethodGet, up.Media.Link, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	lastMod := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, lastMod)

	req = httptest.NewRequest(http.MethodGet, up.Media.Link, nil)
	req.Header.Set("If-Modified-Since", lastMod)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotModified, rec.Code)
	require.Empty(t, rec.Body.Bytes())
	require.Equal(t, lastMod, rec.Header().Get("Last-Modified"))

	// A header that does not match byte for byte gets the full response.
	req = httptest.NewRequest(http.MethodGet, up.Media.Link, nil)
	req.Header.Set("If-Modified-Since", "Thu, 01 Jan 1970 00:00:00 GMT")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, data, rec.Body.Bytes())
}

func TestUploadDuplicateConflict(t *testing.T) {
	router := newTestRouter(t)
	data := makePNG(t, 16, 16, color.NRGBA{B: 40, A: 255})

	rec := doUpload(t, router, "one.png", data, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))

	rec = doUpload(t, router, "two.png", data, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var er errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	require.Equal(t, up.Media.ID, er.ExistingID)
}

func TestUploadArchive(t *testing.T) {
	router := newTestRouter(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, c := range []color.NRGBA{{R: 255, A: 255}, {G: 255, A: 255}} {
		w, err := zw.Create(fmt.Sprintf("img%d.png", i))
		require.NoError(t, err)
		_, err = w.Write(makePNG(t, 20, 20, c))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	rec := doUpload(t, router, "batch.zip", buf.Bytes(), map[string]string{"tags": "batch"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ar archiveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ar))
	require.Len(t, ar.Ingested, 2)
	require.Zero(t, ar.Failed)
	for _, v := range ar.Ingested {
		require.Contains(t, v.Tags, "batch")
	}
}

func TestReplaceRequiresAuth(t *testing.T) {
	router := newTestRouter(t)
	data := makePNG(t, 16, 16, color.NRGBA{R: 9, A: 255})

	rec := doUpload(t, router, "a.png", data, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))

	body, contentType := multipartUpload(t, "b.png", makePNG(t, 16, 16, color.NRGBA{G: 9, A: 255}), nil)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/replace/%d", up.Media.ID), body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	body, contentType = multipartUpload(t, "b.png", makePNG(t, 16, 16, color.NRGBA{G: 9, A: 255}), nil)
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/replace/%d", up.Media.ID), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReplaceSwapsContent(t *testing.T) {
	router := newTestRouter(t)
	oldData := makePNG(t, 16, 16, color.NRGBA{R: 1, A: 255})
	newData := makePNG(t, 40, 40, color.NRGBA{B: 200, A: 255})

	rec := doUpload(t, router, "old.png", oldData, map[string]string{"tags": "keep"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))

	body, contentType := multipartUpload(t, "new.png", newData, nil)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/replace/%d", up.Media.ID), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Equal(t, up.Media.ID, rep.Media.ID)
	require.NotEqual(t, up.Media.Hash, rep.Media.Hash)
	require.Equal(t, []string{"keep"}, rep.Media.Tags)

	req = httptest.NewRequest(http.MethodGet, up.Media.Link, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, newData, rec.Body.Bytes())
}

func TestDeleteRemovesRecord(t *testing.T) {
	router := newTestRouter(t)
	data := makePNG(t, 16, 16, color.NRGBA{R: 77, A: 255})

	rec := doUpload(t, router, "gone.png", data, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))

	form := fmt.Sprintf("id=%d", up.Media.ID)
	req := httptest.NewRequest(http.MethodPost, "/delete", bytes.NewBufferString(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, up.Media.Link, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeUnknownID(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/image/9999", "/image/abc", "/thumb/9999"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
