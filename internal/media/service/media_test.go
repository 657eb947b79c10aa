package service

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/media/biz"
	"github.com/lk2023060901/blog-backend/internal/media/data"
	"github.com/lk2023060901/blog-backend/internal/media/storage"
	"github.com/lk2023060901/blog-backend/internal/pkg/database/dbtest"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	actions []string
}

func (r *recordingSink) Record(_ context.Context, _ auditbiz.Actor, action, _ string, _ *int64, _ map[string]any) {
	r.actions = append(r.actions, action)
}

type testServer struct {
	router *gin.Engine
	store  *storage.Local
	repo   biz.MediaRepo
	sink   *recordingSink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Nop()
	repo := data.NewMediaRepo(dbtest.New(t, &data.MediaFilePO{}))
	store, err := storage.NewLocal(filepath.Join(t.TempDir(), "media"), "", log)
	require.NoError(t, err)

	ingestor := biz.NewIngestor(biz.IngestConfig{
		MaxUploadBytes:   64 << 10,
		AllowedMimeTypes: []string{"image/png", "image/jpeg"},
	}, repo, store, nil, log)
	reconciler := biz.NewReconciler(biz.ReconcileConfig{}, repo, store, nil, log)
	sink := &recordingSink{}
	uc := biz.NewMediaUseCase(repo, store, ingestor, reconciler, sink, nil, true, log)

	s := NewMediaService(uc, Config{PublicPrefix: "uploads/", TempDir: t.TempDir(), MaxUploadBytes: 64 << 10}, log)
	r := gin.New()
	g := r.Group("/media")
	g.GET("", s.ListMedia)
	g.POST("", s.UploadMedia)
	g.POST("/cleanup", s.CleanupMedia)
	g.GET("/:id", s.GetMedia)
	g.DELETE("/:id", s.DeleteMedia)

	return &testServer{router: r, store: store, repo: repo, sink: sink}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func pngFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 5, 3))))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, name, contentType string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="media_file"; filename="`+name+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadListGetDelete(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, uploadRequest(t, "pixel.png", "image/png", pngFile(t), map[string]string{"limit": "10", "offset": "20"}))
	require.Equal(t, http.StatusCreated, status, env.Message)

	var uploaded UploadMediaResponse
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	assert.Equal(t, "pixel.png", uploaded.Media.OriginalFilename)
	assert.Equal(t, "/uploads/"+uploaded.Media.StoragePath, uploaded.Media.URL)
	assert.Equal(t, 5, *uploaded.Media.Width)
	assert.Equal(t, 3, *uploaded.Media.Height)
	assert.True(t, uploaded.Media.IsImage)
	assert.Equal(t, biz.PageRequest{Limit: 10, Offset: 20}, uploaded.Pagination)
	require.NotNil(t, uploaded.Cleanup)
	assert.True(t, uploaded.Cleanup.Empty())

	status, env = ts.do(t, httptest.NewRequest(http.MethodGet, "/media?limit=5", nil))
	require.Equal(t, http.StatusOK, status)
	var list ListMediaResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, int64(1), list.Stats.TotalCount)
	assert.Equal(t, 5, list.Pagination.Limit)
	assert.False(t, list.Pagination.HasNext)

	id := jsonID(uploaded.Media.ID)
	status, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/media/"+id, nil))
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, httptest.NewRequest(http.MethodDelete, "/media/"+id, nil))
	assert.Equal(t, http.StatusOK, status)

	status, env = ts.do(t, httptest.NewRequest(http.MethodGet, "/media/"+id, nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrMediaNotFound, env.Code)

	assert.Equal(t, []string{"media_uploaded", "media_deleted"}, ts.sink.actions)
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing file", uploadRequest(t, "", "", nil, nil)},
		{"empty file", uploadRequest(t, "empty.png", "image/png", []byte{}, nil)},
		{"type not allowed", uploadRequest(t, "doc.pdf", "application/pdf", []byte("%PDF-1.4\n"), nil)},
		{"too large", uploadRequest(t, "big.png", "image/png", bytes.Repeat([]byte{1}, 65<<10), nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := ts.do(t, tt.req)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, apperrors.ErrMediaInvalidUpload, env.Code)
		})
	}

	entries, err := ts.store.Walk(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, ts.sink.actions)
}

func TestListRejectsNonNumericLimit(t *testing.T) {
	ts := newTestServer(t)
	status, env := ts.do(t, httptest.NewRequest(http.MethodGet, "/media?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.ErrInvalidParams, env.Code)
}

func TestCleanupEndpoint(t *testing.T) {
	ts := newTestServer(t)
	orphan, err := ts.store.Abs("x/y.png")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(orphan), 0o755))
	require.NoError(t, os.WriteFile(orphan, []byte("orphan"), 0o644))
	_, err = ts.repo.Insert(context.Background(), &biz.MediaFile{
		Filename: "b.jpg", OriginalFilename: "b.jpg", StoragePath: "a/b.jpg", MimeType: "image/jpeg", SizeBytes: 1,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/media/cleanup?limit=999&offset=-4", nil)
	status, env := ts.do(t, req)
	require.Equal(t, http.StatusOK, status)

	var out CleanupResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 1, out.Cleanup.RemovedFiles)
	assert.Equal(t, 1, out.Cleanup.RemovedRecords)
	assert.Equal(t, 1, out.Cleanup.RemovedDirectories)
	assert.Equal(t, biz.PageRequest{Limit: 200, Offset: 0}, out.Pagination)
	assert.Equal(t, []string{"media_housekeeping"}, ts.sink.actions)
}

func TestDeleteUnknownAndMalformedID(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, httptest.NewRequest(http.MethodDelete, "/media/77", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrMediaNotFound, env.Code)

	status, _ = ts.do(t, httptest.NewRequest(http.MethodDelete, "/media/abc", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
