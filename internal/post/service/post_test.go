package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/database/dbtest"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/markdown"
	"github.com/lk2023060901/blog-backend/internal/post/biz"
	"github.com/lk2023060901/blog-backend/internal/post/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSink struct{}

func (nopSink) Record(context.Context, auditbiz.Actor, string, string, *int64, map[string]any) {}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Nop()
	renderer, err := markdown.NewRenderer(16)
	require.NoError(t, err)
	repo := data.NewPostRepo(dbtest.New(t, &data.PostPO{}))
	uc := biz.NewPostUseCase(repo, renderer, nopSink{}, nil, log)
	s := NewPostService(uc, Config{BaseURL: "https://blog.example.com/"}, log)

	r := gin.New()
	r.GET("/posts", s.ListPosts)
	r.GET("/posts/:slug", s.GetPost)
	r.GET("/categories", s.ListCategories)
	admin := r.Group("/admin/posts")
	admin.POST("", s.CreatePost)
	admin.GET("/:id", s.AdminGetPost)
	admin.PUT("/:id", s.UpdatePost)
	admin.DELETE("/:id", s.DeletePost)
	return r
}

func call(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestPostLifecycle(t *testing.T) {
	r := newRouter(t)
	published := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

	status, env := call(t, r, http.MethodPost, "/admin/posts", PostRequest{
		Title:        "Hello World",
		Category:     "go",
		Content:      "Some *markdown* here.",
		ArticleImage: "/uploads/cover.png",
		CreatedAt:    &published,
	})
	require.Equal(t, http.StatusCreated, status)
	var created PostResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "hello-world", created.Slug)

	status, env = call(t, r, http.MethodGet, "/posts/hello-world", nil)
	require.Equal(t, http.StatusOK, status)
	var detail PostDetailResponse
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Contains(t, detail.ContentHTML, "<em>markdown</em>")
	assert.Equal(t, "Hello World", detail.MetaTitle)
	assert.Equal(t, "Some markdown here.", detail.MetaDescription)
	assert.Equal(t, "https://blog.example.com/uploads/cover.png", detail.ArticleImage)
	assert.Equal(t, "https://blog.example.com/hello-world", detail.CanonicalURL)
	assert.Equal(t, "2024-03-09", detail.Date)

	status, env = call(t, r, http.MethodGet, "/posts?category=go", nil)
	require.Equal(t, http.StatusOK, status)
	var list ListPostsResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "/hello-world", list.Items[0].URL)
	assert.Equal(t, "Some markdown here.", list.Items[0].Preview)
	assert.Equal(t, "/api/v1/posts?category=go", list.Items[0].CategoryURL)

	status, env = call(t, r, http.MethodPut, "/admin/posts/1", PostRequest{
		Title:    "Renamed",
		Category: "misc",
		Content:  "Body",
	})
	require.Equal(t, http.StatusOK, status)
	var updated PostResponse
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "renamed", updated.Slug)

	status, env = call(t, r, http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"items":["misc"]}`, string(env.Data))

	status, _ = call(t, r, http.MethodDelete, "/admin/posts/1", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = call(t, r, http.MethodGet, "/admin/posts/1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrPostNotFound, env.Code)
}

func TestPostErrors(t *testing.T) {
	r := newRouter(t)

	status, env := call(t, r, http.MethodPost, "/admin/posts", map[string]string{"title": "only a title"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.ErrInvalidParams, env.Code)

	status, env = call(t, r, http.MethodPost, "/admin/posts", PostRequest{Title: "   ", Category: "c", Content: "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.ErrPostInvalidInput, env.Code)

	status, env = call(t, r, http.MethodGet, "/posts/admin", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrPostNotFound, env.Code)

	status, env = call(t, r, http.MethodGet, "/posts/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrPostNotFound, env.Code)

	status, env = call(t, r, http.MethodPut, "/admin/posts/abc", PostRequest{Title: "t", Category: "c", Content: "x"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrPostNotFound, env.Code)

	status, env = call(t, r, http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"items":[]}`, string(env.Data))
}
