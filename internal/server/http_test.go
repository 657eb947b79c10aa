package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	auditdata "github.com/lk2023060901/blog-backend/internal/audit/data"
	auditservice "github.com/lk2023060901/blog-backend/internal/audit/service"
	"github.com/lk2023060901/blog-backend/internal/auth"
	authbiz "github.com/lk2023060901/blog-backend/internal/auth/biz"
	authdata "github.com/lk2023060901/blog-backend/internal/auth/data"
	authservice "github.com/lk2023060901/blog-backend/internal/auth/service"
	"github.com/lk2023060901/blog-backend/internal/data"
	mediabiz "github.com/lk2023060901/blog-backend/internal/media/biz"
	mediadata "github.com/lk2023060901/blog-backend/internal/media/data"
	mediaservice "github.com/lk2023060901/blog-backend/internal/media/service"
	"github.com/lk2023060901/blog-backend/internal/media/storage"
	"github.com/lk2023060901/blog-backend/internal/pkg/database/dbtest"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/markdown"
	"github.com/lk2023060901/blog-backend/internal/pkg/metrics"
	postbiz "github.com/lk2023060901/blog-backend/internal/post/biz"
	postdata "github.com/lk2023060901/blog-backend/internal/post/data"
	postservice "github.com/lk2023060901/blog-backend/internal/post/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type app struct {
	router *gin.Engine
	store  *storage.Local
	admins authbiz.AdminRepo
	health error
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	ctx := context.Background()

	db := dbtest.New(t, data.Models()...)
	store, err := storage.NewLocal(filepath.Join(t.TempDir(), "uploads"), "", log)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	observer, err := metrics.NewMediaObserver("blog_media_test", reg)
	require.NoError(t, err)

	recorder := auditbiz.NewRecorder(auditdata.NewAuditRepo(db), log)
	jwtManager := auth.NewJWTManager("test-secret", "blog-test", time.Hour)
	admins := authdata.NewAdminRepo(db)
	authUC := authbiz.NewAuthUseCase(admins, jwtManager, recorder, log)
	require.NoError(t, authUC.EnsureDefaultAdmin(ctx, authbiz.SeedConfig{Username: "root", Password: "root-pass"}))

	renderer, err := markdown.NewRenderer(0)
	require.NoError(t, err)
	postUC := postbiz.NewPostUseCase(postdata.NewPostRepo(db), renderer, recorder, nil, log)

	mediaRepo := mediadata.NewMediaRepo(db)
	ingestor := mediabiz.NewIngestor(mediabiz.IngestConfig{
		MaxUploadBytes:   1 << 20,
		AllowedMimeTypes: []string{"image/png"},
	}, mediaRepo, store, observer, log)
	reconciler := mediabiz.NewReconciler(mediabiz.ReconcileConfig{}, mediaRepo, store, observer, log)
	mediaUC := mediabiz.NewMediaUseCase(mediaRepo, store, ingestor, reconciler, recorder, observer, true, log)

	a := &app{store: store, admins: admins}
	a.router = NewRouter(log, Handlers{
		Auth:  authservice.NewAuthService(authUC, log),
		Post:  postservice.NewPostService(postUC, postservice.Config{BaseURL: "https://blog.test"}, log),
		Media: mediaservice.NewMediaService(mediaUC, mediaservice.Config{PublicPrefix: "/uploads", MaxUploadBytes: 1 << 20}, log),
		Audit: auditservice.NewAuditService(recorder, log),
	}, Options{
		JWT:         jwtManager,
		Health:      pingFunc(func(context.Context) error { return a.health }),
		Metrics:     metrics.Handler(reg),
		MediaRoot:   store.Root(),
		MediaPrefix: "/uploads",
	})
	return a
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func (a *app) call(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *app) login(t *testing.T, username, password string) string {
	t.Helper()
	status, env := a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status)
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.AccessToken
}

func (a *app) addAdmin(t *testing.T, username, password string, role auth.Role) {
	t.Helper()
	hash, err := authbiz.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, a.admins.Create(context.Background(), &authbiz.Admin{Username: username, PasswordHash: hash, Role: role}))
}

func TestHealth(t *testing.T) {
	a := newApp(t)

	status, _ := a.call(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	a.health = errors.New("down")
	status, env := a.call(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, apperrors.ErrServiceUnavail, env.Code)
}

func TestRoleGates(t *testing.T) {
	a := newApp(t)
	a.addAdmin(t, "ed", "ed-pass", auth.RoleEditor)
	a.addAdmin(t, "vi", "vi-pass", auth.RoleViewer)

	status, _ := a.call(t, http.MethodGet, "/api/v1/admin/media", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	root := a.login(t, "root", "root-pass")
	editor := a.login(t, "ed", "ed-pass")
	viewer := a.login(t, "vi", "vi-pass")

	status, _ = a.call(t, http.MethodGet, "/api/v1/admin/posts", viewer, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = a.call(t, http.MethodGet, "/api/v1/admin/media", viewer, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = a.call(t, http.MethodGet, "/api/v1/admin/media", editor, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.call(t, http.MethodPost, "/api/v1/admin/media/cleanup", editor, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = a.call(t, http.MethodPost, "/api/v1/admin/media/cleanup", root, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.call(t, http.MethodGet, "/api/v1/admin/admins", editor, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = a.call(t, http.MethodGet, "/api/v1/admin/admins", root, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestPublishAndAudit(t *testing.T) {
	a := newApp(t)
	a.addAdmin(t, "ed", "ed-pass", auth.RoleEditor)
	editor := a.login(t, "ed", "ed-pass")
	root := a.login(t, "root", "root-pass")

	status, _ := a.call(t, http.MethodPost, "/api/v1/admin/posts", editor, map[string]string{
		"title":    "First Post",
		"category": "news",
		"content":  "Hello **world**",
	})
	require.Equal(t, http.StatusCreated, status)

	status, env := a.call(t, http.MethodGet, "/api/v1/posts/first-post", "", nil)
	require.Equal(t, http.StatusOK, status)
	var detail postservice.PostDetailResponse
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Contains(t, detail.ContentHTML, "<strong>world</strong>")

	status, _ = a.call(t, http.MethodPost, "/api/v1/admin/media/cleanup", root, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = a.call(t, http.MethodGet, "/api/v1/admin/audit", root, nil)
	require.Equal(t, http.StatusOK, status)
	var out struct {
		Items []struct {
			Action   string `json:"action"`
			Username string `json:"username"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	actions := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		actions = append(actions, item.Action)
	}
	assert.Contains(t, actions, "login")
	assert.Contains(t, actions, "post_created")
	assert.Contains(t, actions, "media_housekeeping")
}

func TestStaticMediaAndMetrics(t *testing.T) {
	a := newApp(t)

	src := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("served"), 0o644))
	require.NoError(t, a.store.Put(context.Background(), src, "ab/note.txt"))

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/ab/note.txt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "served", string(body))

	root := a.login(t, "root", "root-pass")
	status, _ := a.call(t, http.MethodPost, "/api/v1/admin/media/cleanup", root, nil)
	require.Equal(t, http.StatusOK, status)

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "blog_media_test_operation_duration_seconds")
	assert.Contains(t, w.Body.String(), `blog_media_test_reconciled_items_total{kind="file"} 1`)
}
