package biz_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/media/biz"
	"github.com/lk2023060901/blog-backend/internal/media/data"
	"github.com/lk2023060901/blog-backend/internal/media/storage"
	"github.com/lk2023060901/blog-backend/internal/pkg/database/dbtest"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/stretchr/testify/require"
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf"}

type env struct {
	repo  biz.MediaRepo
	store *storage.Local
	tmp   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.NewLocal(filepath.Join(t.TempDir(), "media"), "", logger.Nop())
	require.NoError(t, err)
	return &env{
		repo:  data.NewMediaRepo(dbtest.New(t, &data.MediaFilePO{})),
		store: store,
		tmp:   t.TempDir(),
	}
}

func (e *env) ingestor(repo biz.MediaRepo, store biz.FileStore) *biz.Ingestor {
	if repo == nil {
		repo = e.repo
	}
	if store == nil {
		store = e.store
	}
	return biz.NewIngestor(biz.IngestConfig{
		MaxUploadBytes:   1 << 20,
		AllowedMimeTypes: allowedTypes,
		VerifyContent:    true,
	}, repo, store, nil, logger.Nop())
}

func (e *env) reconciler(repo biz.MediaRepo, store biz.FileStore) *biz.Reconciler {
	if repo == nil {
		repo = e.repo
	}
	if store == nil {
		store = e.store
	}
	return biz.NewReconciler(biz.ReconcileConfig{}, repo, store, nil, logger.Nop())
}

// spool writes content to a temp upload file
func (e *env) spool(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(e.tmp, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

// put writes a file directly under the storage root
func (e *env) put(t *testing.T, rel string, content []byte) string {
	t.Helper()
	abs, err := e.store.Abs(rel)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, content, 0o644))
	return abs
}

func (e *env) storedPaths(t *testing.T) []string {
	t.Helper()
	entries, err := e.store.Walk(context.Background())
	require.NoError(t, err)
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	return paths
}

func (e *env) count(t *testing.T) int64 {
	t.Helper()
	n, err := e.repo.Count(context.Background())
	require.NoError(t, err)
	return n
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// failingRepo fails Insert or Delete on demand
type failingRepo struct {
	biz.MediaRepo
	insertErr error
	deleteErr error
}

func (f *failingRepo) Insert(ctx context.Context, record *biz.MediaFile) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	return f.MediaRepo.Insert(ctx, record)
}

func (f *failingRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return f.MediaRepo.Delete(ctx, id)
}

// insertHookRepo runs beforeInsert ahead of each Insert
type insertHookRepo struct {
	biz.MediaRepo
	beforeInsert func()
}

func (h *insertHookRepo) Insert(ctx context.Context, record *biz.MediaFile) (int64, error) {
	if h.beforeInsert != nil {
		h.beforeInsert()
	}
	return h.MediaRepo.Insert(ctx, record)
}

// hookStore runs afterWalk once the walk has produced its snapshot, and can
// fail Put or Remove
type hookStore struct {
	*storage.Local
	afterWalk func()
	putErr    error
	removeErr map[string]error
	calls     *[]string
}

func (h *hookStore) Walk(ctx context.Context) ([]storage.Entry, error) {
	entries, err := h.Local.Walk(ctx)
	if h.calls != nil {
		*h.calls = append(*h.calls, "walk")
	}
	if h.afterWalk != nil {
		h.afterWalk()
	}
	return entries, err
}

func (h *hookStore) Put(ctx context.Context, src, rel string) error {
	if h.putErr != nil {
		return h.putErr
	}
	return h.Local.Put(ctx, src, rel)
}

func (h *hookStore) Remove(rel string) error {
	if err, ok := h.removeErr[rel]; ok {
		return err
	}
	return h.Local.Remove(rel)
}

// orderRepo records when the catalog is read
type orderRepo struct {
	biz.MediaRepo
	calls *[]string
}

func (o *orderRepo) ListStoragePaths(ctx context.Context) ([]biz.StoredPath, error) {
	*o.calls = append(*o.calls, "catalog")
	return o.MediaRepo.ListStoragePaths(ctx)
}

type auditCall struct {
	Action   string
	EntityID *int64
	Metadata map[string]any
}

type memSink struct {
	mu    sync.Mutex
	calls []auditCall
}

func (m *memSink) Record(ctx context.Context, actor auditbiz.Actor, action, entityType string, entityID *int64, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, auditCall{Action: action, EntityID: entityID, Metadata: metadata})
}

func (m *memSink) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Action)
	}
	return out
}

var errInjected = errors.New("injected failure")
