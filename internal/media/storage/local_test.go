package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(filepath.Join(t.TempDir(), "media"), "", logger.Nop())
	require.NoError(t, err)
	return l
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestAbs(t *testing.T) {
	l := newTestLocal(t)

	tests := []struct {
		rel     string
		wantErr bool
	}{
		{rel: "2024/05/a.jpg"},
		{rel: "a.jpg"},
		{rel: "", wantErr: true},
		{rel: "/etc/passwd", wantErr: true},
		{rel: "../escape.jpg", wantErr: true},
		{rel: "2024/../../escape.jpg", wantErr: true},
		{rel: "2024//a.jpg", wantErr: true},
		{rel: "2024\\a.jpg", wantErr: true},
		{rel: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			abs, err := l.Abs(tt.rel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(l.Root(), filepath.FromSlash(tt.rel)), abs)
		})
	}
}

func TestPutMovesFile(t *testing.T) {
	l := newTestLocal(t)
	src := writeFile(t, t.TempDir(), "upload.tmp", "hello")

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(src, old, old))

	require.NoError(t, l.Put(context.Background(), src, "2024/05/x.txt"))

	_, err := os.Stat(src)
	assert.ErrorIs(t, err, os.ErrNotExist)

	info, err := l.Stat("2024/05/x.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)
}

func TestPutRefusesExisting(t *testing.T) {
	l := newTestLocal(t)
	writeFile(t, l.Root(), "a/b.txt", "x")
	src := writeFile(t, t.TempDir(), "upload.tmp", "y")

	assert.ErrorIs(t, l.Put(context.Background(), src, "a/b.txt"), ErrExists)
}

func TestPutMissingSource(t *testing.T) {
	l := newTestLocal(t)
	err := l.Put(context.Background(), filepath.Join(t.TempDir(), "missing"), "a/b.txt")
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	l := newTestLocal(t)
	writeFile(t, l.Root(), "a/b.txt", "x")

	require.NoError(t, l.Remove("a/b.txt"))
	assert.ErrorIs(t, l.Remove("a/b.txt"), os.ErrNotExist)
}

func TestWalk(t *testing.T) {
	l := newTestLocal(t)
	writeFile(t, l.Root(), "2024/01/a.jpg", "aa")
	writeFile(t, l.Root(), "2024/02/b.png", "bbb")
	writeFile(t, l.Root(), "top.pdf", "p")
	writeFile(t, l.Root(), ".gitkeep", "")
	writeFile(t, l.Root(), ".cache/hidden.bin", "h")
	require.NoError(t, os.MkdirAll(filepath.Join(l.Root(), "empty"), 0o755))

	entries, err := l.Walk(context.Background())
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{".cache/hidden.bin", ".gitkeep", "2024/01/a.jpg", "2024/02/b.png", "top.pdf"}, paths)
}

func TestWalkSkipsLockFileInsideRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")
	l, err := NewLocal(root, filepath.Join(root, ".lock"), logger.Nop())
	require.NoError(t, err)
	require.NoError(t, l.Lock())
	t.Cleanup(func() { _ = l.Unlock() })
	writeFile(t, l.Root(), ".other", "o")

	entries, err := l.Walk(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".other", entries[0].Path)
}

func TestWalkMissingRoot(t *testing.T) {
	l := newTestLocal(t)
	require.NoError(t, os.RemoveAll(l.Root()))

	_, err := l.Walk(context.Background())
	assert.Error(t, err)
}

func TestPruneEmptyDirs(t *testing.T) {
	l := newTestLocal(t)
	require.NoError(t, os.MkdirAll(filepath.Join(l.Root(), "a", "b", "c"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(l.Root(), "x"), 0o755))
	writeFile(t, l.Root(), "keep/file.txt", "k")
	require.NoError(t, os.MkdirAll(filepath.Join(l.Root(), "keep", "empty"), 0o755))

	removed, errs := l.PruneEmptyDirs(context.Background())
	assert.Empty(t, errs)
	// a/b/c, a/b, a, x, keep/empty
	assert.Equal(t, 5, removed)

	assert.DirExists(t, l.Root())
	assert.DirExists(t, filepath.Join(l.Root(), "keep"))
	assert.NoDirExists(t, filepath.Join(l.Root(), "a"))

	removed, errs = l.PruneEmptyDirs(context.Background())
	assert.Empty(t, errs)
	assert.Zero(t, removed)
}

func TestPruneEmptyDirsIncludesDotDirs(t *testing.T) {
	l := newTestLocal(t)
	require.NoError(t, os.MkdirAll(filepath.Join(l.Root(), ".cache", "thumbs"), 0o755))

	removed, errs := l.PruneEmptyDirs(context.Background())
	assert.Empty(t, errs)
	assert.Equal(t, 2, removed)
	assert.NoDirExists(t, filepath.Join(l.Root(), ".cache"))
}

func TestLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "locks", "media.lock")

	first, err := NewLocal(filepath.Join(dir, "media"), lockPath, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Lock())
	t.Cleanup(func() { _ = first.Unlock() })

	second, err := NewLocal(filepath.Join(dir, "media"), lockPath, logger.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, second.Lock(), ErrLocked)

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
}
