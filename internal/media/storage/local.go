// Package storage keeps media files on the local filesystem under a single
// root directory. Paths handed in and out are slash-separated and relative to
// that root.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrInvalidPath is returned for absolute paths and paths escaping the root
	ErrInvalidPath = errors.New("storage: invalid relative path")
	// ErrLocked is returned when another process holds the storage lock
	ErrLocked = errors.New("storage: root is locked by another process")
	// ErrExists is returned when the destination of Put is already taken
	ErrExists = errors.New("storage: destination already exists")
)

// Entry is a regular file found under the root
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Local is a filesystem rooted store
type Local struct {
	root string
	lock *flock.Flock
	// lockPath is the absolute lock file path, empty without a lock
	lockPath string
	logger   *logger.Logger
	now      func() time.Time
}

// NewLocal creates the root directory if needed. lockPath may be empty.
func NewLocal(root, lockPath string, log *logger.Logger) (*Local, error) {
	if root == "" {
		return nil, errors.New("storage: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}

	l := &Local{
		root:   abs,
		logger: log.Named("storage"),
		now:    time.Now,
	}
	if lockPath != "" {
		absLock, err := filepath.Abs(lockPath)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve lock path: %w", err)
		}
		l.lockPath = absLock
		l.lock = flock.New(absLock)
	}
	return l, nil
}

// Root returns the absolute root directory
func (l *Local) Root() string {
	return l.root
}

// Lock takes the exclusive storage lock so that a second server pointed at
// the same root refuses to start
func (l *Local) Lock() error {
	if l.lock == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0o755); err != nil {
		return fmt.Errorf("storage: create lock dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("storage: acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	l.logger.Info("storage lock acquired", zap.String("lock", l.lock.Path()))
	return nil
}

// Unlock releases the storage lock
func (l *Local) Unlock() error {
	if l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Abs maps a relative path to its location on disk
func (l *Local) Abs(rel string) (string, error) {
	if rel == "" || strings.Contains(rel, "\\") || path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", ErrInvalidPath
	}
	clean := path.Clean(rel)
	if clean != rel || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Put moves the file at src to rel. The parent directories are created and,
// if a concurrent prune removes them before the move lands, created again
// once. The file's mtime is set to now so sweeps treat it as fresh.
func (l *Local) Put(ctx context.Context, src, rel string) error {
	dst, err := l.Abs(rel)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return ErrExists
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("storage: create directory: %w", err)
		}
		err = move(src, dst)
		if err == nil {
			break
		}
		if errors.Is(err, fs.ErrNotExist) && attempt == 0 {
			if _, statErr := os.Stat(src); statErr == nil {
				continue
			}
		}
		return fmt.Errorf("storage: move upload: %w", err)
	}

	now := l.now()
	if err := os.Chtimes(dst, now, now); err != nil {
		l.logger.Warn("failed to touch stored file", zap.String("path", rel), zap.Error(err))
	}
	return nil
}

func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Open opens a stored file for reading
func (l *Local) Open(rel string) (*os.File, error) {
	abs, err := l.Abs(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// Stat describes a stored file
func (l *Local) Stat(rel string) (fs.FileInfo, error) {
	abs, err := l.Abs(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

// Remove deletes a stored file. A missing file reports fs.ErrNotExist.
func (l *Local) Remove(rel string) error {
	abs, err := l.Abs(rel)
	if err != nil {
		return err
	}
	return os.Remove(abs)
}

// Walk lists every regular file under the root, dot-files included. Symlinks
// and the storage lock file are ignored. An unreadable root is an error; unreadable
// subdirectories are logged and skipped.
func (l *Local) Walk(ctx context.Context) ([]Entry, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root %s is not a directory", l.root)
	}

	var entries []Entry
	err = filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == l.root {
				return err
			}
			l.logger.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == l.root || !d.Type().IsRegular() || p == l.lockPath {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			// removed between listing and stat
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:    filepath.ToSlash(rel),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk root: %w", err)
	}
	return entries, nil
}

// PruneEmptyDirs removes empty directories below the root, deepest first so
// that a parent emptied by its children is removed in the same pass. The
// root itself is never removed. A directory that gains a file concurrently
// fails to remove and is left alone.
func (l *Local) PruneEmptyDirs(ctx context.Context) (int, []error) {
	var dirs []string
	walkErr := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != l.root {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() || p == l.root {
			return nil
		}
		dirs = append(dirs, p)
		return nil
	})
	if walkErr != nil {
		return 0, []error{fmt.Errorf("storage: walk root: %w", walkErr)}
	}

	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], string(os.PathSeparator)), strings.Count(dirs[j], string(os.PathSeparator))
		if di != dj {
			return di > dj
		}
		return dirs[i] > dirs[j]
	})

	removed := 0
	var errs []error
	for _, dir := range dirs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		err := os.Remove(dir)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist), isNotEmpty(err):
		default:
			errs = append(errs, fmt.Errorf("storage: remove directory %s: %w", dir, err))
		}
	}
	return removed, errs
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
