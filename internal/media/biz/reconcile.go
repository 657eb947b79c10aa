package biz

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/lk2023060901/blog-backend/internal/media/storage"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Skip kinds reported in a CleanupSummary
const (
	SkipFile      = "file"
	SkipRecord    = "record"
	SkipDirectory = "directory"
)

// CleanupSummary is the outcome of one reconciliation pass. Counts include
// successful removals only.
type CleanupSummary struct {
	RemovedFiles       int           `json:"removed_files"`
	RemovedRecords     int           `json:"removed_records"`
	RemovedDirectories int           `json:"removed_directories"`
	Skipped            []CleanupSkip `json:"skipped,omitempty"`
}

// CleanupSkip is one item the sweep could not remove
type CleanupSkip struct {
	Kind   string `json:"kind"`
	Path   string `json:"path,omitempty"`
	ID     int64  `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Empty reports whether nothing was removed
func (s *CleanupSummary) Empty() bool {
	return s.RemovedFiles == 0 && s.RemovedRecords == 0 && s.RemovedDirectories == 0
}

// AuditMetadata flattens the summary for the audit log
func (s *CleanupSummary) AuditMetadata() map[string]any {
	m := map[string]any{
		"removed_files":       s.RemovedFiles,
		"removed_records":     s.RemovedRecords,
		"removed_directories": s.RemovedDirectories,
	}
	if len(s.Skipped) > 0 {
		m["skipped"] = len(s.Skipped)
	}
	return m
}

// ReconcileConfig tunes the sweep
type ReconcileConfig struct {
	// OrphanGracePeriod spares unreferenced files modified more recently than
	// this before the sweep started
	OrphanGracePeriod time.Duration
}

// Reconciler brings the file store and the catalog back in line
type Reconciler struct {
	cfg      ReconcileConfig
	repo     MediaRepo
	store    FileStore
	observer Observer
	logger   *logger.Logger
	now      func() time.Time
	guard    *sync.RWMutex
}

// NewReconciler creates a reconciler; observer may be nil
func NewReconciler(cfg ReconcileConfig, repo MediaRepo, store FileStore, observer Observer, log *logger.Logger) *Reconciler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reconciler{
		cfg:      cfg,
		repo:     repo,
		store:    store,
		observer: observer,
		logger:   log.Named("reconcile"),
		now:      time.Now,
		guard:    &sync.RWMutex{},
	}
}

// Reconcile removes unreferenced files, records whose file is gone and empty
// directories.
//
// The pass holds the ingest guard exclusively, so no upload sits between
// storing its file and inserting its record while orphans are computed. The
// store is still walked before the catalog is read, which keeps records
// written outside an Ingestor safe as well. A record whose file the walk did
// not see is re-checked on disk before it is dropped.
//
// Only an unreadable root or catalog fails the call; per-item failures are
// reported in Skipped.
func (r *Reconciler) Reconcile(ctx context.Context) (summary *CleanupSummary, err error) {
	start := r.now()
	summary = &CleanupSummary{}
	defer func() {
		r.observer.RecordReconcile(r.now().Sub(start), summary.RemovedFiles, summary.RemovedRecords, summary.RemovedDirectories, err)
	}()
	log := r.logger.WithContext(ctx)

	r.guard.Lock()
	defer r.guard.Unlock()

	entries, err := r.store.Walk(ctx)
	if err != nil {
		return summary, &StorageError{Op: "walk_storage", Err: err}
	}

	refs, err := r.repo.ListStoragePaths(ctx)
	if err != nil {
		return summary, &StorageError{Op: "read_catalog", Err: err}
	}

	// catalog paths are compared in canonical form so that a row such as
	// "a//b.jpg" still claims the file the walk reports as "a/b.jpg"
	referenced := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		referenced[path.Clean(ref.StoragePath)] = struct{}{}
	}
	found := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		found[e.Path] = struct{}{}
	}

	for _, e := range entries {
		if _, ok := referenced[e.Path]; ok {
			continue
		}
		if r.cfg.OrphanGracePeriod > 0 && start.Sub(e.ModTime) < r.cfg.OrphanGracePeriod {
			log.Debug("sparing recent unreferenced file", zap.String("path", e.Path), zap.Time("mtime", e.ModTime))
			continue
		}
		if err := r.store.Remove(e.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Warn("failed to remove orphan file", zap.String("path", e.Path), zap.Error(err))
			summary.Skipped = append(summary.Skipped, CleanupSkip{Kind: SkipFile, Path: e.Path, Reason: err.Error()})
			continue
		}
		summary.RemovedFiles++
	}

	for _, ref := range refs {
		if _, ok := found[path.Clean(ref.StoragePath)]; ok {
			continue
		}
		missing, err := r.fileMissing(ctx, ref)
		if err != nil {
			log.Warn("cannot stat referenced file", zap.String("path", ref.StoragePath), zap.Error(err))
			summary.Skipped = append(summary.Skipped, CleanupSkip{Kind: SkipRecord, ID: ref.ID, Path: ref.StoragePath, Reason: err.Error()})
			continue
		}
		if !missing {
			continue
		}
		deleted, err := r.repo.Delete(ctx, ref.ID)
		if err != nil {
			log.Warn("failed to remove dangling record", zap.Int64("media_id", ref.ID), zap.Error(err))
			summary.Skipped = append(summary.Skipped, CleanupSkip{Kind: SkipRecord, ID: ref.ID, Path: ref.StoragePath, Reason: err.Error()})
			continue
		}
		if deleted {
			summary.RemovedRecords++
		}
	}

	dirs, dirErrs := r.store.PruneEmptyDirs(ctx)
	summary.RemovedDirectories = dirs
	for _, dirErr := range dirErrs {
		log.Warn("failed to prune directory", zap.Error(dirErr))
		summary.Skipped = append(summary.Skipped, CleanupSkip{Kind: SkipDirectory, Reason: dirErr.Error()})
	}

	log.Info("media reconciliation finished",
		zap.Int("removed_files", summary.RemovedFiles),
		zap.Int("removed_records", summary.RemovedRecords),
		zap.Int("removed_directories", summary.RemovedDirectories),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Duration("elapsed", r.now().Sub(start)),
	)
	return summary, nil
}

// fileMissing re-stats a record's file. Only a definite "does not exist"
// counts as missing; a path that cannot live under the root is an error so
// the record is reported rather than dropped.
func (r *Reconciler) fileMissing(ctx context.Context, ref StoredPath) (bool, error) {
	_, err := r.store.Stat(path.Clean(ref.StoragePath))
	switch {
	case err == nil:
		r.logger.WithContext(ctx).Debug("file appeared during sweep", zap.String("path", ref.StoragePath))
		return false, nil
	case errors.Is(err, storage.ErrInvalidPath):
		return false, fmt.Errorf("catalog path %q is outside the storage root: %w", ref.StoragePath, err)
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, err
	}
}
