package biz

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPageLimit = 30
	MaxPageLimit     = 200

	entityMedia = "media"
)

// PageRequest is a listing window. Use NewPageRequest to clamp raw input.
type PageRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPageRequest clamps limit to [1, MaxPageLimit] (DefaultPageLimit when
// unset) and offset to >= 0
func NewPageRequest(limit, offset int) PageRequest {
	switch {
	case limit == 0:
		limit = DefaultPageLimit
	case limit < 1:
		limit = 1
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return PageRequest{Limit: limit, Offset: offset}
}

// Pagination describes the window around a listing
type Pagination struct {
	Limit          int   `json:"limit"`
	Offset         int   `json:"offset"`
	HasPrevious    bool  `json:"has_previous"`
	PreviousOffset int   `json:"previous_offset"`
	HasNext        bool  `json:"has_next"`
	NextOffset     int   `json:"next_offset"`
	Start          int64 `json:"start"`
	End            int64 `json:"end"`
	TotalPages     int64 `json:"total_pages"`
}

// Paginate computes navigation for page over total rows
func Paginate(page PageRequest, total int64) Pagination {
	limit, offset := int64(page.Limit), int64(page.Offset)
	p := Pagination{
		Limit:          page.Limit,
		Offset:         page.Offset,
		HasPrevious:    offset > 0,
		PreviousOffset: max(0, page.Offset-page.Limit),
		HasNext:        offset+limit < total,
		NextOffset:     page.Offset + page.Limit,
		End:            min(offset+limit, total),
		TotalPages:     (max(total, 1) + limit - 1) / limit,
	}
	if total > 0 && offset < total {
		p.Start = offset + 1
	}
	return p
}

// MediaStats summarises the whole catalog
type MediaStats struct {
	TotalCount     int64  `json:"total_count"`
	TotalSize      int64  `json:"total_size"`
	TotalSizeHuman string `json:"total_size_human"`
	ShowingCount   int    `json:"showing_count"`
}

// MediaPage is one listing window with catalog stats
type MediaPage struct {
	Items      []*MediaFile
	Stats      MediaStats
	Pagination Pagination
}

// UploadResult is the outcome of an upload and its follow-up sweep
type UploadResult struct {
	Media      *MediaFile
	Cleanup    *CleanupSummary // nil when no sweep ran or it failed
	Pagination PageRequest
}

// MediaUseCase is the admin-facing media API
type MediaUseCase struct {
	repo               MediaRepo
	store              FileStore
	ingestor           *Ingestor
	reconciler         *Reconciler
	audit              auditbiz.Sink
	observer           Observer
	logger             *logger.Logger
	cleanupAfterUpload bool

	sweeps singleflight.Group
}

// NewMediaUseCase wires the media use cases and points the reconciler at the
// ingestor's guard; observer may be nil
func NewMediaUseCase(repo MediaRepo, store FileStore, ingestor *Ingestor, reconciler *Reconciler, audit auditbiz.Sink, observer Observer, cleanupAfterUpload bool, log *logger.Logger) *MediaUseCase {
	if observer == nil {
		observer = nopObserver{}
	}
	if ingestor != nil && reconciler != nil {
		reconciler.guard = ingestor.guard
	}
	return &MediaUseCase{
		repo:               repo,
		store:              store,
		ingestor:           ingestor,
		reconciler:         reconciler,
		audit:              audit,
		observer:           observer,
		logger:             log.Named("media"),
		cleanupAfterUpload: cleanupAfterUpload,
	}
}

// List returns a window of the catalog, newest first
func (uc *MediaUseCase) List(ctx context.Context, page PageRequest) (*MediaPage, error) {
	page = NewPageRequest(page.Limit, page.Offset)

	items, err := uc.repo.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	total, err := uc.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count media: %w", err)
	}
	size, err := uc.repo.SumSizeBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum media size: %w", err)
	}

	return &MediaPage{
		Items: items,
		Stats: MediaStats{
			TotalCount:     total,
			TotalSize:      size,
			TotalSizeHuman: FormatBytes(size),
			ShowingCount:   len(items),
		},
		Pagination: Paginate(page, total),
	}, nil
}

// Get returns one record
func (uc *MediaUseCase) Get(ctx context.Context, id int64) (*MediaFile, error) {
	if id <= 0 {
		return nil, ErrMediaNotFound
	}
	return uc.repo.Get(ctx, id)
}

// Upload ingests a file and, when configured, sweeps the store afterwards.
// A failed sweep does not fail the upload.
func (uc *MediaUseCase) Upload(ctx context.Context, actor auditbiz.Actor, up RawUpload, page PageRequest) (*UploadResult, error) {
	record, err := uc.ingestor.Ingest(ctx, up)
	if err != nil {
		return nil, err
	}

	uc.audit.Record(ctx, actor, "media_uploaded", entityMedia, auditbiz.Int64Ptr(record.ID), map[string]any{
		"filename": record.OriginalFilename,
		"mime":     record.MimeType,
		"size":     record.SizeBytes,
	})

	result := &UploadResult{
		Media:      record,
		Pagination: NewPageRequest(page.Limit, page.Offset),
	}

	if uc.cleanupAfterUpload {
		summary, err := uc.sweep(ctx)
		if err != nil {
			uc.logger.WithContext(ctx).Warn("post-upload housekeeping failed", zap.Error(err))
		} else {
			result.Cleanup = summary
		}
	}
	return result, nil
}

// Delete removes the file and then the record. Both are attempted; any
// failure is collected into a *DeleteError and audited.
func (uc *MediaUseCase) Delete(ctx context.Context, actor auditbiz.Actor, id int64) (err error) {
	start := time.Now()
	defer func() {
		uc.observer.RecordDelete(time.Since(start), err)
	}()

	record, err := uc.Get(ctx, id)
	if err != nil {
		return err
	}

	var problems []string
	if err := uc.store.Remove(record.StoragePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		uc.logger.WithContext(ctx).Error("failed to remove media file", zap.Int64("media_id", id), zap.Error(err))
		problems = append(problems, "unable to remove file from storage")
	}
	if _, err := uc.repo.Delete(ctx, id); err != nil {
		uc.logger.WithContext(ctx).Error("failed to remove media record", zap.Int64("media_id", id), zap.Error(err))
		problems = append(problems, "failed to remove media record")
	}

	if len(problems) > 0 {
		uc.audit.Record(ctx, actor, "media_delete_failed", entityMedia, auditbiz.Int64Ptr(id), map[string]any{"errors": problems})
		return &DeleteError{ID: id, Errors: problems}
	}

	uc.audit.Record(ctx, actor, "media_deleted", entityMedia, auditbiz.Int64Ptr(id), map[string]any{"filename": record.OriginalFilename})
	return nil
}

// Cleanup runs a reconciliation sweep and audits its summary
func (uc *MediaUseCase) Cleanup(ctx context.Context, actor auditbiz.Actor) (*CleanupSummary, error) {
	summary, err := uc.sweep(ctx)
	if err != nil {
		return nil, err
	}
	uc.audit.Record(ctx, actor, "media_housekeeping", entityMedia, nil, summary.AuditMetadata())
	return summary, nil
}

// sweep collapses concurrent reconciliation requests into one pass
func (uc *MediaUseCase) sweep(ctx context.Context) (*CleanupSummary, error) {
	v, err, shared := uc.sweeps.Do("reconcile", func() (any, error) {
		return uc.reconciler.Reconcile(context.WithoutCancel(ctx))
	})
	if shared {
		uc.logger.WithContext(ctx).Debug("joined running reconciliation")
	}
	if err != nil {
		return nil, err
	}
	return v.(*CleanupSummary), nil
}
