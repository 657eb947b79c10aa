package biz

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/lk2023060901/blog-backend/internal/media/storage"
)

// MediaFile is a catalog record describing one stored file
type MediaFile struct {
	ID               int64
	Filename         string
	OriginalFilename string
	StoragePath      string // relative to the storage root, slash separated
	MimeType         string
	SizeBytes        int64
	Width            *int
	Height           *int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StoredPath pairs a record id with its storage path
type StoredPath struct {
	ID          int64
	StoragePath string
}

// MediaRepo is the media catalog. Path fields are stored and returned verbatim.
type MediaRepo interface {
	// Insert stores record and returns the assigned id
	Insert(ctx context.Context, record *MediaFile) (int64, error)
	// Get returns ErrMediaNotFound when absent
	Get(ctx context.Context, id int64) (*MediaFile, error)
	// List returns records newest first
	List(ctx context.Context, limit, offset int) ([]*MediaFile, error)
	Count(ctx context.Context) (int64, error)
	// SumSizeBytes is 0 for an empty catalog
	SumSizeBytes(ctx context.Context) (int64, error)
	// Delete reports whether a row was removed; an absent id is not an error
	Delete(ctx context.Context, id int64) (bool, error)
	ListStoragePaths(ctx context.Context) ([]StoredPath, error)
}

// FileStore is the filesystem side of the media subsystem
type FileStore interface {
	Put(ctx context.Context, src, rel string) error
	Open(rel string) (*os.File, error)
	Stat(rel string) (fs.FileInfo, error)
	Remove(rel string) error
	Walk(ctx context.Context) ([]storage.Entry, error)
	PruneEmptyDirs(ctx context.Context) (int, []error)
}

// Observer receives timing and outcome of media operations
type Observer interface {
	RecordIngest(duration time.Duration, sizeBytes int64, err error)
	RecordDelete(duration time.Duration, err error)
	RecordReconcile(duration time.Duration, files, records, dirs int, err error)
}

type nopObserver struct{}

func (nopObserver) RecordIngest(time.Duration, int64, error)            {}
func (nopObserver) RecordDelete(time.Duration, error)                   {}
func (nopObserver) RecordReconcile(time.Duration, int, int, int, error) {}
