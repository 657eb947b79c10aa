package biz

import (
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"mime"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/saga"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

const maxExtensionLen = 10

// RawUpload is an upload already spooled to a temporary file
type RawUpload struct {
	TempPath     string
	OriginalName string
	DeclaredSize int64
	DeclaredMIME string
}

// IngestConfig is the upload policy
type IngestConfig struct {
	MaxUploadBytes   int64
	AllowedMimeTypes []string
	// VerifyContent sniffs the file and rejects it when the content does not
	// match the declared type
	VerifyContent bool
}

// Ingestor validates uploads and commits them to the store and the catalog
type Ingestor struct {
	cfg      IngestConfig
	repo     MediaRepo
	store    FileStore
	observer Observer
	logger   *logger.Logger
	now      func() time.Time
	// guard is held shared from store_file through insert_record; a sweep
	// holds it exclusively
	guard *sync.RWMutex
}

// NewIngestor creates an ingestor; observer may be nil
func NewIngestor(cfg IngestConfig, repo MediaRepo, store FileStore, observer Observer, log *logger.Logger) *Ingestor {
	if observer == nil {
		observer = nopObserver{}
	}
	allowed := make([]string, 0, len(cfg.AllowedMimeTypes))
	for _, m := range cfg.AllowedMimeTypes {
		allowed = append(allowed, normalizeMIME(m))
	}
	cfg.AllowedMimeTypes = allowed

	return &Ingestor{
		cfg:      cfg,
		repo:     repo,
		store:    store,
		observer: observer,
		logger:   log.Named("ingest"),
		now:      time.Now,
		guard:    &sync.RWMutex{},
	}
}

// Ingest stores the upload and returns the persisted record. A failed ingest
// leaves neither a file nor a record behind; the caller still owns TempPath.
func (in *Ingestor) Ingest(ctx context.Context, up RawUpload) (record *MediaFile, err error) {
	start := in.now()
	defer func() {
		in.observer.RecordIngest(in.now().Sub(start), up.DeclaredSize, err)
	}()

	mimeType, ext, err := in.validate(up)
	if err != nil {
		return nil, err
	}

	filename := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	rel := path.Join(start.UTC().Format("2006/01"), filename)
	record = &MediaFile{
		Filename:         filename,
		OriginalFilename: up.OriginalName,
		StoragePath:      rel,
		MimeType:         mimeType,
		SizeBytes:        up.DeclaredSize,
	}

	log := in.logger.WithContext(ctx).With(zap.String("storage_path", rel))

	s := saga.New("media_ingest", in.logger).
		Add(saga.Step{
			Name: "store_file",
			Do: func(ctx context.Context) error {
				return in.store.Put(ctx, up.TempPath, rel)
			},
			Compensate: func(ctx context.Context) error {
				if err := in.store.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				return nil
			},
		}).
		Add(saga.Step{
			Name: "probe_dimensions",
			Do: func(ctx context.Context) error {
				record.Width, record.Height = in.probeDimensions(rel, mimeType)
				return nil
			},
		}).
		Add(saga.Step{
			Name: "insert_record",
			Do: func(ctx context.Context) error {
				id, err := in.repo.Insert(ctx, record)
				if err != nil {
					return err
				}
				record.ID = id
				return nil
			},
		})

	in.guard.RLock()
	err = s.Run(ctx)
	in.guard.RUnlock()
	if err != nil {
		op, _ := saga.FailedStep(err)
		log.Error("media ingest failed", zap.String("step", op), zap.Error(err))
		return nil, &StorageError{Op: op, Err: errors.Unwrap(err)}
	}

	log.Info("media ingested",
		zap.Int64("media_id", record.ID),
		zap.String("mime_type", mimeType),
		zap.Int64("size_bytes", record.SizeBytes),
	)
	return record, nil
}

// validate checks the declared metadata and the temp file. It never writes.
func (in *Ingestor) validate(up RawUpload) (mimeType, ext string, err error) {
	if up.DeclaredSize <= 0 {
		return "", "", validationErrorf("file is empty")
	}
	if in.cfg.MaxUploadBytes > 0 && up.DeclaredSize > in.cfg.MaxUploadBytes {
		return "", "", validationErrorf("file is %s, the limit is %s", FormatBytes(up.DeclaredSize), FormatBytes(in.cfg.MaxUploadBytes))
	}

	mimeType = normalizeMIME(up.DeclaredMIME)
	if !slices.Contains(in.cfg.AllowedMimeTypes, mimeType) {
		return "", "", validationErrorf("file type %q is not allowed", up.DeclaredMIME)
	}

	info, err := os.Stat(up.TempPath)
	if err != nil {
		return "", "", &StorageError{Op: "stat_upload", Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", "", validationErrorf("upload is not a regular file")
	}
	if info.Size() != up.DeclaredSize {
		return "", "", validationErrorf("received %d bytes, expected %d", info.Size(), up.DeclaredSize)
	}

	ext = sanitizeExtension(path.Ext(strings.ReplaceAll(up.OriginalName, "\\", "/")))

	if in.cfg.VerifyContent || ext == "" {
		detected, err := mimetype.DetectFile(up.TempPath)
		if err != nil {
			return "", "", &StorageError{Op: "sniff_upload", Err: err}
		}
		if in.cfg.VerifyContent && !detected.Is(mimeType) {
			return "", "", validationErrorf("content looks like %s, not %s", detected.String(), mimeType)
		}
		if ext == "" {
			ext = detected.Extension()
		}
	}

	return mimeType, ext, nil
}

// probeDimensions reads the image header; failures leave dimensions unset
func (in *Ingestor) probeDimensions(rel, mimeType string) (*int, *int) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, nil
	}

	f, err := in.store.Open(rel)
	if err != nil {
		in.logger.Debug("cannot open stored file for probing", zap.String("path", rel), zap.Error(err))
		return nil, nil
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		in.logger.Debug("image dimensions unavailable", zap.String("path", rel), zap.Error(err))
		return nil, nil
	}
	return &cfg.Width, &cfg.Height
}

func normalizeMIME(m string) string {
	if parsed, _, err := mime.ParseMediaType(m); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// sanitizeExtension keeps short alphanumeric extensions and lowercases them
func sanitizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > maxExtensionLen {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}
