package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/blog-backend/internal/media/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/database"
)

// MediaFilePO media_files row
type MediaFilePO struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	Filename         string    `gorm:"size:255;not null;uniqueIndex"`
	OriginalFilename string    `gorm:"size:255;not null"`
	StoragePath      string    `gorm:"size:512;not null;index"`
	MimeType         string    `gorm:"size:128;not null"`
	SizeBytes        int64     `gorm:"not null;default:0"`
	Width            *int
	Height           *int
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (MediaFilePO) TableName() string {
	return "media_files"
}

func (po *MediaFilePO) toBiz() *biz.MediaFile {
	return &biz.MediaFile{
		ID:               po.ID,
		Filename:         po.Filename,
		OriginalFilename: po.OriginalFilename,
		StoragePath:      po.StoragePath,
		MimeType:         po.MimeType,
		SizeBytes:        po.SizeBytes,
		Width:            po.Width,
		Height:           po.Height,
		CreatedAt:        po.CreatedAt,
		UpdatedAt:        po.UpdatedAt,
	}
}

// MediaRepo is the gorm-backed media catalog
type MediaRepo struct {
	db *database.DB
}

// NewMediaRepo creates the media catalog repository
func NewMediaRepo(db *database.DB) biz.MediaRepo {
	return &MediaRepo{db: db}
}

// Insert adds a record and returns its id
func (r *MediaRepo) Insert(ctx context.Context, record *biz.MediaFile) (int64, error) {
	po := &MediaFilePO{
		Filename:         record.Filename,
		OriginalFilename: record.OriginalFilename,
		StoragePath:      record.StoragePath,
		MimeType:         record.MimeType,
		SizeBytes:        record.SizeBytes,
		Width:            record.Width,
		Height:           record.Height,
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return 0, fmt.Errorf("insert media record: %w", err)
	}
	record.CreatedAt = po.CreatedAt
	record.UpdatedAt = po.UpdatedAt
	return po.ID, nil
}

// Get returns biz.ErrMediaNotFound for unknown ids
func (r *MediaRepo) Get(ctx context.Context, id int64) (*biz.MediaFile, error) {
	var po MediaFilePO
	if err := r.db.WithContext(ctx).First(&po, id).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrMediaNotFound
		}
		return nil, fmt.Errorf("get media record: %w", err)
	}
	return po.toBiz(), nil
}

// List returns records newest first
func (r *MediaRepo) List(ctx context.Context, limit, offset int) ([]*biz.MediaFile, error) {
	var pos []MediaFilePO
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("list media records: %w", err)
	}

	records := make([]*biz.MediaFile, 0, len(pos))
	for i := range pos {
		records = append(records, pos[i].toBiz())
	}
	return records, nil
}

func (r *MediaRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&MediaFilePO{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count media records: %w", err)
	}
	return n, nil
}

func (r *MediaRepo) SumSizeBytes(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&MediaFilePO{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum media sizes: %w", err)
	}
	return total, nil
}

// Delete reports whether a row was removed
func (r *MediaRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&MediaFilePO{}, id)
	if res.Error != nil {
		return false, fmt.Errorf("delete media record: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListStoragePaths returns every record's id and path
func (r *MediaRepo) ListStoragePaths(ctx context.Context) ([]biz.StoredPath, error) {
	var paths []biz.StoredPath
	err := r.db.WithContext(ctx).
		Model(&MediaFilePO{}).
		Select("id", "storage_path").
		Order("id").
		Scan(&paths).Error
	if err != nil {
		return nil, fmt.Errorf("list media storage paths: %w", err)
	}
	return paths, nil
}
