package service

import (
	"time"

	"github.com/lk2023060901/blog-backend/internal/media/biz"
)

// MediaResponse is a catalog record as shown to admins
type MediaResponse struct {
	ID               int64     `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	StoragePath      string    `json:"storage_path"`
	URL              string    `json:"url"`
	MimeType         string    `json:"mime_type"`
	SizeBytes        int64     `json:"size_bytes"`
	SizeHuman        string    `json:"size_human"`
	Width            *int      `json:"width"`
	Height           *int      `json:"height"`
	IsImage          bool      `json:"is_image"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListMediaResponse GET /api/v1/admin/media
type ListMediaResponse struct {
	Items      []MediaResponse `json:"items"`
	Stats      biz.MediaStats  `json:"stats"`
	Pagination biz.Pagination  `json:"pagination"`
}

// UploadMediaResponse POST /api/v1/admin/media
type UploadMediaResponse struct {
	Media      MediaResponse       `json:"media"`
	Cleanup    *biz.CleanupSummary `json:"cleanup"`
	Pagination biz.PageRequest     `json:"pagination"`
}

// CleanupResponse POST /api/v1/admin/media/cleanup
type CleanupResponse struct {
	Cleanup    *biz.CleanupSummary `json:"cleanup"`
	Pagination biz.PageRequest     `json:"pagination"`
}
