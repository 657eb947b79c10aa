package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/blog-backend/internal/auth/middleware"
	"github.com/lk2023060901/blog-backend/internal/media/biz"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	uploadField = "media_file"
	// room for multipart headers and the pagination fields
	multipartOverhead = 1 << 20
)

// Config is the HTTP-facing media configuration
type Config struct {
	PublicPrefix   string // URL prefix the storage root is served under
	TempDir        string // uploads are spooled here; empty means os.TempDir
	MaxUploadBytes int64
}

// MediaService admin media endpoints
type MediaService struct {
	uc     *biz.MediaUseCase
	cfg    Config
	logger *logger.Logger
}

func NewMediaService(uc *biz.MediaUseCase, cfg Config, log *logger.Logger) *MediaService {
	cfg.PublicPrefix = "/" + strings.Trim(cfg.PublicPrefix, "/")
	return &MediaService{uc: uc, cfg: cfg, logger: log}
}

// ListMedia GET /api/v1/admin/media?limit=&offset=
func (s *MediaService) ListMedia(c *gin.Context) {
	page, err := pageFromRequest(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := s.uc.List(c.Request.Context(), page)
	if err != nil {
		s.handleError(c, err, apperrors.ErrInternalServer)
		return
	}

	items := make([]MediaResponse, 0, len(result.Items))
	for _, m := range result.Items {
		items = append(items, s.toMediaResponse(m))
	}
	response.Success(c, ListMediaResponse{
		Items:      items,
		Stats:      result.Stats,
		Pagination: result.Pagination,
	})
}

// GetMedia GET /api/v1/admin/media/:id
func (s *MediaService) GetMedia(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	record, err := s.uc.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err, apperrors.ErrInternalServer)
		return
	}
	response.Success(c, s.toMediaResponse(record))
}

// UploadMedia POST /api/v1/admin/media (multipart, field media_file)
func (s *MediaService) UploadMedia(c *gin.Context) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	}

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ErrorWithCode(c, apperrors.ErrMediaInvalidUpload, fmt.Sprintf("file exceeds the %s limit", biz.FormatBytes(s.cfg.MaxUploadBytes)))
			return
		}
		response.ErrorWithCode(c, apperrors.ErrMediaInvalidUpload, "no file uploaded")
		return
	}

	page, err := pageFromRequest(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tmp, err := s.spool(fh)
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to spool upload", zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrMediaStorageFailed)
		return
	}
	// ingest moves the file on success; this only catches the failure paths
	defer os.Remove(tmp)

	result, err := s.uc.Upload(c.Request.Context(), middleware.Actor(c), biz.RawUpload{
		TempPath:     tmp,
		OriginalName: path.Base(strings.ReplaceAll(fh.Filename, "\\", "/")),
		DeclaredSize: fh.Size,
		DeclaredMIME: fh.Header.Get("Content-Type"),
	}, page)
	if err != nil {
		s.handleError(c, err, apperrors.ErrMediaStorageFailed)
		return
	}

	response.Created(c, UploadMediaResponse{
		Media:      s.toMediaResponse(result.Media),
		Cleanup:    result.Cleanup,
		Pagination: result.Pagination,
	})
}

// DeleteMedia DELETE /api/v1/admin/media/:id
func (s *MediaService) DeleteMedia(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	if err := s.uc.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		s.handleError(c, err, apperrors.ErrMediaDeleteFailed)
		return
	}
	response.Success(c, gin.H{"id": id, "deleted": true})
}

// CleanupMedia POST /api/v1/admin/media/cleanup
func (s *MediaService) CleanupMedia(c *gin.Context) {
	page, err := pageFromRequest(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	summary, err := s.uc.Cleanup(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		s.handleError(c, err, apperrors.ErrMediaCleanupFailed)
		return
	}
	response.Success(c, CleanupResponse{Cleanup: summary, Pagination: page})
}

// spool copies the multipart part to a file the ingest pipeline can move
func (s *MediaService) spool(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(s.cfg.TempDir, "upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// handleError maps media errors; storageCode is used for *biz.StorageError
func (s *MediaService) handleError(c *gin.Context, err error, storageCode int) {
	var (
		validation *biz.ValidationError
		deleteErr  *biz.DeleteError
	)
	switch {
	case errors.As(err, &validation):
		response.ErrorWithCode(c, apperrors.ErrMediaInvalidUpload, validation.Reason)
	case errors.Is(err, biz.ErrMediaNotFound):
		response.ErrorWithCode(c, apperrors.ErrMediaNotFound)
	case errors.As(err, &deleteErr):
		response.ErrorWithCode(c, apperrors.ErrMediaDeleteFailed, strings.Join(deleteErr.Errors, "; "))
	case biz.IsStorage(err):
		s.logger.WithContext(c.Request.Context()).Error("media storage failure", zap.Error(err))
		response.ErrorWithCode(c, storageCode)
	default:
		s.logger.WithContext(c.Request.Context()).Error("media request failed", zap.Error(err))
		response.HandleError(c, err)
	}
}

func (s *MediaService) toMediaResponse(m *biz.MediaFile) MediaResponse {
	return MediaResponse{
		ID:               m.ID,
		Filename:         m.Filename,
		OriginalFilename: m.OriginalFilename,
		StoragePath:      m.StoragePath,
		URL:              path.Join(s.cfg.PublicPrefix, m.StoragePath),
		MimeType:         m.MimeType,
		SizeBytes:        m.SizeBytes,
		SizeHuman:        biz.FormatBytes(m.SizeBytes),
		Width:            m.Width,
		Height:           m.Height,
		IsImage:          strings.HasPrefix(m.MimeType, "image/"),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func mediaID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ErrorWithCode(c, apperrors.ErrMediaNotFound)
		return 0, false
	}
	return id, true
}

// pageFromRequest reads limit and offset from the form or the query string
func pageFromRequest(c *gin.Context) (biz.PageRequest, error) {
	limit, err := intParam(c, "limit")
	if err != nil {
		return biz.PageRequest{}, err
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return biz.PageRequest{}, err
	}
	return biz.NewPageRequest(limit, offset), nil
}

func intParam(c *gin.Context, name string) (int, error) {
	raw, ok := c.GetPostForm(name)
	if !ok {
		raw = c.Query(name)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}
