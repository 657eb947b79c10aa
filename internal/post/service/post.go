package service

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/blog-backend/internal/auth/middleware"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/response"
	"github.com/lk2023060901/blog-backend/internal/post/biz"
	"go.uber.org/zap"
)

// Config is the public-facing post configuration
type Config struct {
	BaseURL  string         // canonical site URL, no trailing slash
	Location *time.Location // dates are shown in this zone; nil means UTC
}

// PostService public and admin post endpoints
type PostService struct {
	uc     *biz.PostUseCase
	cfg    Config
	logger *logger.Logger
}

func NewPostService(uc *biz.PostUseCase, cfg Config, log *logger.Logger) *PostService {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PostService{uc: uc, cfg: cfg, logger: log}
}

// ListPosts GET /api/v1/posts
func (s *PostService) ListPosts(c *gin.Context) {
	var req ListPostsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	page, err := s.uc.List(c.Request.Context(), biz.ListFilter{
		Page:     req.Page,
		PerPage:  req.PerPage,
		Category: req.Category,
		Search:   req.Search,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]PostSummaryResponse, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, PostSummaryResponse{
			ID:          p.ID,
			Title:       p.Title,
			Slug:        p.Slug,
			URL:         "/" + p.Slug,
			Category:    p.Category,
			CategoryURL: "/api/v1/posts?category=" + url.QueryEscape(p.Category),
			Date:        p.CreatedAt.In(s.cfg.Location).Format(time.DateOnly),
			Preview:     p.Preview,
		})
	}
	response.Success(c, ListPostsResponse{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages,
	})
}

// GetPost GET /api/v1/posts/:slug
func (s *PostService) GetPost(c *gin.Context) {
	detail, err := s.uc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	updated := detail.UpdatedAt
	if updated.IsZero() {
		updated = detail.CreatedAt
	}
	response.Success(c, PostDetailResponse{
		ID:              detail.ID,
		Title:           detail.Title,
		Slug:            detail.Slug,
		Category:        detail.Category,
		Date:            detail.CreatedAt.In(s.cfg.Location).Format(time.DateOnly),
		ContentHTML:     detail.ContentHTML,
		MetaTitle:       detail.MetaTitle,
		MetaDescription: detail.MetaDescription,
		ArticleImage:    s.absoluteURL(detail.ArticleImage),
		CanonicalURL:    s.cfg.BaseURL + "/" + detail.Slug,
		DatePublished:   detail.CreatedAt.Format(time.RFC3339),
		DateModified:    updated.Format(time.RFC3339),
	})
}

// ListCategories GET /api/v1/categories
func (s *PostService) ListCategories(c *gin.Context) {
	categories, err := s.uc.Categories(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	response.Success(c, gin.H{"items": categories})
}

// AdminGetPost GET /api/v1/admin/posts/:id
func (s *PostService) AdminGetPost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	post, err := s.uc.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toPostResponse(post))
}

// CreatePost POST /api/v1/admin/posts
func (s *PostService) CreatePost(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	post, err := s.uc.Create(c.Request.Context(), middleware.Actor(c), req.toInput())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Created(c, toPostResponse(post))
}

// UpdatePost PUT /api/v1/admin/posts/:id
func (s *PostService) UpdatePost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	post, err := s.uc.Update(c.Request.Context(), middleware.Actor(c), id, req.toInput())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toPostResponse(post))
}

// DeletePost DELETE /api/v1/admin/posts/:id
func (s *PostService) DeletePost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	if err := s.uc.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "deleted": true})
}

func (s *PostService) absoluteURL(ref string) string {
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref
	}
	return s.cfg.BaseURL + "/" + strings.TrimLeft(ref, "/")
}

func (s *PostService) handleError(c *gin.Context, err error) {
	var validation *biz.ValidationError
	switch {
	case errors.As(err, &validation):
		response.ErrorWithCode(c, apperrors.ErrPostInvalidInput, strings.Join(validation.Problems, "; "))
	case errors.Is(err, biz.ErrPostNotFound):
		response.ErrorWithCode(c, apperrors.ErrPostNotFound)
	case errors.Is(err, biz.ErrSlugExhausted):
		response.ErrorWithCode(c, apperrors.ErrPostSlugConflict)
	default:
		s.logger.WithContext(c.Request.Context()).Error("post request failed", zap.Error(err))
		response.HandleError(c, err)
	}
}

func postID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ErrorWithCode(c, apperrors.ErrPostNotFound)
		return 0, false
	}
	return id, true
}
