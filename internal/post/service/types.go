package service

import (
	"time"

	"github.com/lk2023060901/blog-backend/internal/post/biz"
)

// ListPostsRequest public listing query
type ListPostsRequest struct {
	Page     int    `form:"page"`
	PerPage  int    `form:"per_page"`
	Category string `form:"category" binding:"max=100"`
	Search   string `form:"search" binding:"max=200"`
}

// PostRequest admin create or edit body
type PostRequest struct {
	Title           string     `json:"title" binding:"required"`
	Category        string     `json:"category" binding:"required"`
	Content         string     `json:"content" binding:"required"`
	ArticleImage    string     `json:"article_image"`
	Slug            string     `json:"slug"`
	MetaTitle       string     `json:"meta_title"`
	MetaDescription string     `json:"meta_description"`
	CreatedAt       *time.Time `json:"created_at"`
}

func (r *PostRequest) toInput() biz.PostInput {
	return biz.PostInput{
		Title:           r.Title,
		Category:        r.Category,
		Content:         r.Content,
		ArticleImage:    r.ArticleImage,
		Slug:            r.Slug,
		MetaTitle:       r.MetaTitle,
		MetaDescription: r.MetaDescription,
		CreatedAt:       r.CreatedAt,
	}
}

// PostResponse full post for the admin editor
type PostResponse struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	Content         string    `json:"content"`
	ArticleImage    string    `json:"article_image"`
	Slug            string    `json:"slug"`
	MetaTitle       string    `json:"meta_title"`
	MetaDescription string    `json:"meta_description"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toPostResponse(p *biz.Post) PostResponse {
	return PostResponse{
		ID:              p.ID,
		Title:           p.Title,
		Category:        p.Category,
		Content:         p.Content,
		ArticleImage:    p.ArticleImage,
		Slug:            p.Slug,
		MetaTitle:       p.MetaTitle,
		MetaDescription: p.MetaDescription,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// PostSummaryResponse public list entry
type PostSummaryResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	CategoryURL string `json:"category_url"`
	Date        string `json:"date"`
	Preview     string `json:"preview"`
}

// ListPostsResponse public listing
type ListPostsResponse struct {
	Items      []PostSummaryResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PerPage    int                   `json:"per_page"`
	TotalPages int                   `json:"total_pages"`
}

// PostDetailResponse public post page
type PostDetailResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	Category        string `json:"category"`
	Date            string `json:"date"`
	ContentHTML     string `json:"content_html"`
	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
	ArticleImage    string `json:"article_image,omitempty"`
	CanonicalURL    string `json:"canonical_url"`
	DatePublished   string `json:"date_published"`
	DateModified    string `json:"date_modified"`
}
