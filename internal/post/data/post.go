package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/blog-backend/internal/pkg/database"
	"github.com/lk2023060901/blog-backend/internal/post/biz"
	"gorm.io/gorm"
)

// PostPO posts row
type PostPO struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	Title           string    `gorm:"size:255;not null"`
	Category        string    `gorm:"size:100;not null;index"`
	Content         string    `gorm:"type:text;not null"`
	ArticleImage    string    `gorm:"size:512"`
	Slug            string    `gorm:"size:255;not null;uniqueIndex"`
	MetaTitle       string    `gorm:"size:255"`
	MetaDescription string    `gorm:"size:320"`
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (PostPO) TableName() string {
	return "posts"
}

func (po *PostPO) toBiz() *biz.Post {
	return &biz.Post{
		ID:              po.ID,
		Title:           po.Title,
		Category:        po.Category,
		Content:         po.Content,
		ArticleImage:    po.ArticleImage,
		Slug:            po.Slug,
		MetaTitle:       po.MetaTitle,
		MetaDescription: po.MetaDescription,
		CreatedAt:       po.CreatedAt,
		UpdatedAt:       po.UpdatedAt,
	}
}

// PostRepo gorm-backed posts
type PostRepo struct {
	db *database.DB
}

func NewPostRepo(db *database.DB) biz.PostRepo {
	return &PostRepo{db: db}
}

func (r *PostRepo) Create(ctx context.Context, post *biz.Post) error {
	po := &PostPO{
		Title:           post.Title,
		Category:        post.Category,
		Content:         post.Content,
		ArticleImage:    post.ArticleImage,
		Slug:            post.Slug,
		MetaTitle:       post.MetaTitle,
		MetaDescription: post.MetaDescription,
		CreatedAt:       post.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return biz.ErrSlugTaken
		}
		return fmt.Errorf("create post: %w", err)
	}
	post.ID = po.ID
	post.CreatedAt = po.CreatedAt
	post.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *PostRepo) Update(ctx context.Context, post *biz.Post) error {
	now := time.Now()
	updates := map[string]any{
		"title":            post.Title,
		"category":         post.Category,
		"content":          post.Content,
		"article_image":    post.ArticleImage,
		"slug":             post.Slug,
		"meta_title":       post.MetaTitle,
		"meta_description": post.MetaDescription,
		"updated_at":       now,
	}
	if !post.CreatedAt.IsZero() {
		updates["created_at"] = post.CreatedAt
	}

	res := r.db.WithContext(ctx).Model(&PostPO{}).Where("id = ?", post.ID).Updates(updates)
	if res.Error != nil {
		if database.IsDuplicateKeyError(res.Error) {
			return biz.ErrSlugTaken
		}
		return fmt.Errorf("update post: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return biz.ErrPostNotFound
	}
	post.UpdatedAt = now
	return nil
}

func (r *PostRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&PostPO{}, id)
	if res.Error != nil {
		return false, fmt.Errorf("delete post: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *PostRepo) GetByID(ctx context.Context, id int64) (*biz.Post, error) {
	var po PostPO
	if err := r.db.WithContext(ctx).First(&po, id).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return po.toBiz(), nil
}

func (r *PostRepo) GetBySlug(ctx context.Context, slug string) (*biz.Post, error) {
	var po PostPO
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrPostNotFound
		}
		return nil, fmt.Errorf("get post by slug: %w", err)
	}
	return po.toBiz(), nil
}

// List filters by search (title or content) or else by category, newest first
func (r *PostRepo) List(ctx context.Context, filter biz.ListFilter) ([]*biz.Post, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Search != "" {
			like := "%" + escapeLike(filter.Search) + "%"
			return db.Where("title LIKE ? ESCAPE '\\' OR content LIKE ? ESCAPE '\\'", like, like)
		}
		return database.WhereIf(filter.Category != "", "category = ?", filter.Category)(db)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&PostPO{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	var pos []PostPO
	err := r.db.WithContext(ctx).
		Scopes(scope, database.Paginate(filter.Page, filter.PerPage, biz.MaxPerPage)).
		Order("created_at DESC, id DESC").
		Find(&pos).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	posts := make([]*biz.Post, 0, len(pos))
	for i := range pos {
		posts = append(posts, pos[i].toBiz())
	}
	return posts, total, nil
}

func (r *PostRepo) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).
		Model(&PostPO{}).
		Distinct("category").
		Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// SlugExists probes the unique slug, ignoring excludeID
func (r *PostRepo) SlugExists(ctx context.Context, slug string, excludeID *int64) (bool, error) {
	db := r.db.DB
	if excludeID != nil {
		db = db.Where("id <> ?", *excludeID)
	}
	return database.Exists(ctx, db, &PostPO{}, "slug = ?", slug)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
