package biz

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/markdown"
	"go.uber.org/zap"
)

const (
	entityPost = "post"

	// slugAttempts bounds the allocate-then-write loop when concurrent
	// writers keep claiming the chosen slug
	slugAttempts = 8

	PreviewRunes         = 200
	MetaDescriptionRunes = 160
	PreviewFallback      = "Preview is not available."

	DefaultPerPage = 5
	MaxPerPage     = 50
)

// DefaultReservedSlugs are paths a post may not be served under
var DefaultReservedSlugs = []string{
	"index", "post", "post_slug", "posts", "admin", "about", "contact",
	"assets", "media", "uploads", "vendor", "api", "health", "metrics",
}

// PostSummary is a list entry
type PostSummary struct {
	*Post
	Preview string
}

// PostPage is one page of the public listing
type PostPage struct {
	Items      []PostSummary
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

// PostDetail is a post prepared for display
type PostDetail struct {
	*Post
	ContentHTML     string
	MetaTitle       string
	MetaDescription string
}

// PostUseCase admin and public post operations
type PostUseCase struct {
	repo      PostRepo
	allocator *SlugAllocator
	renderer  *markdown.Renderer
	audit     auditbiz.Sink
	reserved  map[string]struct{}
	logger    *logger.Logger
}

func NewPostUseCase(repo PostRepo, renderer *markdown.Renderer, audit auditbiz.Sink, reservedSlugs []string, log *logger.Logger) *PostUseCase {
	if reservedSlugs == nil {
		reservedSlugs = DefaultReservedSlugs
	}
	reserved := make(map[string]struct{}, len(reservedSlugs))
	for _, s := range reservedSlugs {
		reserved[strings.ToLower(s)] = struct{}{}
	}
	return &PostUseCase{
		repo:      repo,
		allocator: NewSlugAllocator(repo),
		renderer:  renderer,
		audit:     audit,
		reserved:  reserved,
		logger:    log.Named("post"),
	}
}

// Create validates the input and stores a new post under a free slug
func (uc *PostUseCase) Create(ctx context.Context, actor auditbiz.Actor, in PostInput) (*Post, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	post := &Post{
		Title:           in.Title,
		Category:        in.Category,
		Content:         in.Content,
		ArticleImage:    in.ArticleImage,
		MetaTitle:       in.MetaTitle,
		MetaDescription: in.MetaDescription,
	}
	if in.CreatedAt != nil {
		post.CreatedAt = *in.CreatedAt
	}
	source := in.Slug
	if source == "" {
		source = in.Title
	}

	err := uc.writeWithSlug(ctx, source, nil, func(slug string) error {
		post.Slug = slug
		return uc.repo.Create(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	uc.audit.Record(ctx, actor, "post_created", entityPost, auditbiz.Int64Ptr(post.ID), map[string]any{
		"title": post.Title,
		"slug":  post.Slug,
	})
	return post, nil
}

// Update edits a post. An unchanged explicit slug is kept; otherwise the slug
// is re-allocated from the explicit slug or the title, ignoring the post's
// own current slug.
func (uc *PostUseCase) Update(ctx context.Context, actor auditbiz.Actor, id int64, in PostInput) (*Post, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	post, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSlug := post.Slug

	post.Title = in.Title
	post.Category = in.Category
	post.Content = in.Content
	post.ArticleImage = in.ArticleImage
	post.MetaTitle = in.MetaTitle
	post.MetaDescription = in.MetaDescription
	if in.CreatedAt != nil {
		post.CreatedAt = *in.CreatedAt
	}

	if in.Slug != "" && in.Slug == oldSlug {
		err = uc.repo.Update(ctx, post)
	} else {
		source := in.Slug
		if source == "" {
			source = in.Title
		}
		err = uc.writeWithSlug(ctx, source, &id, func(slug string) error {
			post.Slug = slug
			return uc.repo.Update(ctx, post)
		})
	}
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"title": post.Title, "slug": post.Slug}
	if post.Slug != oldSlug {
		meta["previous_slug"] = oldSlug
	}
	uc.audit.Record(ctx, actor, "post_updated", entityPost, auditbiz.Int64Ptr(id), meta)
	return post, nil
}

// writeWithSlug allocates a slug and runs write, allocating again when the
// unique constraint rejects it
func (uc *PostUseCase) writeWithSlug(ctx context.Context, source string, excludeID *int64, write func(slug string) error) error {
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		slug, err := uc.allocator.Allocate(ctx, source, excludeID)
		if err != nil {
			return err
		}
		err = write(slug)
		if !errors.Is(err, ErrSlugTaken) {
			return err
		}
		uc.logger.WithContext(ctx).Info("slug claimed concurrently, retrying",
			zap.String("slug", slug),
			zap.Int("attempt", attempt))
	}
	return ErrSlugExhausted
}

// Delete removes a post
func (uc *PostUseCase) Delete(ctx context.Context, actor auditbiz.Actor, id int64) error {
	post, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := uc.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrPostNotFound
	}
	uc.audit.Record(ctx, actor, "post_deleted", entityPost, auditbiz.Int64Ptr(id), map[string]any{
		"title": post.Title,
		"slug":  post.Slug,
	})
	return nil
}

// Get returns a post for editing
func (uc *PostUseCase) Get(ctx context.Context, id int64) (*Post, error) {
	if id <= 0 {
		return nil, ErrPostNotFound
	}
	return uc.repo.GetByID(ctx, id)
}

// List returns a page of posts, newest first, with plain-text previews
func (uc *PostUseCase) List(ctx context.Context, filter ListFilter) (*PostPage, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Category = strings.TrimSpace(filter.Category)
	filter.PerPage = clamp(filter.PerPage, DefaultPerPage, MaxPerPage)
	if filter.Page < 1 {
		filter.Page = 1
	}

	posts, total, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]PostSummary, 0, len(posts))
	for _, p := range posts {
		items = append(items, PostSummary{
			Post:    p,
			Preview: uc.renderer.Preview(p.Content, PreviewRunes, PreviewFallback),
		})
	}
	return &PostPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: int((total + int64(filter.PerPage) - 1) / int64(filter.PerPage)),
	}, nil
}

// GetBySlug returns a rendered post. Reserved slugs are never served.
func (uc *PostUseCase) GetBySlug(ctx context.Context, slug string) (*PostDetail, error) {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" || uc.IsReserved(slug) {
		return nil, ErrPostNotFound
	}

	post, err := uc.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	html, err := uc.renderer.HTML(post.Content)
	if err != nil {
		return nil, err
	}
	detail := &PostDetail{
		Post:            post,
		ContentHTML:     html,
		MetaTitle:       post.MetaTitle,
		MetaDescription: post.MetaDescription,
	}
	if detail.MetaTitle == "" {
		detail.MetaTitle = post.Title
	}
	if detail.MetaDescription == "" {
		detail.MetaDescription = firstRunes(uc.renderer.PlainText(post.Content), MetaDescriptionRunes)
	}
	return detail, nil
}

// IsReserved reports whether slug names a system path. A trailing .php or
// .html is ignored.
func (uc *PostUseCase) IsReserved(slug string) bool {
	s := strings.ToLower(slug)
	for _, ext := range []string{".php", ".html"} {
		s = strings.TrimSuffix(s, ext)
	}
	_, ok := uc.reserved[s]
	return ok
}

// Categories lists distinct categories alphabetically
func (uc *PostUseCase) Categories(ctx context.Context) ([]string, error) {
	return uc.repo.Categories(ctx)
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

func clamp(v, def, upper int) int {
	switch {
	case v <= 0:
		return def
	case v > upper:
		return upper
	}
	return v
}
