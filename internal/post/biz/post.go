package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrPostNotFound = errors.New("post not found")
	// ErrSlugTaken is returned by the repository when the unique slug
	// constraint rejects a write
	ErrSlugTaken = errors.New("slug already taken")
	// ErrSlugExhausted means every retry lost a race for the slug
	ErrSlugExhausted = errors.New("could not allocate a unique slug")
)

// Post is a blog article; Content is markdown
type Post struct {
	ID              int64
	Title           string
	Category        string
	Content         string
	ArticleImage    string
	Slug            string
	MetaTitle       string
	MetaDescription string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListFilter selects a page of posts. Search wins over Category.
type ListFilter struct {
	Page     int
	PerPage  int
	Category string
	Search   string
}

// PostRepo persists posts. Create and Update return ErrSlugTaken when the
// slug is already used by another post.
type PostRepo interface {
	SlugProber
	Create(ctx context.Context, post *Post) error
	Update(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*Post, error)
	GetBySlug(ctx context.Context, slug string) (*Post, error)
	List(ctx context.Context, filter ListFilter) ([]*Post, int64, error)
	Categories(ctx context.Context) ([]string, error)
}

// PostInput is an admin create or edit form
type PostInput struct {
	Title           string
	Category        string
	Content         string
	ArticleImage    string
	Slug            string
	MetaTitle       string
	MetaDescription string
	CreatedAt       *time.Time // edits only; nil keeps the stored value
}

// ValidationError lists the problems of a PostInput
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid post: " + strings.Join(e.Problems, "; ")
}

func (in *PostInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.ArticleImage = strings.TrimSpace(in.ArticleImage)
	in.Slug = strings.TrimSpace(in.Slug)
	in.MetaTitle = strings.TrimSpace(in.MetaTitle)
	in.MetaDescription = strings.TrimSpace(in.MetaDescription)
}

func (in *PostInput) validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(in.Title != "", "title is required")
	check(utf8.RuneCountInString(in.Title) <= 255, "title must be at most 255 characters")
	check(in.Category != "", "category is required")
	check(utf8.RuneCountInString(in.Category) <= 100, "category must be at most 100 characters")
	check(strings.TrimSpace(in.Content) != "", "content is required")
	check(utf8.RuneCountInString(in.Slug) <= 200, "slug must be at most 200 characters")
	check(utf8.RuneCountInString(in.ArticleImage) <= 512, "article image must be at most 512 characters")
	check(utf8.RuneCountInString(in.MetaTitle) <= 255, "meta title must be at most 255 characters")
	check(utf8.RuneCountInString(in.MetaDescription) <= 320, "meta description must be at most 320 characters")

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
