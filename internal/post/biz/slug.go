package biz

import (
	"context"
	"fmt"

	"github.com/lk2023060901/blog-backend/internal/pkg/slug"
)

// SlugProber reports whether a slug is used by a post other than excludeID
type SlugProber interface {
	SlugExists(ctx context.Context, slug string, excludeID *int64) (bool, error)
}

// SlugAllocator turns free text into a slug no other post uses. The probe is
// advisory; the unique index on posts.slug is what settles a race.
type SlugAllocator struct {
	prober SlugProber
}

func NewSlugAllocator(prober SlugProber) *SlugAllocator {
	return &SlugAllocator{prober: prober}
}

// Allocate slugifies text and appends -1, -2, ... until the result is free
func (a *SlugAllocator) Allocate(ctx context.Context, text string, excludeID *int64) (string, error) {
	base := slug.Make(text)
	candidate := base
	for n := 1; ; n++ {
		taken, err := a.prober.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate = slug.WithSuffix(base, n)
	}
}
