// Package markdown renders post bodies to HTML and extracts plain text for
// previews and meta descriptions.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const ellipsis = "..."

// Renderer converts markdown to HTML. Raw HTML in the source is dropped.
// Rendered output is memoized by source text.
type Renderer struct {
	md    goldmark.Markdown
	cache *lru.Cache[string, string]
}

// NewRenderer creates a renderer caching up to cacheSize documents; zero disables caching
func NewRenderer(cacheSize int) (*Renderer, error) {
	r := &Renderer{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create render cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// HTML renders source to HTML
func (r *Renderer) HTML(source string) (string, error) {
	if r.cache != nil {
		if html, ok := r.cache.Get(source); ok {
			return html, nil
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	html := buf.String()
	if r.cache != nil {
		r.cache.Add(source, html)
	}
	return html, nil
}

// PlainText returns the visible text of source with whitespace collapsed
func (r *Renderer) PlainText(source string) string {
	src := []byte(source)
	doc := r.md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}

// Truncate cuts s to at most limit runes, appending "..." when it was cut
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + ellipsis
}

// Preview returns up to limit runes of plain text, or fallback when the
// document has no visible text
func (r *Renderer) Preview(source string, limit int, fallback string) string {
	plain := r.PlainText(source)
	if plain == "" {
		return fallback
	}
	return Truncate(plain, limit)
}
