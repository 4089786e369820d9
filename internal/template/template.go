// Package template loads campaign email bodies.
//
// Templates are opaque text. Placeholders are left untouched here and
// substituted later by the personalize package.
package template

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/shineum/mailshot-lite/internal/source"
)

// ErrTemplateNotFound indicates the template location does not exist.
var ErrTemplateNotFound = errors.New("template not found")

// Format identifies how template text becomes an HTML body.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// markdown is shared; goldmark converters are safe for concurrent use.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Template is a loaded email body.
type Template struct {
	Name   string
	Text   string
	Format Format
}

// FormatFor infers the template format from a file extension.
func FormatFor(location string) Format {
	switch strings.ToLower(filepath.Ext(source.Base(location))) {
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatHTML
	}
}

// HTML converts personalized template content into an HTML body.
func (t Template) HTML(content string) (string, error) {
	if t.Format != FormatMarkdown {
		return content, nil
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown template %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Store loads templates through a source.Opener.
type Store struct {
	opener source.Opener
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(opener source.Opener, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{opener: opener, logger: logger}
}

// Load reads the template at location without modifying it.
func (s *Store) Load(ctx context.Context, location string) (Template, error) {
	data, err := source.ReadAll(ctx, s.opener, location)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, location)
		}
		return Template{}, fmt.Errorf("failed to load template: %w", err)
	}

	tmpl := Template{
		Name:   source.Base(location),
		Text:   string(data),
		Format: FormatFor(location),
	}

	s.logger.InfoContext(ctx, "template loaded",
		"name", tmpl.Name,
		"format", tmpl.Format,
		"bytes", len(data),
	)
	return tmpl, nil
}
