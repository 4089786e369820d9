package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"mime"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/shineum/mailshot-lite/internal/source"
)

// Sender identifies the configured From address.
type Sender struct {
	Email string
	Name  string
}

// BuildParams describes one message to build.
type BuildParams struct {
	To          string
	Subject     string
	HTML        string
	Attachments []string // local paths or s3:// locations
}

// Builder assembles per-recipient messages.
type Builder struct {
	sender Sender
	opener source.Opener
	policy *bluemonday.Policy
	now    func() time.Time
	logger *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the clock used for the Date header.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// WithLogger sets the logger used to report skipped attachments.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder for the given sender. Attachments are read through opener.
func NewBuilder(sender Sender, opener source.Opener, opts ...BuilderOption) *Builder {
	b := &Builder{
		sender: sender,
		opener: opener,
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates a message for one recipient. Attachments that do not
// resolve are skipped; any other read failure fails the build.
func (b *Builder) Build(ctx context.Context, p BuildParams) (*Message, error) {
	if strings.TrimSpace(p.To) == "" {
		return nil, ErrNoRecipient
	}
	if _, err := mail.ParseAddress(p.To); err != nil || strings.ContainsAny(p.To, "\r\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, p.To)
	}
	if b.sender.Email == "" {
		return nil, ErrNoSender
	}

	msg := &Message{
		MessageID: fmt.Sprintf("<%s@%s>", uuid.NewString(), senderDomain(b.sender.Email)),
		Date:      b.now(),
		From:      b.sender.Email,
		FromName:  b.sender.Name,
		To:        []string{p.To},
		Subject:   p.Subject,
		HTMLBody:  p.HTML,
		TextBody:  b.PlainText(p.HTML),
	}

	for _, location := range p.Attachments {
		att, err := b.loadAttachment(ctx, location)
		if errors.Is(err, ErrAttachmentMissing) {
			b.logger.DebugContext(ctx, "attachment skipped",
				"location", location,
				"to", p.To,
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	return msg, nil
}

// PlainText derives a text alternative from an HTML body.
func (b *Builder) PlainText(htmlBody string) string {
	stripped := html.UnescapeString(b.policy.Sanitize(htmlBody))

	lines := strings.Split(stripped, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func (b *Builder) loadAttachment(ctx context.Context, location string) (Attachment, error) {
	content, err := source.ReadAll(ctx, b.opener, location)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return Attachment{}, fmt.Errorf("%w: %s", ErrAttachmentMissing, location)
		}
		return Attachment{}, fmt.Errorf("failed to load attachment: %w", err)
	}

	name := source.Base(location)
	return Attachment{
		Filename:    name,
		ContentType: detectContentType(name, content),
		Content:     content,
	}, nil
}

// detectContentType guesses a MIME type from the extension, then the content.
func detectContentType(filename string, data []byte) string {
	if ext := filepath.Ext(filename); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}
