// Package resend implements a Provider backed by the Resend HTTP API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/provider"
)

// Config holds Resend credentials.
type Config struct {
	APIKey string
}

// API is the subset of the Resend emails service used by the provider.
type API interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Provider delivers messages through Resend.
type Provider struct {
	emails API
}

// New creates a Resend Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("resend: api key is required")
	}
	return NewWithClient(resend.NewClient(cfg.APIKey).Emails), nil
}

// NewWithClient creates a Provider with a custom emails client (useful for testing).
func NewWithClient(emails API) *Provider {
	return &Provider{emails: emails}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "resend"
}

// Send submits one message. The Message-ID generated locally is passed as a
// header so the relay log and the recipient's copy agree.
func (p *Provider) Send(ctx context.Context, msg *email.Message) error {
	req := &resend.SendEmailRequest{
		From:    msg.FromHeader(),
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
		Text:    msg.TextBody,
	}
	if msg.MessageID != "" {
		req.Headers = map[string]string{"Message-ID": msg.MessageID}
	}
	if len(msg.Attachments) > 0 {
		req.Attachments = convertAttachments(msg.Attachments)
	}

	resp, err := p.emails.SendWithContext(ctx, req)
	if err != nil {
		return classify(err)
	}
	if resp == nil || resp.Id == "" {
		return fmt.Errorf("%w: resend: empty response", provider.ErrRelayTransport)
	}
	return nil
}

func convertAttachments(attachments []email.Attachment) []*resend.Attachment {
	result := make([]*resend.Attachment, len(attachments))
	for i, a := range attachments {
		result[i] = &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		}
	}
	return result
}

// authMarkers are fragments of Resend error messages for rejected keys.
var authMarkers = []string{"api key", "unauthorized", "forbidden", "401", "403"}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: resend: %w", provider.ErrRelayAuth, err)
		}
	}
	return fmt.Errorf("%w: resend: %w", provider.ErrRelayTransport, err)
}
