// Package relay wraps a Provider so that each delivery attempt yields an
// Outcome instead of an error.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/provider"
)

// Failure classes reported by Classify.
const (
	ClassAuth      = "auth"
	ClassTransport = "transport"
)

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Recipient string
	MessageID string
	Cause     error
	Elapsed   time.Duration
}

// Sent reports whether the relay accepted the message.
func (o Outcome) Sent() bool {
	return o.Cause == nil
}

// Classify reduces a delivery error to "auth" or "transport". Anything that
// is not a credential rejection counts as transport.
func Classify(err error) string {
	if errors.Is(err, provider.ErrRelayAuth) {
		return ClassAuth
	}
	return ClassTransport
}

// Client delivers messages through a provider, one attempt each.
type Client struct {
	provider provider.Provider
	logger   *slog.Logger
}

// New creates a Client.
func New(p provider.Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: p, logger: logger}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() provider.Provider {
	return c.provider
}

// Deliver sends msg once and records the result.
func (c *Client) Deliver(ctx context.Context, msg *email.Message) Outcome {
	start := time.Now()
	out := Outcome{Recipient: msg.Recipient(), MessageID: msg.MessageID}

	err := c.provider.Send(ctx, msg)
	out.Elapsed = time.Since(start)
	if err != nil {
		out.Cause = err
		c.logger.Error("delivery failed",
			"provider", c.provider.Name(),
			"recipient", out.Recipient,
			"message_id", out.MessageID,
			"class", Classify(err),
			"error", err,
		)
		return out
	}

	c.logger.Info("delivery accepted",
		"provider", c.provider.Name(),
		"recipient", out.Recipient,
		"message_id", out.MessageID,
		"elapsed", out.Elapsed,
	)
	return out
}

// Probe verifies connectivity and credentials when the provider supports it.
// ok is false when the provider has no probe.
func (c *Client) Probe(ctx context.Context) (ok bool, err error) {
	p, ok := c.provider.(provider.Prober)
	if !ok {
		return false, nil
	}
	return true, p.Probe(ctx)
}
