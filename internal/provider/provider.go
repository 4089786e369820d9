// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"
	"errors"

	"github.com/shineum/mailshot-lite/internal/email"
)

var (
	// ErrRelayAuth indicates the relay rejected the configured credentials.
	ErrRelayAuth = errors.New("relay authentication failed")

	// ErrRelayTransport indicates a connection, protocol or API failure.
	ErrRelayTransport = errors.New("relay transport failed")
)

// Provider is the interface that email delivery backends must implement.
// Each provider delivers one message per call and holds no session
// open between calls.
type Provider interface {
	// Send delivers an email message through this provider.
	// Failures wrap ErrRelayAuth or ErrRelayTransport.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this provider.
	Name() string
}

// Prober is implemented by providers that can verify connectivity and
// credentials without sending a message.
type Prober interface {
	Probe(ctx context.Context) error
}
