// Package smtp implements a Provider that relays messages to an SMTP
// server, opening a fresh authenticated session for every message.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/provider"
)

// Connection security modes.
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

// defaultTimeout bounds one whole SMTP session.
const defaultTimeout = 30 * time.Second

// Config holds the relay connection settings.
type Config struct {
	Host     string
	Port     int
	Security string // starttls (default), tls or none
	Username string
	Password string
	// AuthMechanism is plain, login, or empty to pick from the server's offer.
	AuthMechanism string
	// LocalName is sent in EHLO. Defaults to "localhost".
	LocalName string
	Timeout   time.Duration
	// TLSConfig overrides the client TLS settings. ServerName defaults to Host.
	TLSConfig *tls.Config
}

// Provider delivers messages over SMTP.
type Provider struct {
	cfg Config
}

// New creates an SMTP Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp: invalid port %d", cfg.Port)
	}
	cfg.Security = strings.ToLower(strings.TrimSpace(cfg.Security))
	switch cfg.Security {
	case "":
		cfg.Security = SecurityStartTLS
	case SecurityStartTLS, SecurityTLS, SecurityNone:
	default:
		return nil, fmt.Errorf("smtp: unsupported security mode %q", cfg.Security)
	}
	cfg.AuthMechanism = strings.ToLower(strings.TrimSpace(cfg.AuthMechanism))
	switch cfg.AuthMechanism {
	case "", "plain", "login":
	default:
		return nil, fmt.Errorf("smtp: unsupported auth mechanism %q", cfg.AuthMechanism)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TLSConfig == nil {
		cfg.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		cfg.TLSConfig = cfg.TLSConfig.Clone()
	}
	if cfg.TLSConfig.ServerName == "" {
		cfg.TLSConfig.ServerName = cfg.Host
	}

	return &Provider{cfg: cfg}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Addr returns the relay address.
func (p *Provider) Addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

// Send opens a session, authenticates, transmits the message and closes
// the connection before returning.
func (p *Provider) Send(ctx context.Context, msg *email.Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("%w: failed to render message: %w", provider.ErrRelayTransport, err)
	}

	c, closeFn, err := p.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.Mail(msg.From); err != nil {
		return classify("MAIL FROM", err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return classify("RCPT TO", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return classify("DATA", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return classify("DATA write", err)
	}
	if err := w.Close(); err != nil {
		return classify("DATA close", err)
	}

	// QUIT is best-effort; the message is already accepted.
	_ = c.Quit()
	return nil
}

// Probe connects, negotiates TLS and authenticates without sending.
func (p *Provider) Probe(ctx context.Context) error {
	c, closeFn, err := p.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.Quit(); err != nil {
		return classify("QUIT", err)
	}
	return nil
}

// open dials the relay and returns an authenticated client. The returned
// func closes the connection and must always be called.
func (p *Provider) open(ctx context.Context) (*smtp.Client, func(), error) {
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial %s: %w", provider.ErrRelayTransport, p.Addr(), err)
	}

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	if p.cfg.Security == SecurityTLS {
		tlsConn := tls.Client(conn, p.cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			stop()
			conn.Close()
			return nil, nil, fmt.Errorf("%w: tls handshake: %w", provider.ErrRelayTransport, err)
		}
		conn = tlsConn
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, fmt.Errorf("%w: greeting: %w", provider.ErrRelayTransport, err)
	}
	closeFn := func() {
		stop()
		c.Close()
	}

	if err := p.handshake(c); err != nil {
		closeFn()
		return nil, nil, err
	}
	return c, closeFn, nil
}

// handshake runs EHLO, STARTTLS and AUTH as configured.
func (p *Provider) handshake(c *smtp.Client) error {
	localName := p.cfg.LocalName
	if localName == "" {
		localName = "localhost"
	}
	if err := c.Hello(localName); err != nil {
		return classify("EHLO", err)
	}

	if p.cfg.Security == SecurityStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("%w: server does not support STARTTLS", provider.ErrRelayTransport)
		}
		if err := c.StartTLS(p.cfg.TLSConfig); err != nil {
			return fmt.Errorf("%w: starttls: %w", provider.ErrRelayTransport, err)
		}
	}

	if p.cfg.Username == "" {
		return nil
	}

	ok, offered := c.Extension("AUTH")
	if !ok {
		return fmt.Errorf("%w: server does not offer AUTH", provider.ErrRelayAuth)
	}
	if err := c.Auth(p.auth(offered)); err != nil {
		if isNetworkError(err) {
			return fmt.Errorf("%w: AUTH: %w", provider.ErrRelayTransport, err)
		}
		return fmt.Errorf("%w: %w", provider.ErrRelayAuth, err)
	}
	return nil
}

// auth picks the SASL mechanism: the configured one, else PLAIN when
// offered, else LOGIN.
func (p *Provider) auth(offered string) smtp.Auth {
	mech := p.cfg.AuthMechanism
	if mech == "" {
		mech = "login"
		for _, m := range strings.Fields(strings.ToUpper(offered)) {
			if m == "PLAIN" {
				mech = "plain"
				break
			}
		}
	}
	if mech == "plain" {
		return smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	return &loginAuth{username: p.cfg.Username, password: p.cfg.Password, host: p.cfg.Host}
}

// classify maps an SMTP command failure to the relay error taxonomy.
// 530 and 535 replies mean the server rejected our credentials.
func classify(stage string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && (tpErr.Code == 530 || tpErr.Code == 535) {
		return fmt.Errorf("%w: %s: %w", provider.ErrRelayAuth, stage, err)
	}
	return fmt.Errorf("%w: %s: %w", provider.ErrRelayTransport, stage, err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
