package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/provider"
)

const (
	defaultGraphBase = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
	requestTimeout   = 30 * time.Second
)

// Config holds the configuration for creating a Provider.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Sender is the mailbox used for sendMail. Defaults to the message From address.
	Sender string
}

// Provider sends emails via the Microsoft Graph API using OAuth2
// client credentials authentication.
type Provider struct {
	sender     string
	graphBase  string
	creds      *clientcredentials.Config
	httpClient *http.Client
	tokenCtx   context.Context
}

// New creates a Provider for the given tenant and application.
func New(cfg Config) *Provider {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	return newWithOverrides(cfg, defaultGraphBase, tokenURL, &http.Client{Timeout: requestTimeout})
}

// newWithOverrides creates a Provider with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg Config, graphBase, tokenURL string, base *http.Client) *Provider {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}

	// Token requests use the base client; the returned client caches the
	// token and refreshes it before expiry.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := creds.Client(tokenCtx)
	client.Timeout = base.Timeout

	return &Provider{
		sender:     cfg.Sender,
		graphBase:  strings.TrimSuffix(graphBase, "/"),
		creds:      creds,
		httpClient: client,
		tokenCtx:   tokenCtx,
	}
}

// Send delivers an email message via the Graph sendMail endpoint.
func (g *Provider) Send(ctx context.Context, msg *email.Message) error {
	sender := g.sender
	if sender == "" {
		sender = msg.From
	}

	bodyJSON, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request body: %w", provider.ErrRelayTransport, err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", g.graphBase, url.PathEscape(sender))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", provider.ErrRelayTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token request failed: %w", provider.ErrRelayAuth, err)
		}
		return fmt.Errorf("%w: HTTP request failed: %w", provider.ErrRelayTransport, err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	return responseError(resp)
}

// Probe acquires an access token to verify the application credentials.
func (g *Provider) Probe(ctx context.Context) error {
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, g.tokenCtx.Value(oauth2.HTTPClient))
	if _, err := g.creds.Token(tokenCtx); err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token request failed: %w", provider.ErrRelayAuth, err)
		}
		return fmt.Errorf("%w: token request failed: %w", provider.ErrRelayTransport, err)
	}
	return nil
}

// Name returns the provider name.
func (g *Provider) Name() string {
	return "msgraph"
}

// responseError maps a non-success Graph response to the relay error taxonomy.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := strings.TrimSpace(string(body))
	var graphErrResp graphErrorResponse
	if err := json.Unmarshal(body, &graphErrResp); err == nil && graphErrResp.Error.Message != "" {
		message = graphErrResp.Error.Code + ": " + graphErrResp.Error.Message
	}

	sentinel := provider.ErrRelayTransport
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sentinel = provider.ErrRelayAuth
	}
	return fmt.Errorf("%w: Graph API error (HTTP %d): %s", sentinel, resp.StatusCode, message)
}
