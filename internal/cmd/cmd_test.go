package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/mailshot-lite/internal/config"
	"github.com/shineum/mailshot-lite/internal/contact"
	"github.com/shineum/mailshot-lite/internal/email"
	"github.com/shineum/mailshot-lite/internal/provider"
	"github.com/shineum/mailshot-lite/internal/smtpd"
	"github.com/shineum/mailshot-lite/internal/template"
)

var envKeys = []string{
	"RELAY_TRANSPORT", "RELAY_PRESET", "SMTP_HOST", "SMTP_PORT", "SMTP_SECURITY",
	"SMTP_USERNAME", "SMTP_PASSWORD", "SENDER_EMAIL", "SENDER_NAME",
	"CAMPAIGN_RECIPIENTS", "CAMPAIGN_TEMPLATE", "CAMPAIGN_SUBJECT", "CAMPAIGN_DELAY",
	"CAMPAIGN_LOCALE", "LOG_LEVEL", "LOG_DIR", "SENTRY_DSN",
}

type workspace struct {
	dir    string
	config string
}

// newWorkspace writes a recipient list, a template and a config file
// whose relay section is relay (YAML, indented two spaces).
func newWorkspace(t *testing.T, relay string) *workspace {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	recipients := write("recipients.csv", "email,nombre,apellido,empresa\nana@example.com,Ana,García,Tavolo\n,Nadie,,\nluis@example.com,Luis,,\n")
	tmpl := write("template.html", "<p>Hola {{NOMBRE}} de {{EMPRESA}}</p>")
	cfg := write("mailshot.yaml", fmt.Sprintf(`relay:
  sender_email: info@tavolocasa.example
  sender_name: Tavolo Casa
%s
campaign:
  recipients: %s
  template: %s
  subject: Ofertas
  delay: 0s
logging:
  dir: %s
`, relay, recipients, tmpl, filepath.Join(dir, "logs")))

	return &workspace{dir: dir, config: cfg}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

type captureProvider struct {
	mu   sync.Mutex
	msgs []*email.Message
}

func (c *captureProvider) Send(_ context.Context, msg *email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureProvider) Name() string { return "capture" }

func (c *captureProvider) received() []*email.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*email.Message(nil), c.msgs...)
}

// startSink runs a plaintext relay on loopback and returns its port.
func startSink(t *testing.T, username, password string) (*captureProvider, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	capture := &captureProvider{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go smtpd.New(smtpd.ServerConfig{
		Provider:     capture,
		AuthUsername: username,
		AuthPassword: password,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Serve(ctx, ln)

	return capture, ln.Addr().(*net.TCPAddr).Port
}

func smtpRelay(port int, username, password string) string {
	s := fmt.Sprintf("  transport: smtp\n  host: 127.0.0.1\n  port: %d\n  security: none", port)
	if username != "" {
		s += fmt.Sprintf("\n  username: %s\n  password: %s", username, password)
	}
	return s
}

func TestSend_Stdout(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	out, err := run(t, "", "send", "-c", ws.config, "--yes", "--locale", "es-AR")
	require.NoError(t, err)

	assert.Contains(t, out, "📧 Recipients: ")
	assert.Contains(t, out, "⏱️ Delay: 0s")
	assert.Contains(t, out, "🌐 Locale: es")
	assert.Contains(t, out, "(2 contacts)")
	assert.Contains(t, out, "✅ [1/2] Sent to ana@example.com")
	assert.Contains(t, out, "✅ [2/2] Sent to luis@example.com")
	assert.Contains(t, out, "Hola Ana de Tavolo")
	assert.Contains(t, out, "Hola Luis de")
	assert.Contains(t, out, "Success rate: 100.0%")
	assert.NotContains(t, out, "Failed recipients:")
	assert.Contains(t, out, "Log file: "+filepath.Join(ws.dir, "logs"))
}

func TestSend_ConfirmationDeclined(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	out, err := run(t, "n\n", "send", "-c", ws.config)
	require.NoError(t, err)

	assert.Contains(t, out, "Proceed with the send? (y/n)")
	assert.Contains(t, out, "Send cancelled by user")
	assert.NotContains(t, out, "Sent to")
}

func TestSend_ConfirmationAccepted(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	out, err := run(t, "sí\n", "send", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ [2/2] Sent to luis@example.com")
}

func TestSend_SMTPRelay(t *testing.T) {
	capture, port := startSink(t, "", "")
	ws := newWorkspace(t, smtpRelay(port, "", ""))

	out, err := run(t, "", "send", "-c", ws.config, "--yes", "--subject", "Primavera")
	require.NoError(t, err)
	assert.Contains(t, out, "Success rate: 100.0%")

	got := capture.received()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"ana@example.com"}, got[0].To)
	assert.Equal(t, "Primavera", got[0].Subject)
	assert.Equal(t, "Tavolo Casa", got[0].FromName)
	assert.Contains(t, got[0].HTMLBody, "Hola Ana de Tavolo")
	assert.Equal(t, []string{"luis@example.com"}, got[1].To)
}

func TestSend_AuthFailureCountsEveryRecipient(t *testing.T) {
	capture, port := startSink(t, "user", "secret")
	ws := newWorkspace(t, smtpRelay(port, "user", "wrong"))

	out, err := run(t, "", "send", "-c", ws.config, "--yes")
	require.NoError(t, err)

	assert.Contains(t, out, "❌ [1/2] Failed: ana@example.com (auth:")
	assert.Contains(t, out, "❌ [2/2] Failed: luis@example.com (auth:")
	assert.Contains(t, out, "Sent: 0")
	assert.Contains(t, out, "Failed: 2")
	assert.Contains(t, out, "Success rate: 0.0%")
	assert.Contains(t, out, "Failed recipients:\n  - ana@example.com (auth:")
	assert.Contains(t, out, "  - luis@example.com (auth:")
	assert.Empty(t, capture.received())
}

func TestSend_MissingRecipients(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	_, err := run(t, "", "send", "-c", ws.config, "--yes", "-r", filepath.Join(ws.dir, "nope.csv"))
	require.ErrorIs(t, err, contact.ErrSourceNotFound)
	assert.Contains(t, hintFor(err), "recipient addresses")
}

func TestSend_MissingTemplate(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	_, err := run(t, "", "send", "-c", ws.config, "--yes", "-t", filepath.Join(ws.dir, "nope.html"))
	require.ErrorIs(t, err, template.ErrTemplateNotFound)
}

func TestSend_InvalidConfig(t *testing.T) {
	ws := newWorkspace(t, "  transport: pigeon")

	_, err := run(t, "", "send", "-c", ws.config, "--yes")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSend_TransportFlagOverridesConfig(t *testing.T) {
	_, port := startSink(t, "", "")
	ws := newWorkspace(t, smtpRelay(port, "", ""))

	out, err := run(t, "", "send", "-c", ws.config, "--yes", "--transport", "stdout")
	require.NoError(t, err)
	assert.Contains(t, out, "📮 Relay: stdout")
	assert.Contains(t, out, "Subject: Ofertas")
}

func TestTest_SendsSampleContact(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	out, err := run(t, "", "test", "-c", ws.config, "--to", "qa@example.com")
	require.NoError(t, err)

	assert.Contains(t, out, "To: qa@example.com")
	assert.Contains(t, out, "Subject: [TEST] Ofertas")
	assert.Contains(t, out, "Hola Test de Test Company")
	assert.Contains(t, out, "✅ Test message sent")
	assert.NotContains(t, out, "ana@example.com")
}

func TestTest_InvalidAddress(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	_, err := run(t, "", "test", "-c", ws.config, "--to", "not-an-address")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTest_RelayFailure(t *testing.T) {
	_, port := startSink(t, "user", "secret")
	ws := newWorkspace(t, smtpRelay(port, "user", "wrong"))

	_, err := run(t, "", "test", "-c", ws.config, "--to", "qa@example.com")
	require.ErrorIs(t, err, provider.ErrRelayAuth)
}

func TestProbe(t *testing.T) {
	_, port := startSink(t, "user", "secret")

	ws := newWorkspace(t, smtpRelay(port, "user", "secret"))
	out, err := run(t, "", "probe", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Probing smtp 127.0.0.1:%d (none)", port))
	assert.Contains(t, out, "✅ Relay connection OK")

	bad := newWorkspace(t, smtpRelay(port, "user", "wrong"))
	_, err = run(t, "", "probe", "-c", bad.config)
	require.ErrorIs(t, err, provider.ErrRelayAuth)
}

func TestProbe_Unsupported(t *testing.T) {
	ws := newWorkspace(t, "  transport: resend")
	t.Setenv("RESEND_API_KEY", "re_test")

	out, err := run(t, "", "probe", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "resend cannot be probed")
}

func TestCheck(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	out, err := run(t, "", "check", "-c", ws.config, "-a", filepath.Join(ws.dir, "missing.pdf"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Configuration ("+ws.config+"): transport stdout")
	assert.Contains(t, out, "✓ Recipients")
	assert.Contains(t, out, "2 contacts")
	assert.Contains(t, out, "✓ Template template.html (html")
	assert.Contains(t, out, "⚠ Attachment")
	assert.Contains(t, out, "✓ Ready to send")
}

func TestCheck_ReportsMissingInputs(t *testing.T) {
	ws := newWorkspace(t, "  transport: stdout")

	out, err := run(t, "", "check", "-c", ws.config, "-t", filepath.Join(ws.dir, "nope.html"))
	require.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "✓ Recipients")
	assert.Contains(t, out, "✗ Template")
	assert.Contains(t, out, "💡 Create this file")
}

func TestHintFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: fmt.Errorf("%w: x.csv", contact.ErrSourceNotFound), want: "recipient addresses"},
		{err: contact.ErrMalformedSource, want: "header row"},
		{err: template.ErrTemplateNotFound, want: "message body"},
		{err: config.ErrInvalidConfig, want: "mailshot check"},
		{err: provider.ErrRelayAuth, want: "app password"},
		{err: provider.ErrRelayTransport, want: "security mode"},
		{err: errors.New("other"), want: ""},
	}

	for _, tt := range tests {
		got := hintFor(tt.err)
		if tt.want == "" {
			assert.Empty(t, got)
			continue
		}
		assert.Contains(t, got, tt.want)
	}
}

func TestPrintError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printError(&buf, fmt.Errorf("%w: template.html", template.ErrTemplateNotFound))
	assert.Equal(t, "❌ Error: template not found: template.html\n💡 Create this file with the HTML (or Markdown) message body.\n", buf.String())
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{in: "y\n", want: true},
		{in: "YES\n", want: true},
		{in: "s\n", want: true},
		{in: "si", want: true},
		{in: "n\n", want: false},
		{in: "\n", want: false},
		{in: "", want: false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.in), &out, "Proceed?"), "input %q", tt.in)
		assert.Equal(t, "Proceed? (y/n): ", out.String())
	}
}
