// Package config loads campaign and relay settings from defaults, an
// optional YAML (or legacy JSON) file and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate and wraps every problem found.
var ErrInvalidConfig = errors.New("invalid configuration")

// Transports.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportGraph  = "graph"
	TransportResend = "resend"
	TransportStdout = "stdout"
)

const (
	defaultMaxMessageSize = 26214400 // 25 MB
	defaultDelay          = 2 * time.Second
	defaultTimeout        = 30 * time.Second
)

// DefaultFiles are tried in order when no config path is given.
var DefaultFiles = []string{"mailshot.yaml", "mailshot.yml", "config.json"}

// Config holds the complete application configuration.
type Config struct {
	Relay    RelayConfig    `yaml:"relay"`
	SES      SESConfig      `yaml:"ses"`
	Graph    GraphConfig    `yaml:"graph"`
	Resend   ResendConfig   `yaml:"resend"`
	S3       S3Config       `yaml:"s3"`
	Campaign CampaignConfig `yaml:"campaign"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sink     SinkConfig     `yaml:"sink"`

	// envErrors collects unparsable environment values for Validate.
	envErrors []string
}

// RelayConfig selects the transport and holds the SMTP relay settings.
type RelayConfig struct {
	Transport          string        `yaml:"transport"`
	Preset             string        `yaml:"preset"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Security           string        `yaml:"security"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	AuthMechanism      string        `yaml:"auth_mechanism"`
	SenderEmail        string        `yaml:"sender_email"`
	SenderName         string        `yaml:"sender_name"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	CAFile             string        `yaml:"ca_file"`
}

// SESConfig holds AWS SES credentials.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// ResendConfig holds the Resend API key.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// S3Config holds credentials for s3:// recipient, template and attachment
// locations. Empty keys fall back to the default AWS credential chain.
type S3Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// CampaignConfig describes what to send.
type CampaignConfig struct {
	Recipients  string        `yaml:"recipients"`
	Template    string        `yaml:"template"`
	Subject     string        `yaml:"subject"`
	Attachments []string      `yaml:"attachments"`
	Delay       time.Duration `yaml:"delay"`
	Locale      string        `yaml:"locale"`
	// MaxRetries and BatchSize are accepted for compatibility and ignored.
	MaxRetries int `yaml:"max_retries"`
	BatchSize  int `yaml:"batch_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level             string `yaml:"level"`
	Dir               string `yaml:"dir"`
	SentryDSN         string `yaml:"sentry_dsn"`
	SentryEnvironment string `yaml:"sentry_environment"`
}

// SinkConfig configures the local rehearsal relay.
type SinkConfig struct {
	Listen         string `yaml:"listen"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	if err := cfg.applyPreset(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads a YAML or JSON file as the base layer, then overrides
// with environment variables. A missing or malformed file is an error.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.applyLegacy(data); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override file values
	cfg.applyEnvVars()

	if err := cfg.applyPreset(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover returns the first of DefaultFiles present in dir, or "".
func Discover(dir string) string {
	for _, name := range DefaultFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// GraphConfigured returns true if the Graph application credentials are
// set. The sending mailbox falls back to relay.sender_email.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != ""
}

// SinkAuthEnabled returns true if both sink username and password are set.
func (c *Config) SinkAuthEnabled() bool {
	return c.Sink.Username != "" && c.Sink.Password != ""
}

// Warnings lists settings that are accepted but have no effect.
func (c *Config) Warnings() []string {
	var w []string
	if c.Campaign.MaxRetries > 0 {
		w = append(w, fmt.Sprintf("max_retries=%d is ignored: each recipient gets exactly one attempt", c.Campaign.MaxRetries))
	}
	if c.Campaign.BatchSize > 0 {
		w = append(w, fmt.Sprintf("batch_size=%d is ignored: recipients are sent one at a time", c.Campaign.BatchSize))
	}
	return w
}

// Validate checks the configuration for the selected transport.
func (c *Config) Validate() error {
	problems := append([]string(nil), c.envErrors...)
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Relay.SenderEmail == "" {
		add("relay.sender_email is required")
	} else if _, err := mail.ParseAddress(c.Relay.SenderEmail); err != nil {
		add("relay.sender_email %q is not a valid address", c.Relay.SenderEmail)
	}

	switch c.Relay.Transport {
	case TransportSMTP:
		if c.Relay.Host == "" {
			add("relay.host is required for smtp (or set relay.preset)")
		}
		if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
			add("relay.port %d is out of range", c.Relay.Port)
		}
		switch c.Relay.Security {
		case "starttls", "tls", "none":
		default:
			add("relay.security must be starttls, tls or none, got %q", c.Relay.Security)
		}
		switch c.Relay.AuthMechanism {
		case "", "plain", "login":
		default:
			add("relay.auth_mechanism must be plain or login, got %q", c.Relay.AuthMechanism)
		}
		if c.Relay.Username != "" && c.Relay.Password == "" {
			add("relay.password is required when relay.username is set")
		}
	case TransportSES:
		if c.SES.Region == "" {
			add("ses.region is required for ses")
		}
	case TransportGraph:
		if !c.GraphConfigured() {
			add("graph.tenant_id, graph.client_id and graph.client_secret are required for graph")
		}
	case TransportResend:
		if c.Resend.APIKey == "" {
			add("resend.api_key is required for resend")
		}
	case TransportStdout:
	default:
		add("relay.transport must be smtp, ses, graph, resend or stdout, got %q", c.Relay.Transport)
	}

	if c.Campaign.Delay < 0 {
		add("campaign.delay must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Relay.Transport = TransportSMTP
	c.Relay.Port = 587
	c.Relay.Security = "starttls"
	c.Relay.Timeout = defaultTimeout

	c.Campaign.Recipients = "recipients.csv"
	c.Campaign.Template = "template.html"
	c.Campaign.Delay = defaultDelay
	c.Campaign.Locale = "en"

	c.Logging.Level = "info"
	c.Logging.Dir = "logs"

	c.Sink.Listen = ":2525"
	c.Sink.MaxMessageSize = defaultMaxMessageSize
}

// applyPreset fills host, port and security from a named provider preset.
// Explicit values win; the preset only fills what is still empty.
func (c *Config) applyPreset() error {
	if c.Relay.Preset == "" {
		return nil
	}
	preset, ok := presets[strings.ToLower(c.Relay.Preset)]
	if !ok {
		return fmt.Errorf("%w: unknown relay preset %q (known: %s)",
			ErrInvalidConfig, c.Relay.Preset, strings.Join(Presets(), ", "))
	}
	if err := mergo.Merge(&c.Relay, preset); err != nil {
		return fmt.Errorf("failed to apply preset %q: %w", c.Relay.Preset, err)
	}
	return nil
}
