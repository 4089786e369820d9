package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	c.setString(&c.Relay.Transport, "RELAY_TRANSPORT", true)
	c.setString(&c.Relay.Preset, "RELAY_PRESET", true)
	c.setString(&c.Relay.Host, "SMTP_HOST", false)
	c.setInt(&c.Relay.Port, "SMTP_PORT")
	c.setString(&c.Relay.Security, "SMTP_SECURITY", true)
	c.setString(&c.Relay.Username, "SMTP_USERNAME", false)
	c.setString(&c.Relay.Password, "SMTP_PASSWORD", false)
	c.setString(&c.Relay.AuthMechanism, "SMTP_AUTH_MECHANISM", true)
	c.setDuration(&c.Relay.Timeout, "SMTP_TIMEOUT")
	c.setBool(&c.Relay.InsecureSkipVerify, "SMTP_INSECURE_SKIP_VERIFY")
	c.setString(&c.Relay.CAFile, "SMTP_CA_FILE", false)
	c.setString(&c.Relay.SenderEmail, "SENDER_EMAIL", false)
	c.setString(&c.Relay.SenderName, "SENDER_NAME", false)

	c.setString(&c.SES.Region, "SES_REGION", false)
	c.setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID", false)
	c.setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY", false)

	c.setString(&c.Graph.TenantID, "GRAPH_TENANT_ID", false)
	c.setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID", false)
	c.setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET", false)
	c.setString(&c.Graph.Sender, "GRAPH_SENDER", false)

	c.setString(&c.Resend.APIKey, "RESEND_API_KEY", false)

	c.setString(&c.S3.Region, "S3_REGION", false)
	c.setString(&c.S3.AccessKeyID, "S3_ACCESS_KEY_ID", false)
	c.setString(&c.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY", false)

	c.setString(&c.Campaign.Recipients, "CAMPAIGN_RECIPIENTS", false)
	c.setString(&c.Campaign.Template, "CAMPAIGN_TEMPLATE", false)
	c.setString(&c.Campaign.Subject, "CAMPAIGN_SUBJECT", false)
	c.setString(&c.Campaign.Locale, "CAMPAIGN_LOCALE", false)
	if v := os.Getenv("CAMPAIGN_DELAY"); v != "" {
		if d, err := ParseDelay(v); err == nil {
			c.Campaign.Delay = d
		} else {
			c.envErrors = append(c.envErrors, fmt.Sprintf("CAMPAIGN_DELAY: %v", err))
		}
	}

	c.setString(&c.Logging.Level, "LOG_LEVEL", true)
	c.setString(&c.Logging.Dir, "LOG_DIR", false)
	c.setString(&c.Logging.SentryDSN, "SENTRY_DSN", false)
	c.setString(&c.Logging.SentryEnvironment, "SENTRY_ENVIRONMENT", false)

	c.setString(&c.Sink.Listen, "SINK_LISTEN", false)
	c.setString(&c.Sink.Username, "SINK_USERNAME", false)
	c.setString(&c.Sink.Password, "SINK_PASSWORD", false)
	if v := os.Getenv("SINK_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Sink.MaxMessageSize = size
		} else {
			c.envErrors = append(c.envErrors, fmt.Sprintf("SINK_MAX_MESSAGE_SIZE: %v", err))
		}
	}
	c.setString(&c.Sink.CertFile, "TLS_CERT_FILE", false)
	c.setString(&c.Sink.KeyFile, "TLS_KEY_FILE", false)
}

// ParseDelay accepts a Go duration ("1500ms", "2s") or a number of seconds
// ("2", "0.5").
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (c *Config) setString(dst *string, key string, lower bool) {
	if v := os.Getenv(key); v != "" {
		if lower {
			v = strings.ToLower(v)
		}
		*dst = v
	}
}

func (c *Config) setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.envErrors = append(c.envErrors, fmt.Sprintf("%s: %q is not a number", key, v))
			return
		}
		*dst = n
	}
}

func (c *Config) setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			c.envErrors = append(c.envErrors, fmt.Sprintf("%s: %q is not a duration", key, v))
			return
		}
		*dst = d
	}
}

func (c *Config) setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.envErrors = append(c.envErrors, fmt.Sprintf("%s: %q is not a boolean", key, v))
			return
		}
		*dst = b
	}
}
