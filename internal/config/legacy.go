package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// legacyConfig is the flat config.json layout used by earlier releases.
type legacyConfig struct {
	SenderEmail    string `yaml:"sender_email"`
	SenderName     string `yaml:"sender_name"`
	SenderPassword string `yaml:"sender_password"`
	SMTPServer     string `yaml:"smtp_server"`
	SMTPPort       int    `yaml:"smtp_port"`
	EmailSettings  struct {
		DelayBetweenEmails float64 `yaml:"delay_between_emails"` // seconds
		MaxRetries         int     `yaml:"max_retries"`
		BatchSize          int     `yaml:"batch_size"`
	} `yaml:"email_settings"`
}

// applyLegacy overlays the flat keys, when present, onto c. JSON is valid
// YAML so the same decoder reads both layouts.
func (c *Config) applyLegacy(data []byte) error {
	var l legacyConfig
	if err := yaml.Unmarshal(data, &l); err != nil {
		return err
	}

	overlay := Config{
		Relay: RelayConfig{
			Host:        l.SMTPServer,
			Port:        l.SMTPPort,
			Username:    l.SenderEmail,
			Password:    l.SenderPassword,
			SenderEmail: l.SenderEmail,
			SenderName:  l.SenderName,
		},
		Campaign: CampaignConfig{
			Delay:      time.Duration(l.EmailSettings.DelayBetweenEmails * float64(time.Second)),
			MaxRetries: l.EmailSettings.MaxRetries,
			BatchSize:  l.EmailSettings.BatchSize,
		},
	}
	if err := mergo.Merge(c, overlay, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge legacy settings: %w", err)
	}
	return nil
}
