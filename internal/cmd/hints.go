package cmd

import (
	"errors"

	"github.com/shineum/mailshot-lite/internal/config"
	"github.com/shineum/mailshot-lite/internal/contact"
	"github.com/shineum/mailshot-lite/internal/provider"
	"github.com/shineum/mailshot-lite/internal/template"
)

// hintFor suggests a fix for the fatal errors a user can act on.
func hintFor(err error) string {
	switch {
	case errors.Is(err, contact.ErrSourceNotFound):
		return "Create this file with the recipient addresses: a CSV with a header row and an email column."
	case errors.Is(err, contact.ErrMalformedSource):
		return "The recipient list must be CSV with a header row containing an email column (nombre, apellido and empresa are optional)."
	case errors.Is(err, template.ErrTemplateNotFound):
		return "Create this file with the HTML (or Markdown) message body."
	case errors.Is(err, config.ErrInvalidConfig):
		return "Fix the settings in your config file or environment, then run 'mailshot check'."
	case errors.Is(err, provider.ErrRelayAuth):
		return "The relay rejected the credentials. For Gmail use an app password, not your account password."
	case errors.Is(err, provider.ErrRelayTransport):
		return "Check the relay host, port and security mode, and that the network allows the connection."
	}
	return ""
}
