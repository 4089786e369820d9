// Package email defines the outbound message model and renders it to MIME.
package email

import (
	"net/mail"
	"strings"
	"time"
)

// Message is one fully personalized email addressed to a single recipient.
// Messages are built per send and never reused across recipients.
type Message struct {
	MessageID   string
	Date        time.Time
	From        string // sender address
	FromName    string // sender display name
	To          []string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FromHeader returns the From header value, combining display name and address.
func (m *Message) FromHeader() string {
	if m.FromName == "" {
		return m.From
	}
	addr := mail.Address{Name: m.FromName, Address: m.From}
	return addr.String()
}

// Recipient returns the primary recipient address.
func (m *Message) Recipient() string {
	if len(m.To) == 0 {
		return ""
	}
	return m.To[0]
}

// senderDomain returns the domain part of an address, used for Message-ID.
func senderDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
