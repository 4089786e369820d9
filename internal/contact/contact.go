// Package contact loads campaign recipients from CSV sources.
package contact

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/shineum/mailshot-lite/internal/source"
)

var (
	// ErrSourceNotFound indicates the recipient list does not exist.
	ErrSourceNotFound = errors.New("recipient source not found")

	// ErrMalformedSource indicates the recipient list could not be parsed.
	ErrMalformedSource = errors.New("malformed recipient source")
)

// Contact is one campaign recipient.
type Contact struct {
	Email     string
	FirstName string
	LastName  string
	Company   string
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type field int

const (
	fieldEmail field = iota
	fieldFirstName
	fieldLastName
	fieldCompany
)

// headerAliases maps lowercased column names to contact fields.
var headerAliases = map[string]field{
	"email":      fieldEmail,
	"correo":     fieldEmail,
	"nombre":     fieldFirstName,
	"first_name": fieldFirstName,
	"firstname":  fieldFirstName,
	"apellido":   fieldLastName,
	"last_name":  fieldLastName,
	"lastname":   fieldLastName,
	"empresa":    fieldCompany,
	"company":    fieldCompany,
}

// Load parses a CSV document with a header row. Rows without a usable
// email address are dropped; input order is preserved. Stray quotes inside
// unquoted fields are kept as literal text.
func Load(r io.Reader) ([]Contact, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformedSource)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}

	columns := make(map[field]int, len(header))
	for i, name := range header {
		f, ok := headerAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, seen := columns[f]; !seen {
			columns[f] = i
		}
	}
	if _, ok := columns[fieldEmail]; !ok {
		return nil, fmt.Errorf("%w: header has no email column", ErrMalformedSource)
	}

	var contacts []Contact
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
		}

		addr, ok := address(column(record, columns, fieldEmail))
		if !ok {
			continue
		}
		contacts = append(contacts, Contact{
			Email:     addr,
			FirstName: column(record, columns, fieldFirstName),
			LastName:  column(record, columns, fieldLastName),
			Company:   column(record, columns, fieldCompany),
		})
	}

	return contacts, nil
}

// address returns the bare address in s. Values that do not parse, or that
// carry line breaks which would end up in the To header, are rejected.
func address(s string) (string, bool) {
	if s == "" || strings.ContainsAny(s, "\r\n") {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", false
	}
	return addr.Address, true
}

func column(record []string, columns map[field]int, f field) string {
	i, ok := columns[f]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Loader reads recipient lists through a source.Opener.
type Loader struct {
	opener source.Opener
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(opener source.Opener, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{opener: opener, logger: logger}
}

// LoadFile opens and parses the recipient list at location.
func (l *Loader) LoadFile(ctx context.Context, location string) ([]Contact, error) {
	rc, err := l.opener.Open(ctx, location)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, location)
		}
		return nil, fmt.Errorf("failed to open recipients: %w", err)
	}
	defer rc.Close()

	contacts, err := Load(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}

	l.logger.InfoContext(ctx, "contacts loaded",
		"count", len(contacts),
		"location", location,
	)
	return contacts, nil
}
