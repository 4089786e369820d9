// Package personalize merges contact fields into template text.
package personalize

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/shineum/mailshot-lite/internal/contact"
)

// Recognized placeholders. Each Spanish token has an English alias.
const (
	TokenFirstName = "{{NOMBRE}}"
	TokenLastName  = "{{APELLIDO}}"
	TokenCompany   = "{{EMPRESA}}"
	TokenFullName  = "{{NOMBRE_COMPLETO}}"
	TokenDate      = "{{FECHA}}"
	TokenYear      = "{{AÑO}}"

	AliasFirstName = "{{FIRST_NAME}}"
	AliasLastName  = "{{LAST_NAME}}"
	AliasCompany   = "{{COMPANY}}"
	AliasFullName  = "{{FULL_NAME}}"
	AliasDate      = "{{DATE}}"
	AliasYear      = "{{YEAR}}"
)

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// ParseLocale resolves a locale string to a supported language.
// Unknown or invalid values resolve to English.
func ParseLocale(s string) language.Tag {
	tag, err := language.Parse(s)
	if err != nil {
		return language.English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Personalizer substitutes placeholders with contact data.
type Personalizer struct {
	now    func() time.Time
	locale language.Tag
}

// Option configures a Personalizer.
type Option func(*Personalizer)

// WithClock overrides the clock used for date tokens.
func WithClock(now func() time.Time) Option {
	return func(p *Personalizer) {
		p.now = now
	}
}

// WithLocale sets the language for the default greeting and dates.
func WithLocale(tag language.Tag) Option {
	return func(p *Personalizer) {
		_, idx, conf := matcher.Match(tag)
		if conf == language.No {
			p.locale = language.English
			return
		}
		p.locale = supported[idx]
	}
}

// New creates a Personalizer. The default locale is English.
func New(opts ...Option) *Personalizer {
	p := &Personalizer{
		now:    time.Now,
		locale: language.English,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Locale returns the resolved locale.
func (p *Personalizer) Locale() language.Tag {
	return p.locale
}

// Personalize replaces every recognized placeholder in a single pass.
// Unrecognized {{...}} text is left as is.
func (p *Personalizer) Personalize(text string, c contact.Contact) string {
	now := p.now()

	firstName := c.FirstName
	if firstName == "" {
		firstName = p.defaultGreeting()
	}
	date := p.formatDate(now)
	year := strconv.Itoa(now.Year())
	fullName := c.FullName()

	r := strings.NewReplacer(
		TokenFullName, fullName,
		AliasFullName, fullName,
		TokenFirstName, firstName,
		AliasFirstName, firstName,
		TokenLastName, c.LastName,
		AliasLastName, c.LastName,
		TokenCompany, c.Company,
		AliasCompany, c.Company,
		TokenDate, date,
		AliasDate, date,
		TokenYear, year,
		AliasYear, year,
	)
	return r.Replace(text)
}

func (p *Personalizer) defaultGreeting() string {
	if p.locale == language.Spanish {
		return "Estimado/a cliente"
	}
	return "Valued Customer"
}

func (p *Personalizer) formatDate(t time.Time) string {
	if p.locale == language.Spanish {
		return t.Format("02") + " de " + spanishMonths[t.Month()-1] + " de " + t.Format("2006")
	}
	return t.Format("January 2, 2006")
}
