package config

import (
	"maps"
	"slices"
)

// presets holds well-known relay endpoints selectable via relay.preset.
var presets = map[string]RelayConfig{
	"gmail": {
		Host:     "smtp.gmail.com",
		Port:     587,
		Security: "starttls",
	},
	"outlook": {
		Host:     "smtp.office365.com",
		Port:     587,
		Security: "starttls",
	},
	"yahoo": {
		Host:     "smtp.mail.yahoo.com",
		Port:     587,
		Security: "starttls",
	},
}

// Presets returns the names of the known relay presets.
func Presets() []string {
	return slices.Sorted(maps.Keys(presets))
}
