package parser

import "strings"

// samplePlaceholders are values the downloadable templates and common
// spreadsheet examples use as filler.
var samplePlaceholders = []string{
	"sample",
	"example",
	"john doe",
	"jane doe",
	"test worker",
	"placeholder",
	"dummy",
	"lorem ipsum",
	"your name",
	"xxx",
}

// IsSampleRow reports whether any cell matches a known placeholder, either
// exactly or as a prefix, ignoring case.
func IsSampleRow(raw map[string]string) bool {
	for _, v := range raw {
		if IsPlaceholder(v) {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether a single cell looks like template filler
func IsPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return false
	}
	for _, p := range samplePlaceholders {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}
