package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizeEmail trims and case-folds an email so lookups and the unique
// index agree regardless of how the user typed it. A cases.Caser is
// stateful, so each call builds its own.
func NormalizeEmail(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return cases.Fold().String(s)
}

// normalizeName trims, NFC-normalizes and collapses internal whitespace.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(norm.NFC.String(strings.TrimSpace(s)), " ")
}

// normalizeToken trims a device token; an all-space token counts as absent.
func normalizeToken(p *string) *string {
	if p == nil {
		return nil
	}
	t := strings.TrimSpace(*p)
	if t == "" {
		return nil
	}
	return &t
}
