// Package sanitize strips regulated personal data (PII/PHI) from
// free-text payloads before they are persisted or archived.
package sanitize

import (
	"encoding/json"
	"regexp"
)

// rule pairs a compiled pattern with its replacement token.
type rule struct {
	name    string
	pattern *regexp.Regexp
	token   string
}

// rules are applied in declaration order, first-match-wins. Order
// matters where patterns overlap:
//
//  1. email      - before phone, so digit runs inside addresses are
//                  not mistaken for phone numbers
//  2. card       - 13-19 digit payment card numbers, before phone so a
//                  long digit run is not truncated to a phone match
//  3. ssn        - 3-2-4 grouped national id
//  4. mrn        - domain-specific medical record number
//  5. phone      - 10-digit numbers with optional country code
//  6. ip         - IPv4 addresses
//
// Replacement tokens contain no digits or pattern-matchable text, which
// makes the whole pipeline idempotent.
var rules = []rule{
	{
		name:    "email",
		pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		token:   "[EMAIL_REDACTED]",
	},
	{
		name:    "card",
		pattern: regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,7}\b`),
		token:   "[CARD_REDACTED]",
	},
	{
		name:    "ssn",
		pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		token:   "[SSN_REDACTED]",
	},
	{
		name:    "mrn",
		pattern: regexp.MustCompile(`(?i)\bMRN[:#]?\s*\d{6,10}\b`),
		token:   "[MRN_REDACTED]",
	},
	{
		name:    "phone",
		pattern: regexp.MustCompile(`(?:\+?1[-. ])?\(?\b\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
		token:   "[PHONE_REDACTED]",
	},
	{
		name:    "ip",
		pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		token:   "[IP_REDACTED]",
	},
}

// Sanitize redacts regulated personal data from text. It never fails:
// unmatched text passes through unchanged, and re-sanitizing already
// redacted text is a no-op.
func Sanitize(text string) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.token)
	}
	return text
}

// SanitizeJSON sanitizes every string value of a JSON document,
// preserving structure. Input that does not parse as JSON is sanitized
// as plain text.
func SanitizeJSON(data string) string {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return Sanitize(data)
	}
	out, err := json.Marshal(sanitizeValue(v))
	if err != nil {
		return Sanitize(data)
	}
	return string(out)
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case map[string]any:
		for k, e := range t {
			t[k] = sanitizeValue(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = sanitizeValue(e)
		}
		return t
	default:
		return v
	}
}
