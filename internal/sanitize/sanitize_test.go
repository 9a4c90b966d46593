package sanitize

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "email",
			input: "contact john.doe@example.com for details",
			want:  "contact [EMAIL_REDACTED] for details",
		},
		{
			name:  "email with digits in local part",
			input: "reply to user1234567890@mail.org",
			want:  "reply to [EMAIL_REDACTED]",
		},
		{
			name:  "payment card with dashes",
			input: "card 4111-1111-1111-1111 on file",
			want:  "card [CARD_REDACTED] on file",
		},
		{
			name:  "payment card bare digits",
			input: "charged 4111111111111111 yesterday",
			want:  "charged [CARD_REDACTED] yesterday",
		},
		{
			name:  "ssn",
			input: "patient ssn 123-45-6789",
			want:  "patient ssn [SSN_REDACTED]",
		},
		{
			name:  "mrn",
			input: "see MRN: 00123456 in chart",
			want:  "see [MRN_REDACTED] in chart",
		},
		{
			name:  "phone",
			input: "call (555) 867-5309 now",
			want:  "call [PHONE_REDACTED] now",
		},
		{
			name:  "phone with country code",
			input: "call +1-555-867-5309 now",
			want:  "call [PHONE_REDACTED] now",
		},
		{
			name:  "ipv4",
			input: "request from 192.168.1.100 denied",
			want:  "request from [IP_REDACTED] denied",
		},
		{
			name:  "multiple categories",
			input: "jane@x.io called from 555-867-5309",
			want:  "[EMAIL_REDACTED] called from [PHONE_REDACTED]",
		},
		{
			name:  "no sensitive data",
			input: "summarize the quarterly report",
			want:  "summarize the quarterly report",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// Card must win over phone for long digit runs.
func TestSanitizeOrdering(t *testing.T) {
	got := Sanitize("number 4111111111111 logged")
	if got != "number [CARD_REDACTED] logged" {
		t.Errorf("13-digit run sanitized as %q, want card redaction", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"jane@x.io called from 555-867-5309 about MRN#1234567",
		"ssn 123-45-6789 card 4111 1111 1111 1111 ip 10.0.0.1",
		"already [EMAIL_REDACTED] and [SSN_REDACTED]",
		"plain text with no matches",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("not idempotent: first %q, second %q", once, twice)
		}
	}
}

func TestSanitizeJSON(t *testing.T) {
	in := `{"prompt":"email jane@x.io","nested":{"phone":"555-867-5309"},"list":["10.0.0.1",42]}`
	got := SanitizeJSON(in)

	for _, want := range []string{"[EMAIL_REDACTED]", "[PHONE_REDACTED]", "[IP_REDACTED]"} {
		if !strings.Contains(got, want) {
			t.Errorf("SanitizeJSON missing %s in %q", want, got)
		}
	}
	if strings.Contains(got, "jane@x.io") || strings.Contains(got, "555-867-5309") {
		t.Errorf("SanitizeJSON leaked sensitive data: %q", got)
	}
	if !strings.Contains(got, "42") {
		t.Errorf("SanitizeJSON altered non-string value: %q", got)
	}
}

func TestSanitizeJSONMalformed(t *testing.T) {
	// Malformed input must not error; it is sanitized as plain text.
	got := SanitizeJSON("not json, but has jane@x.io in it")
	if strings.Contains(got, "jane@x.io") {
		t.Errorf("malformed input leaked email: %q", got)
	}
}
