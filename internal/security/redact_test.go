package security

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		banned  string
		allowed string
	}{
		{
			name:   "password assignment",
			in:     "login failed: password=supersecret123",
			want:   "login failed: password=[REDACTED]",
			banned: "supersecret123",
		},
		{
			name:   "api key with colon",
			in:     "api_key: abc123XYZ rejected",
			banned: "abc123XYZ",
		},
		{
			name:   "token uppercase",
			in:     "TOKEN = eyJhbGciOi",
			banned: "eyJhbGciOi",
		},
		{
			name: "card number with separators",
			in:   "card 4111 1111 1111 1111 declined",
			want: "card [REDACTED-PAN]declined",
		},
		{
			name: "dashed ssn",
			in:   "holder ssn 123-45-6789",
			want: "holder ssn [REDACTED-SSN]",
		},
		{
			name: "bare nine digit id",
			in:   "tax id 123456789",
			want: "tax id [REDACTED-ID]",
		},
		{
			name:    "ordinary counts survive",
			in:      "processed 15000 records in 42s",
			want:    "processed 15000 records in 42s",
			allowed: "15000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.in)
			if tt.want != "" && got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if tt.banned != "" && strings.Contains(got, tt.banned) {
				t.Errorf("Redact(%q) = %q still contains %q", tt.in, got, tt.banned)
			}
			if tt.allowed != "" && !strings.Contains(got, tt.allowed) {
				t.Errorf("Redact(%q) = %q dropped benign token %q", tt.in, got, tt.allowed)
			}
		})
	}
}

func TestRedact_AssignmentRuleRunsBeforeDigitRules(t *testing.T) {
	// A credential value that happens to look like a card number must be
	// masked as a credential, not as a PAN.
	got := Redact("secret=4111111111111111")
	if got != "secret=[REDACTED]" {
		t.Errorf("got %q, want credential masking to win", got)
	}
}
