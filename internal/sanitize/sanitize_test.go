package sanitize_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/voxfill/internal/sanitize"
)

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		want  string
		types []string
	}{
		{
			name: "clean text untouched",
			in:   "my name is Ahmed Khan and my email is ahmed@example.com",
			want: "my name is Ahmed Khan and my email is ahmed@example.com",
		},
		{
			name: "phone-shaped number untouched",
			in:   "call me at 555-123-4567",
			want: "call me at 555-123-4567",
		},
		{
			name:  "credit card with spaces",
			in:    "card number 4111 1111 1111 1111 please",
			want:  "card number [CREDIT_CARD_REDACTED] please",
			types: []string{"CREDIT_CARD"},
		},
		{
			name:  "credit card with dashes",
			in:    "use 4111-1111-1111-1111",
			want:  "use [CREDIT_CARD_REDACTED]",
			types: []string{"CREDIT_CARD"},
		},
		{
			name:  "ssn",
			in:    "my ssn is 123-45-6789",
			want:  "my ssn is [SSN_REDACTED]",
			types: []string{"SSN"},
		},
		{
			name:  "password case insensitive",
			in:    "my Password is hunter2 ok",
			want:  "my [PASSWORD_REDACTED] ok",
			types: []string{"PASSWORD"},
		},
		{
			name:  "cvv",
			in:    "the CVV is 123",
			want:  "the [CVV_REDACTED]",
			types: []string{"CVV"},
		},
		{
			name:  "multiple types in one utterance",
			in:    "card 4111111111111111 and cvv is 9999",
			want:  "card [CREDIT_CARD_REDACTED] and [CVV_REDACTED]",
			types: []string{"CREDIT_CARD", "CVV"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, types := sanitize.Redact(tt.in)
			if got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !slices.Equal(types, tt.types) {
				t.Errorf("Redact(%q) types = %v, want %v", tt.in, types, tt.types)
			}
		})
	}
}

func TestRedactIdempotent(t *testing.T) {
	t.Parallel()

	once, _ := sanitize.Redact("my ssn is 123-45-6789")
	twice, types := sanitize.Redact(once)
	if twice != once {
		t.Errorf("second pass changed text: %q -> %q", once, twice)
	}
	if len(types) != 0 {
		t.Errorf("second pass must not report new findings, got %v", types)
	}
	if !strings.Contains(once, "[SSN_REDACTED]") {
		t.Errorf("placeholder missing from %q", once)
	}
}
