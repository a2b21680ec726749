// Package sanitize redacts sensitive data from transcript text before it is
// persisted or sent to any LLM backend.
//
// Redaction happens at the intake boundary of every turn. Only the new turn's
// input is scanned; history entries were already sanitized when they were
// appended, so raw sensitive text never exists anywhere downstream.
package sanitize

import (
	"fmt"
	"regexp"
)

// pattern pairs a sensitive-data detector with the type tag used in its
// replacement placeholder.
type pattern struct {
	typeTag string
	re      *regexp.Regexp
}

// Detectors, applied in order. Card numbers before CVV so an utterance
// carrying both redacts the longer match first.
var patterns = []pattern{
	{"CREDIT_CARD", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PASSWORD", regexp.MustCompile(`(?i)password\s+is\s+\S+`)},
	{"CVV", regexp.MustCompile(`(?i)\bcvv\s+is\s+\d{3,4}\b`)},
}

// Redact replaces every sensitive match in text with a [TYPE_REDACTED]
// placeholder and returns the type tags that matched, in detector order.
// A nil slice means nothing was replaced.
func Redact(text string) (string, []string) {
	var types []string
	for _, p := range patterns {
		if !p.re.MatchString(text) {
			continue
		}
		types = append(types, p.typeTag)
		text = p.re.ReplaceAllString(text, fmt.Sprintf("[%s_REDACTED]", p.typeTag))
	}
	return text, types
}
