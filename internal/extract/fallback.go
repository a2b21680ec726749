package extract

import (
	"regexp"
	"strings"

	"github.com/MrWong99/voxfill/internal/session"
)

// Pattern extractors used when the LLM path is unavailable. They cover the
// data people most commonly dictate: email addresses (including the spoken
// "email is ... at ... dot ..." form), North American phone numbers, and
// "name is" introductions. Each carries a fixed confidence reflecting how
// unambiguous its pattern is.
var (
	reEmail       = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reSpokenEmail = regexp.MustCompile(`(?i)\bemail\s+is\s+([A-Za-z0-9._%+-]+)\s*(?:at|@)\s*([A-Za-z0-9-]+)\s*(?:dot|\.)\s*([A-Za-z]{2,})\b`)
	rePhone       = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)
	reName        = regexp.MustCompile(`(?i)\b(?:my\s+)?name is\s+([A-Za-z][A-Za-z'-]*(?:\s+[A-Za-z][A-Za-z'-]*){0,3})`)
)

const (
	confEmail       = 0.9
	confPhone       = 0.85
	confName        = 0.8
	confSpokenEmail = 0.7
)

// Fallback extracts field values from message using fixed patterns. Keys are
// the canonical names "email", "phone", and "name"; the selector matcher
// resolves them against the page's fields the same way it resolves LLM keys.
func Fallback(message string) map[string]session.FieldValue {
	out := make(map[string]session.FieldValue)

	if m := reEmail.FindString(message); m != "" {
		out["email"] = session.FieldValue{Value: m, Confidence: confEmail, SourceText: m}
	} else if m := reSpokenEmail.FindStringSubmatch(message); m != nil {
		out["email"] = session.FieldValue{
			Value:      strings.ToLower(m[1] + "@" + m[2] + "." + m[3]),
			Confidence: confSpokenEmail,
			SourceText: m[0],
		}
	}

	if m := rePhone.FindString(message); m != "" {
		out["phone"] = session.FieldValue{Value: m, Confidence: confPhone, SourceText: m}
	}

	if m := reName.FindStringSubmatch(message); m != nil {
		name := trimNameTail(m[1])
		if name != "" {
			out["name"] = session.FieldValue{Value: name, Confidence: confName, SourceText: m[0]}
		}
	}

	return out
}

// trimNameTail cuts conjunction tails the open-ended name pattern can drag
// in, as in "my name is Ahmed Khan and my email ...".
func trimNameTail(name string) string {
	lower := strings.ToLower(name)
	for _, sep := range []string{" and ", " but ", " so "} {
		if i := strings.Index(lower, sep); i >= 0 {
			name = name[:i]
			lower = lower[:i]
		}
	}
	return strings.TrimSpace(name)
}
