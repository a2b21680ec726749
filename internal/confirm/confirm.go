// Package confirm implements the confirmation gate: the decision point that
// either releases a conversation for filling or pauses it with one combined
// question covering everything that still needs the user's attention.
package confirm

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/MrWong99/voxfill/internal/session"
)

// Threshold is the minimum per-field confidence for release without
// confirmation.
const Threshold = 0.85

// Result is the gate's verdict for one turn.
type Result struct {
	// NeedsClarification pauses the conversation for user input.
	NeedsClarification bool

	// ClarificationQuestion is the combined question covering low-confidence
	// and missing fields. Empty when NeedsClarification is false.
	ClarificationQuestion string

	// ReadyToFill releases the conversation to the output assembler. Never
	// true together with NeedsClarification.
	ReadyToFill bool

	// Confirmed mirrors ReadyToFill.
	Confirmed bool

	// LowConfidence lists the field keys below Threshold, sorted.
	LowConfidence []string

	// Summary is one human-readable line per reviewed field, sorted by key.
	Summary []string
}

// Review runs the gate over the collected fields.
//
// confidence carries the matcher's per-key confidences; a key absent there
// falls back to the field's own confidence, and a zero value to 0.5. When
// correctionMode is set the gate defers entirely: the correction capability
// must run before any verdict.
func Review(
	fields map[string]session.FieldValue,
	confidence map[string]float64,
	missing []string,
	pageFields []session.PageField,
	correctionMode bool,
) Result {
	if correctionMode {
		return Result{}
	}

	labels := labelMap(pageFields)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var res Result
	for _, key := range keys {
		conf := effectiveConfidence(key, fields[key], confidence)
		line := "✓"
		if conf < Threshold {
			res.LowConfidence = append(res.LowConfidence, key)
			line = "⚠"
		}
		res.Summary = append(res.Summary, fmt.Sprintf("  %s %s: %q (confidence: %.0f%%)",
			line, pretty(key, labels), fields[key].Value, conf*100))
	}

	if len(res.LowConfidence) == 0 && len(missing) == 0 {
		res.ReadyToFill = true
		res.Confirmed = true
		return res
	}

	var parts []string
	if len(res.LowConfidence) > 0 {
		parts = append(parts, "I'm not sure about: "+joinPretty(res.LowConfidence, labels))
	}
	if len(missing) > 0 {
		sorted := slices.Clone(missing)
		slices.Sort(sorted)
		parts = append(parts, "Still missing: "+joinPretty(sorted, labels))
	}
	res.NeedsClarification = true
	res.ClarificationQuestion = strings.Join(parts, ". ") + ". Could you provide or confirm these?"
	return res
}

// EffectiveConfidence exposes the gate's confidence resolution for callers
// that need the same number (the output assembler).
func EffectiveConfidence(key string, field session.FieldValue, confidence map[string]float64) float64 {
	return effectiveConfidence(key, field, confidence)
}

func effectiveConfidence(key string, field session.FieldValue, confidence map[string]float64) float64 {
	if c, ok := confidence[key]; ok && c > 0 {
		return c
	}
	if field.Confidence > 0 {
		return field.Confidence
	}
	return 0.5
}

// labelMap indexes human-readable labels by both field id and name.
// Preference order per field: label, placeholder, aria-label.
func labelMap(pageFields []session.PageField) map[string]string {
	labels := make(map[string]string, len(pageFields)*2)
	for _, f := range pageFields {
		label := f.Label
		if label == "" {
			label = f.Placeholder
		}
		if label == "" {
			label = f.AriaLabel
		}
		if f.ID != "" {
			labels[f.ID] = firstNonEmpty(label, f.ID)
		}
		if f.Name != "" {
			labels[f.Name] = firstNonEmpty(label, f.Name)
		}
	}
	return labels
}

// pretty returns the human-readable form of a field key: its DOM label when
// one exists and differs from the key, otherwise the key itself title-cased
// with separators turned into spaces.
func pretty(key string, labels map[string]string) string {
	if label, ok := labels[key]; ok && label != key {
		return label
	}
	return titleCase(key)
}

func joinPretty(keys []string, labels map[string]string) string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = pretty(k, labels)
	}
	return strings.Join(out, ", ")
}

func titleCase(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
