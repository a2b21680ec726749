package selector

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/voxfill/internal/session"
)

// jaroWinklerThreshold accepts near-identical attribute spellings in tier 1,
// e.g. "e_mail" against "email". High enough that unrelated field names
// never clear it.
const jaroWinklerThreshold = 0.90

// defaultConfidence applies when an extracted value carries no confidence.
const defaultConfidence = 0.5

// Result holds per-key selector lists and the confidence carried forward for
// the confirmation gate.
type Result struct {
	// Selectors maps each extracted key to its priority-ordered selector
	// list, most reliable first. Every extracted key has an entry.
	Selectors map[string][]string

	// Confidence maps each extracted key to the confidence the gate should
	// use for it.
	Confidence map[string]float64
}

// Match resolves every extracted field key against the scanned page fields
// and builds its selector list. The result is deterministic for identical
// inputs.
func Match(extracted map[string]session.FieldValue, pageFields []session.PageField) Result {
	res := Result{
		Selectors:  make(map[string][]string, len(extracted)),
		Confidence: make(map[string]float64, len(extracted)),
	}

	keys := make([]string, 0, len(extracted))
	for k := range extracted {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		normalized := Normalize(key)
		selectors := matchPageFields(key, normalized, pageFields)

		if len(selectors) == 0 {
			if cat, ok := catalog[normalized]; ok {
				selectors = append(selectors, cat...)
			}
		}
		if len(selectors) == 0 {
			selectors = genericSelectors(key, normalized)
		}

		res.Selectors[key] = selectors
		conf := extracted[key].Confidence
		if conf == 0 {
			conf = defaultConfidence
		}
		res.Confidence[key] = conf
	}

	return res
}

// matchPageFields runs the DOM-grounded tier: every page field that matches
// the key contributes its own selector first, then id and name selectors as
// backups. Duplicates are dropped while preserving order.
func matchPageFields(key, normalized string, pageFields []session.PageField) []string {
	var selectors []string
	seen := make(map[string]bool)
	add := func(s string, front bool) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		if front {
			selectors = append([]string{s}, selectors...)
			return
		}
		selectors = append(selectors, s)
	}

	for _, f := range pageFields {
		if !fieldsMatch(key, normalized, f) {
			continue
		}
		add(f.Selector, true)
		if f.ID != "" {
			add("#"+f.ID, false)
		}
		if f.Name != "" {
			add(fmt.Sprintf("[name='%s']", f.Name), false)
		}
	}
	return selectors
}

// fieldsMatch reports whether a scanned page field appears to be the target
// of the extracted key. Strategies, in order: exact or near-exact name/id
// match, autocomplete token mapping in both directions, substring
// containment, and label/placeholder word subsets.
func fieldsMatch(key, normalized string, f session.PageField) bool {
	raw := strings.ToLower(strings.TrimSpace(key))
	id := strings.ToLower(f.ID)
	name := strings.ToLower(f.Name)
	placeholder := strings.ToLower(f.Placeholder)
	label := strings.ToLower(f.Label)
	auto := strings.ToLower(f.Autocomplete)
	aria := strings.ToLower(f.AriaLabel)

	// Exact or near-exact attribute match.
	for _, attr := range []string{name, id} {
		if attr == "" {
			continue
		}
		if attr == raw || attr == normalized {
			return true
		}
		if matchr.JaroWinkler(attr, normalized, false) >= jaroWinklerThreshold {
			return true
		}
	}

	// Autocomplete token, both directions.
	if keysFor, ok := autocompleteMap[auto]; ok {
		if slices.Contains(keysFor, normalized) || slices.Contains(keysFor, raw) {
			return true
		}
	}
	for token, keysFor := range autocompleteMap {
		if slices.Contains(keysFor, normalized) || slices.Contains(keysFor, raw) {
			if auto == token {
				return true
			}
		}
	}

	// Substring containment. Terms shorter than 3 runes are skipped to avoid
	// accidental matches.
	terms := dedupe([]string{
		normalized,
		strings.ReplaceAll(normalized, "_", ""),
		raw,
		strings.ReplaceAll(raw, "_", ""),
		strings.ReplaceAll(raw, "-", ""),
	})
	targets := []string{id, name, placeholder, label, aria}
	for _, term := range terms {
		if len(term) < 3 {
			continue
		}
		for _, target := range targets {
			if target == "" {
				continue
			}
			if strings.Contains(target, term) || strings.Contains(term, target) {
				return true
			}
		}
	}

	// All words of the key appearing in the label or placeholder, e.g.
	// "first_name" against label "First Name".
	words := splitWords(raw)
	if len(words) > 0 {
		if subset(words, splitWords(label)) || subset(words, splitWords(placeholder)) {
			return true
		}
	}

	return false
}

// genericSelectors is the last-resort tier: wildcard attribute selectors for
// each distinct spelling variant of the key.
func genericSelectors(key, normalized string) []string {
	variants := dedupe([]string{
		strings.ToLower(strings.TrimSpace(key)),
		normalized,
		strings.ReplaceAll(normalized, "_", ""),
	})

	var selectors []string
	for _, v := range variants {
		if v == "" {
			continue
		}
		selectors = append(selectors,
			fmt.Sprintf("[name*='%s' i]", v),
			fmt.Sprintf("[id*='%s' i]", v),
			fmt.Sprintf("[placeholder*='%s' i]", v),
			fmt.Sprintf("[aria-label*='%s' i]", v),
			fmt.Sprintf("[autocomplete*='%s' i]", v),
		)
	}
	return selectors
}

func dedupe(in []string) []string {
	out := in[:0:0]
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func splitWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '\t'
	}) {
		words[w] = true
	}
	return words
}

// subset reports whether every word in need is present in have.
func subset(need, have map[string]bool) bool {
	if len(need) == 0 || len(have) == 0 {
		return false
	}
	for w := range need {
		if !have[w] {
			return false
		}
	}
	return true
}
