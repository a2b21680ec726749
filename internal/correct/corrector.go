// Package correct implements the correction capability: a targeted LLM call
// that identifies the single field a user wants to change and applies the
// new value while leaving every other collected value untouched.
//
// The capability never surfaces backend failures as turn errors. An
// unreachable model, unparseable output, or an unrecognised field all
// resolve into a clarification question so the user can simply try again.
package correct

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/voxfill/internal/sanitize"
	"github.com/MrWong99/voxfill/internal/session"
	llm "github.com/MrWong99/voxfill/pkg/provider/llm"
)

const (
	defaultTemperature = 0.0
	defaultConfidence  = 0.9
)

const systemPrompt = `You are a form-filling correction assistant.
The user wants to change a specific field value they previously provided.

Given the user's correction statement and the current field values,
identify WHICH field the user wants to change and what the NEW value should be.

Return ONLY valid JSON:
{
  "corrected_field": "field_name",
  "new_value": "the new value",
  "confidence": 0.95
}

- Only correct ONE field per request.
- If you cannot determine which field to correct, return:
  {"corrected_field": null, "new_value": null, "confidence": 0.0}
- Return ONLY valid JSON, no markdown, no explanation.`

// llmResponse is the expected JSON structure returned by the LLM.
type llmResponse struct {
	CorrectedField string  `json:"corrected_field"`
	NewValue       string  `json:"new_value"`
	Confidence     float64 `json:"confidence"`
}

// Result describes the effect of one correction attempt.
type Result struct {
	// Fields is the full field map after the attempt. On any non-applied
	// outcome it is the input map unchanged.
	Fields map[string]session.FieldValue

	// Applied is true when exactly one field was updated.
	Applied bool

	// Key and Value identify the applied change.
	Key   string
	Value string

	// SanitizedInput is the correction text after redaction, for history.
	SanitizedInput string

	// NeedsClarification and Question are set on every non-applied outcome.
	NeedsClarification bool
	Question           string

	// ErrorMessage records the failure cause when the backend or its output
	// was at fault, empty otherwise.
	ErrorMessage string
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Default: 0.0.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector applies single-field corrections using an [llm.Provider].
// It is safe for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a new [Corrector] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Apply runs the correction capability over the user's raw correction text
// and the currently collected fields. The input is sanitized before leaving
// the process. The fields map is never mutated; the result carries a new map.
//
// The returned error is non-nil only for context cancellation.
func (c *Corrector) Apply(
	ctx context.Context,
	input string,
	fields map[string]session.FieldValue,
) (Result, error) {
	if strings.TrimSpace(input) == "" {
		return Result{
			Fields:             fields,
			NeedsClarification: true,
			Question:           "What would you like to correct?",
			ErrorMessage:       "no correction input provided",
		}, nil
	}

	sanitized, _ := sanitize.Redact(input)

	current := make(map[string]string, len(fields))
	for k, v := range fields {
		current[k] = v.Value
	}
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return Result{}, fmt.Errorf("correct: encode current values: %w", err)
	}

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		Messages: []llm.Message{{
			Role: session.RoleUser,
			Content: fmt.Sprintf(
				"Current form values: %s\n\nUser's correction: %q\n\nIdentify which field to correct and the new value.",
				currentJSON, sanitized,
			),
		}},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("correct: complete: %w", err)
		}
		return Result{
			Fields:             fields,
			SanitizedInput:     sanitized,
			NeedsClarification: true,
			Question:           "I had trouble processing the correction. Could you try again?",
			ErrorMessage:       fmt.Sprintf("correction processing failed: %v", err),
		}, nil
	}

	parsed, parseErr := parseResponse(resp.Content)
	if parseErr != nil {
		return Result{
			Fields:             fields,
			SanitizedInput:     sanitized,
			NeedsClarification: true,
			Question:           "I had trouble processing the correction. Could you try again?",
			ErrorMessage:       fmt.Sprintf("correction processing failed: %v", parseErr),
		}, nil
	}

	prior, known := fields[parsed.CorrectedField]
	if parsed.CorrectedField == "" || parsed.NewValue == "" || !known {
		return Result{
			Fields:             fields,
			SanitizedInput:     sanitized,
			NeedsClarification: true,
			Question:           "I couldn't identify which field to correct. Could you be more specific?",
		}, nil
	}

	conf := parsed.Confidence
	if conf <= 0 {
		conf = defaultConfidence
	}
	if conf > 1 {
		conf = 1
	}

	updated := make(map[string]session.FieldValue, len(fields))
	for k, v := range fields {
		updated[k] = v
	}
	prior.Value = parsed.NewValue
	prior.Confidence = conf
	prior.SourceText = sanitized
	updated[parsed.CorrectedField] = prior

	return Result{
		Fields:         updated,
		Applied:        true,
		Key:            parsed.CorrectedField,
		Value:          parsed.NewValue,
		SanitizedInput: sanitized,
	}, nil
}

// HistoryContent renders the history entry recorded for an applied
// correction.
func (r Result) HistoryContent() string {
	return fmt.Sprintf("Correction: %s -> %s", r.Key, r.Value)
}

// parseResponse unmarshals the LLM output, tolerating markdown fences and
// surrounding prose around the JSON object.
func parseResponse(content string) (llmResponse, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err == nil {
		return r, nil
	}

	// Second chance: pull the outermost JSON object out of surrounding text.
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &r); err == nil {
			return r, nil
		}
	}
	return llmResponse{}, fmt.Errorf("correct: parse response: no JSON object found")
}

func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
