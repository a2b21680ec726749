// Package extract implements the extraction capability: turning a sanitized
// user utterance into structured form-field values.
//
// The [Extractor] sends the utterance to an [llm.Provider] together with the
// page's field catalog and the values collected so far. The model is
// instructed (via a conservative system prompt) to return a structured JSON
// object mapping field keys to values with per-field confidence and the
// source fragment each value came from.
//
// The capability degrades gracefully: when the backend is unreachable or
// returns unparseable output, [Fallback] pattern extraction runs instead, so
// a turn never dies on an LLM hiccup. The caller can distinguish the paths
// through [Result.Outcome].
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/voxfill/internal/session"
	llm "github.com/MrWong99/voxfill/pkg/provider/llm"
)

const (
	defaultTemperature = 0.0
	defaultMaxTokens   = 1024
)

// Outcome reports which path produced an extraction result.
type Outcome string

const (
	// OutcomeOK means the LLM responded with valid structured output.
	OutcomeOK Outcome = "ok"

	// OutcomeTransportFailure means the LLM call failed and the pattern
	// fallback ran instead.
	OutcomeTransportFailure Outcome = "transport_failure"

	// OutcomeSchemaInvalid means the LLM responded but its output was not the
	// expected JSON shape, and the pattern fallback ran instead.
	OutcomeSchemaInvalid Outcome = "schema_invalid"

	// OutcomeEmpty means extraction succeeded but found nothing new.
	OutcomeEmpty Outcome = "empty"
)

// systemPromptTemplate is the base system prompt. The field catalog and the
// already-collected values are appended at call time.
const systemPromptTemplate = `You are a form-filling assistant that extracts structured data from voice transcripts.

The user is filling out a web form with these fields:
%s

Values already collected in earlier turns:
%s

Your task: extract values for the form fields from the user's latest message.

Rules:
- Use the field keys listed above as JSON keys wherever a value clearly belongs to a listed field.
- Transcripts come from speech recognition: normalise spoken forms ("john at gmail dot com" becomes "john@gmail.com", "five five five" becomes "555").
- Extract ONLY what the user actually said. Never invent or guess values.
- A value repeated or restated in this message replaces the earlier one.
- source_text is the exact fragment of the user's message the value came from.
- confidence is your certainty in [0.0, 1.0] that the value is correct and belongs to that field.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "extracted_fields": {
    "<field key>": {"value": "<extracted value>", "confidence": <0.0-1.0>, "source_text": "<fragment>"}
  }
}

If the message contains no form data, return an empty extracted_fields object.`

// llmResponse is the expected JSON structure returned by the LLM.
type llmResponse struct {
	ExtractedFields map[string]struct {
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
		SourceText string  `json:"source_text"`
	} `json:"extracted_fields"`
}

// Result carries the values produced by one extraction pass.
type Result struct {
	// Fields maps field keys to extracted values. Only non-empty values with
	// confidence clamped to [0.0, 1.0] appear here.
	Fields map[string]session.FieldValue

	// Outcome reports which path produced Fields.
	Outcome Outcome

	// Usage is the token accounting of the LLM call, zero on fallback paths.
	Usage llm.Usage
}

// Option is a functional option for configuring an [Extractor].
type Option func(*Extractor)

// WithTemperature sets the LLM sampling temperature. Default: 0.0.
func WithTemperature(temp float64) Option {
	return func(e *Extractor) {
		e.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 1024.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		e.maxTokens = n
	}
}

// Extractor extracts form-field values from sanitized utterances using an
// [llm.Provider]. It is safe for concurrent use.
type Extractor struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a new [Extractor] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract runs the extraction capability over the user's latest sanitized
// message. fields is the page's field catalog, prior the values collected in
// earlier turns, history the sanitized conversation so far (latest user
// message last).
//
// The returned error is non-nil only for context cancellation; backend and
// parse failures fall back to pattern extraction and are reported through
// [Result.Outcome].
func (e *Extractor) Extract(
	ctx context.Context,
	message string,
	fields []session.PageField,
	prior map[string]session.FieldValue,
	history []session.HistoryEntry,
) (Result, error) {
	req := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(fields, prior),
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
		Messages:     buildMessages(message, history),
	}

	resp, err := e.llm.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("extract: complete: %w", err)
		}
		return Result{Fields: Fallback(message), Outcome: OutcomeTransportFailure}, nil
	}

	extracted, parseErr := parseResponse(resp.Content)
	if parseErr != nil {
		return Result{Fields: Fallback(message), Outcome: OutcomeSchemaInvalid, Usage: resp.Usage}, nil
	}

	outcome := OutcomeOK
	if len(extracted) == 0 {
		outcome = OutcomeEmpty
	}
	return Result{Fields: extracted, Outcome: outcome, Usage: resp.Usage}, nil
}

// Merge overlays newly extracted values onto the values collected so far.
// New keys win: a value restated this turn replaces the earlier one. The
// prior map is not modified.
func Merge(prior, extracted map[string]session.FieldValue) map[string]session.FieldValue {
	merged := make(map[string]session.FieldValue, len(prior)+len(extracted))
	for k, v := range prior {
		merged[k] = v
	}
	for k, v := range extracted {
		merged[k] = v
	}
	return merged
}

// buildSystemPrompt formats the system prompt template with the field
// catalog and the already-collected values.
func buildSystemPrompt(fields []session.PageField, prior map[string]session.FieldValue) string {
	var catalog strings.Builder
	for _, f := range fields {
		key := f.Key()
		if key == "" {
			continue
		}
		catalog.WriteString("- ")
		catalog.WriteString(key)
		if f.Label != "" {
			catalog.WriteString(" (label: ")
			catalog.WriteString(f.Label)
			catalog.WriteString(")")
		}
		if f.Type != "" {
			catalog.WriteString(" [type: ")
			catalog.WriteString(f.Type)
			catalog.WriteString("]")
		}
		if f.IsRequired {
			catalog.WriteString(" (required)")
		}
		catalog.WriteByte('\n')
	}
	if catalog.Len() == 0 {
		catalog.WriteString("(no fields detected on the page)\n")
	}

	var collected strings.Builder
	for k, v := range prior {
		fmt.Fprintf(&collected, "- %s: %s\n", k, v.Value)
	}
	if collected.Len() == 0 {
		collected.WriteString("(none yet)\n")
	}

	return fmt.Sprintf(systemPromptTemplate, catalog.String(), collected.String())
}

// buildMessages converts the sanitized history plus the latest message into
// the conversation sent to the model. The latest message is not yet part of
// history at call time.
func buildMessages(message string, history []session.HistoryEntry) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Content})
	}
	return append(msgs, llm.Message{Role: session.RoleUser, Content: message})
}

// parseResponse unmarshals the LLM output, strips markdown fences, drops
// entries with empty values, and clamps confidences into [0.0, 1.0].
func parseResponse(content string) (map[string]session.FieldValue, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil, fmt.Errorf("extract: parse response: %w", err)
	}

	out := make(map[string]session.FieldValue, len(r.ExtractedFields))
	for key, f := range r.ExtractedFields {
		if key == "" || strings.TrimSpace(f.Value) == "" {
			continue
		}
		out[key] = session.FieldValue{
			Value:      strings.TrimSpace(f.Value),
			Confidence: clamp01(f.Confidence),
			SourceText: f.SourceText,
		}
	}
	return out, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
