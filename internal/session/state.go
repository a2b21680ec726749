// Package session defines the persisted per-conversation record that the
// turn pipeline reads, mutates, and commits, together with the keyed Store
// contract used to persist it.
//
// One State exists per conversation, keyed by a stable session id. Every
// pipeline node mutates a working copy in sequence; the pipeline persists the
// result atomically at end of turn, so a failed turn can never corrupt the
// record committed by prior turns.
package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// History roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FieldValue is a single extracted form value with its provenance.
type FieldValue struct {
	// Value is the text to inject into the form field.
	Value string `json:"value"`

	// Confidence is the extraction confidence in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// SourceText is the transcript fragment the value came from
	// (post-sanitization).
	SourceText string `json:"source_text"`
}

// HistoryEntry is one turn of the conversation. Content is always the
// sanitized form — raw transcript text is never persisted.
type HistoryEntry struct {
	Turn    int    `json:"turn"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PageField describes one input element found by the DOM scanner
// collaborator. It is immutable input for the duration of a turn.
type PageField struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Label        string `json:"label"`
	Placeholder  string `json:"placeholder"`
	AriaLabel    string `json:"ariaLabel"`
	Autocomplete string `json:"autocomplete"`
	Type         string `json:"type"`
	IsRequired   bool   `json:"isRequired"`

	// Selector is the element's own pre-computed selector, considered the
	// most reliable way to address it. May be empty.
	Selector string `json:"selector"`
}

// Key returns the canonical extraction key for the field: the name
// attribute when present, otherwise the id. Empty when the field has neither.
func (f PageField) Key() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

// FilledField is one entry of the final fill payload: the value plus the
// ranked selectors the browser agent should try in order.
type FilledField struct {
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Selectors  []string `json:"selectors"`
	SourceText string   `json:"source_text"`
}

// FillPayload is the assembled end product of a successful conversation,
// shaped for direct consumption by the browser-side filling agent.
type FillPayload struct {
	Status            string                 `json:"status"`
	SessionID         string                 `json:"session_id"`
	FieldsToFill      map[string]FilledField `json:"fields_to_fill"`
	MissingFields     []string               `json:"missing_fields"`
	NeedsConfirmation bool                   `json:"needs_confirmation"`
	SensitiveDetected bool                   `json:"sensitive_detected"`
	Summary           map[string]string      `json:"summary"`
}

// State is the complete persisted record for one conversation.
type State struct {
	// SessionID is the stable key for this conversation. Never changes after
	// the first turn.
	SessionID string `json:"session_id"`

	// UserID identifies the end user, for multi-profile deployments.
	UserID string `json:"user_id"`

	// TurnCount is the number of user turns processed so far.
	TurnCount int `json:"turn_count"`

	// History is the ordered conversation log, sanitized content only.
	History []HistoryEntry `json:"history"`

	// Fields maps canonical field keys to their extracted values. Keys are
	// the PageField name-or-id keys used consistently by the extractor,
	// selector matcher, confirmation gate, and output assembler.
	Fields map[string]FieldValue `json:"fields"`

	// Selectors maps field keys to priority-ordered selector lists,
	// most reliable first.
	Selectors map[string][]string `json:"selectors"`

	// Missing lists required field keys the user has not yet provided.
	// Treated as a set; order is not significant.
	Missing []string `json:"missing"`

	// ContainsSensitive is true when any sensitive-data pattern matched in
	// any turn of this conversation.
	ContainsSensitive bool `json:"contains_sensitive"`

	// NeedsClarification pauses the conversation for user input.
	NeedsClarification bool `json:"needs_clarification"`

	// CorrectionMode requests a single targeted field fix this turn.
	CorrectionMode bool `json:"correction_mode"`

	// ReadyToFill is true when every field is confident and complete.
	ReadyToFill bool `json:"ready_to_fill"`

	// Confirmed mirrors ReadyToFill once the confirmation gate passes.
	Confirmed bool `json:"confirmed"`

	// ClarificationQuestion is the combined question to put to the user
	// when NeedsClarification is set.
	ClarificationQuestion string `json:"clarification_question"`

	// ErrorMessage records the most recent recoverable failure cause.
	ErrorMessage string `json:"error_message"`

	// FinalPayload is set by the output assembler on success. Nil until then.
	FinalPayload *FillPayload `json:"final_payload,omitempty"`
}

// New returns an initialised State for the given session id. An empty id is
// replaced with a freshly generated one.
func New(sessionID string) *State {
	if sessionID == "" {
		sessionID = NewID()
	}
	return &State{
		SessionID: sessionID,
		Fields:    make(map[string]FieldValue),
		Selectors: make(map[string][]string),
	}
}

// NewID generates a new random session id.
func NewID() string {
	return uuid.NewString()
}

// Validate checks the flag invariants that every node boundary must uphold.
// It returns a joined error listing all violations found.
func (s *State) Validate() error {
	var errs []error
	if s.SessionID == "" {
		errs = append(errs, errors.New("session: session id is empty"))
	}
	if s.ReadyToFill && s.NeedsClarification {
		errs = append(errs, errors.New("session: ready_to_fill and needs_clarification are both set"))
	}
	if s.CorrectionMode && s.ReadyToFill {
		errs = append(errs, errors.New("session: correction_mode forces ready_to_fill false"))
	}
	if s.TurnCount < 0 {
		errs = append(errs, fmt.Errorf("session: turn_count %d is negative", s.TurnCount))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of s. The pipeline works on a clone so that a
// failed turn leaves the committed record untouched.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s

	c.History = make([]HistoryEntry, len(s.History))
	copy(c.History, s.History)

	c.Fields = make(map[string]FieldValue, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}

	c.Selectors = make(map[string][]string, len(s.Selectors))
	for k, v := range s.Selectors {
		sel := make([]string, len(v))
		copy(sel, v)
		c.Selectors[k] = sel
	}

	c.Missing = make([]string, len(s.Missing))
	copy(c.Missing, s.Missing)

	if s.FinalPayload != nil {
		p := *s.FinalPayload
		p.FieldsToFill = make(map[string]FilledField, len(s.FinalPayload.FieldsToFill))
		for k, v := range s.FinalPayload.FieldsToFill {
			sel := make([]string, len(v.Selectors))
			copy(sel, v.Selectors)
			v.Selectors = sel
			p.FieldsToFill[k] = v
		}
		p.MissingFields = make([]string, len(s.FinalPayload.MissingFields))
		copy(p.MissingFields, s.FinalPayload.MissingFields)
		p.Summary = make(map[string]string, len(s.FinalPayload.Summary))
		for k, v := range s.FinalPayload.Summary {
			p.Summary[k] = v
		}
		c.FinalPayload = &p
	}

	return &c
}

// AppendHistory appends an entry for the given turn and role.
func (s *State) AppendHistory(turn int, role, content string) {
	s.History = append(s.History, HistoryEntry{Turn: turn, Role: role, Content: content})
}
