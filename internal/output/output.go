// Package output assembles the final fill payload handed to the browser
// agent once the confirmation gate has released the conversation.
package output

import (
	"slices"

	"github.com/MrWong99/voxfill/internal/confirm"
	"github.com/MrWong99/voxfill/internal/session"
)

// Assemble builds the fill payload from the conversation state. It is a pure
// function of its inputs: every extracted field appears in FieldsToFill with
// its value, effective confidence, ranked selectors, and source fragment.
func Assemble(state *session.State, confidence map[string]float64) *session.FillPayload {
	fieldsToFill := make(map[string]session.FilledField, len(state.Fields))
	summary := make(map[string]string, len(state.Fields))

	for key, f := range state.Fields {
		fieldsToFill[key] = session.FilledField{
			Value:      f.Value,
			Confidence: confirm.EffectiveConfidence(key, f, confidence),
			Selectors:  slices.Clone(state.Selectors[key]),
			SourceText: f.SourceText,
		}
		summary[key] = f.Value
	}

	missing := slices.Clone(state.Missing)
	if missing == nil {
		missing = []string{}
	}
	slices.Sort(missing)

	return &session.FillPayload{
		Status:            "success",
		SessionID:         state.SessionID,
		FieldsToFill:      fieldsToFill,
		MissingFields:     missing,
		NeedsConfirmation: false,
		SensitiveDetected: state.ContainsSensitive,
		Summary:           summary,
	}
}
