package pipeline

import "github.com/MrWong99/voxfill/internal/session"

// route is the decision taken after the confirmation gate.
type route int

const (
	// routePause returns the clarification question to the user and waits
	// for the next turn.
	routePause route = iota

	// routeCorrection runs the correction capability, then re-evaluates.
	routeCorrection

	// routeOutput assembles the final payload.
	routeOutput

	// routeEnd pauses without a question. Safety fallback for flag
	// combinations no node should produce.
	routeEnd
)

// routeAfterConfirm picks the next step from the state flags. Priority:
// correction first, then clarification, then output.
func routeAfterConfirm(s *session.State) route {
	switch {
	case s.CorrectionMode:
		return routeCorrection
	case s.NeedsClarification:
		return routePause
	case s.ReadyToFill:
		return routeOutput
	default:
		return routeEnd
	}
}
