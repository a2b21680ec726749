// Package pipeline runs the multi-turn form-filling conversation: one Turn
// call per user utterance, stepping through intake, extraction, selector
// matching, the confirmation gate, and either the correction capability, a
// clarification pause, or final payload assembly.
//
// Each turn works on a deep copy of the persisted session state and commits
// it with a single Put at the end, so a failed turn never corrupts the state
// committed by earlier turns. Concurrent turns for the same session are
// rejected, not queued.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"log/slog"

	"github.com/MrWong99/voxfill/internal/confirm"
	"github.com/MrWong99/voxfill/internal/correct"
	"github.com/MrWong99/voxfill/internal/extract"
	"github.com/MrWong99/voxfill/internal/observe"
	"github.com/MrWong99/voxfill/internal/output"
	"github.com/MrWong99/voxfill/internal/sanitize"
	"github.com/MrWong99/voxfill/internal/selector"
	"github.com/MrWong99/voxfill/internal/session"
)

// defaultCapabilityTimeout bounds each LLM capability call within a turn.
const defaultCapabilityTimeout = 30 * time.Second

// defaultMaxConcurrentTurns bounds process-wide in-flight turns.
const defaultMaxConcurrentTurns = 64

// degradedRetryQuestion is asked whenever the extraction capability degraded
// to pattern matching. The regex guesses are kept as partials but the user
// must restate before anything is filled.
const degradedRetryQuestion = "I had trouble understanding. Could you repeat your details?"

// Response statuses.
const (
	StatusSuccess    = "success"
	StatusNeedsInput = "needs_input"
	StatusError      = "error"
)

// Request is one user turn.
type Request struct {
	// SessionID identifies the conversation. Empty on the first turn; the
	// response carries the assigned id.
	SessionID string `json:"session_id"`

	// UserID identifies the end user. Optional.
	UserID string `json:"user_id"`

	// Transcript is the raw voice transcript for this turn.
	Transcript string `json:"transcript"`

	// UserResponse carries the user's answer to a clarification or
	// correction prompt. Empty means the transcript doubles as the answer.
	UserResponse string `json:"user_response"`

	// PageFields is the form field catalog from the DOM scan.
	PageFields []session.PageField `json:"page_fields"`

	// CorrectionMode requests a single targeted field fix instead of a
	// regular extraction verdict.
	CorrectionMode bool `json:"correction_mode"`
}

// Response is the three-status envelope returned for every turn.
type Response struct {
	// Status is one of success, needs_input, or error.
	Status string `json:"status"`

	// SessionID echoes (or assigns) the conversation id.
	SessionID string `json:"session_id"`

	// Payload is set when Status is success.
	Payload *session.FillPayload `json:"payload,omitempty"`

	// Question, Partial, Missing, and Summary are set when Status is
	// needs_input. Summary carries the per-field review lines for the
	// voice UI to read back.
	Question string                        `json:"question,omitempty"`
	Partial  map[string]session.FieldValue `json:"partial,omitempty"`
	Missing  []string                      `json:"missing,omitempty"`
	Summary  []string                      `json:"summary,omitempty"`

	// Message is set when Status is error.
	Message string `json:"message,omitempty"`
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithCapabilityTimeout bounds each LLM capability call. Default: 30s.
func WithCapabilityTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.capabilityTimeout = d
	}
}

// WithMaxConcurrentTurns bounds process-wide in-flight turns. Default: 64.
func WithMaxConcurrentTurns(n int64) Option {
	return func(p *Pipeline) {
		p.limiter = newTurnLimiter(n)
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline orchestrates turns over a session store and the two LLM
// capabilities. It is safe for concurrent use across sessions.
type Pipeline struct {
	store     session.Store
	extractor *extract.Extractor
	corrector *correct.Corrector

	limiter           *turnLimiter
	capabilityTimeout time.Duration
	log               *slog.Logger
	metrics           *observe.Metrics
}

// New constructs a Pipeline over the given store and capabilities.
func New(store session.Store, extractor *extract.Extractor, corrector *correct.Corrector, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:             store,
		extractor:         extractor,
		corrector:         corrector,
		limiter:           newTurnLimiter(defaultMaxConcurrentTurns),
		capabilityTimeout: defaultCapabilityTimeout,
		log:               slog.Default(),
		metrics:           observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Turn processes one user utterance and returns the response envelope. It
// never panics: internal panics resolve to an error response with the
// session state left as the previous turn committed it.
func (p *Pipeline) Turn(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("turn panicked",
				slog.String("session_id", sessionID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			resp = Response{
				Status:    StatusError,
				SessionID: sessionID,
				Message:   "internal error while processing the turn",
			}
		}
		p.metrics.RecordTurn(ctx, resp.Status, time.Since(start))
	}()

	if err := p.limiter.acquire(ctx, sessionID); err != nil {
		if errors.Is(err, ErrSessionBusy) {
			p.metrics.BusyRejections.Add(ctx, 1)
			return Response{
				Status:    StatusError,
				SessionID: sessionID,
				Message:   "session is already processing a turn, try again shortly",
			}
		}
		return Response{Status: StatusError, SessionID: sessionID, Message: err.Error()}
	}
	defer p.limiter.release(sessionID)

	p.metrics.ActiveTurns.Add(ctx, 1)
	defer p.metrics.ActiveTurns.Add(ctx, -1)

	ctx, span := observe.StartSpan(ctx, "pipeline.turn")
	defer span.End()
	log := observe.Logger(ctx).With(slog.String("session_id", sessionID))

	st, err := p.loadState(ctx, sessionID)
	if err != nil {
		log.Error("load session failed", slog.String("error", err.Error()))
		return Response{Status: StatusError, SessionID: sessionID, Message: "could not load session state"}
	}
	st.UserID = firstNonEmpty(req.UserID, st.UserID)
	st.CorrectionMode = req.CorrectionMode

	// Intake: redact, count the turn, log the sanitized utterance.
	sanitized, redactedTypes := sanitize.Redact(req.Transcript)
	st.TurnCount++
	historyBefore := slices.Clone(st.History)
	st.AppendHistory(st.TurnCount, session.RoleUser, sanitized)
	if len(redactedTypes) > 0 {
		st.ContainsSensitive = true
		p.metrics.SensitiveRedactions.Add(ctx, int64(len(redactedTypes)))
		log.Info("sensitive data redacted", slog.Any("types", redactedTypes))
	}

	// Extract.
	res, err := p.runExtract(ctx, sanitized, req.PageFields, st, historyBefore)
	if err != nil {
		log.Error("extraction aborted", slog.String("error", err.Error()))
		return Response{Status: StatusError, SessionID: sessionID, Message: "turn aborted before completion"}
	}
	st.Fields = extract.Merge(st.Fields, res.Fields)
	st.AppendHistory(st.TurnCount, session.RoleAssistant, extractedSummary(res.Fields))
	st.ErrorMessage = ""
	degraded := res.Outcome == extract.OutcomeTransportFailure || res.Outcome == extract.OutcomeSchemaInvalid
	if degraded {
		st.ErrorMessage = fmt.Sprintf("llm extraction degraded: %s, pattern fallback applied", res.Outcome)
		log.Warn("extraction degraded", slog.String("outcome", string(res.Outcome)))
	}

	// Match selectors, compute missing, run the gate.
	match, verdict := p.evaluate(st, req.PageFields)
	decision := routeAfterConfirm(st)

	if decision == routeCorrection {
		applied, err := p.runCorrection(ctx, firstNonEmpty(req.UserResponse, sanitized), st)
		if err != nil {
			log.Error("correction aborted", slog.String("error", err.Error()))
			return Response{Status: StatusError, SessionID: sessionID, Message: "turn aborted before completion"}
		}
		if applied {
			match, verdict = p.evaluate(st, req.PageFields)
		}
		decision = routeAfterConfirm(st)
	}

	// A degraded turn never releases: the regex guesses survive as partials,
	// but the user must restate before anything fills.
	if degraded {
		st.NeedsClarification = true
		st.ClarificationQuestion = degradedRetryQuestion
		st.ReadyToFill = false
		st.Confirmed = false
		st.Missing = pageFieldKeys(req.PageFields)
		decision = routeAfterConfirm(st)
	}

	if decision == routeOutput {
		st.FinalPayload = output.Assemble(st, match.Confidence)
	}

	if err := p.store.Put(ctx, st); err != nil {
		log.Error("persist session failed", slog.String("error", err.Error()))
		return Response{Status: StatusError, SessionID: sessionID, Message: "could not persist session state"}
	}

	log.Info("turn completed",
		slog.Int("turn", st.TurnCount),
		slog.Int("fields", len(st.Fields)),
		slog.Int("missing", len(st.Missing)),
		slog.Bool("sensitive", st.ContainsSensitive),
		slog.String("extract_outcome", string(res.Outcome)),
	)

	return p.respond(st, decision, verdict.Summary)
}

// Reset deletes the conversation state for the given session.
func (p *Pipeline) Reset(ctx context.Context, sessionID string) error {
	if err := p.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("pipeline: reset %q: %w", sessionID, err)
	}
	return nil
}

// loadState fetches the committed state for the session or starts a fresh
// one. The store already returns a private copy.
func (p *Pipeline) loadState(ctx context.Context, sessionID string) (*session.State, error) {
	st, err := p.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return session.New(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// runExtract executes the extraction capability under the capability timeout
// and records its metrics.
func (p *Pipeline) runExtract(
	ctx context.Context,
	sanitized string,
	pageFields []session.PageField,
	st *session.State,
	history []session.HistoryEntry,
) (extract.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, p.capabilityTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.extractor.Extract(cctx, sanitized, pageFields, st.Fields, history)
	status := "ok"
	if err != nil {
		status = "aborted"
	}
	p.metrics.RecordCapability(ctx, "extract", status, time.Since(start))
	if err != nil {
		return extract.Result{}, err
	}
	p.metrics.RecordExtractionOutcome(ctx, string(res.Outcome))
	return res, nil
}

// runCorrection executes the correction capability, applies its result to
// the state, and reports whether a field changed.
func (p *Pipeline) runCorrection(ctx context.Context, sanitized string, st *session.State) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, p.capabilityTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.corrector.Apply(cctx, sanitized, st.Fields)
	status := "ok"
	if err != nil {
		status = "aborted"
	}
	p.metrics.RecordCapability(ctx, "correct", status, time.Since(start))
	if err != nil {
		return false, err
	}

	st.CorrectionMode = false
	if !res.Applied {
		st.NeedsClarification = true
		st.ClarificationQuestion = res.Question
		st.ReadyToFill = false
		st.Confirmed = false
		st.ErrorMessage = res.ErrorMessage
		return false, nil
	}

	st.Fields = res.Fields
	st.ErrorMessage = ""
	st.AppendHistory(st.TurnCount, session.RoleUser, res.HistoryContent())
	return true, nil
}

// evaluate runs selector matching, recomputes the missing set, and applies
// the confirmation gate's verdict to the state flags.
func (p *Pipeline) evaluate(st *session.State, pageFields []session.PageField) (selector.Result, confirm.Result) {
	match := selector.Match(st.Fields, pageFields)
	st.Selectors = match.Selectors
	st.Missing = missingRequired(st.Fields, pageFields)

	verdict := confirm.Review(st.Fields, match.Confidence, st.Missing, pageFields, st.CorrectionMode)
	st.NeedsClarification = verdict.NeedsClarification
	st.ClarificationQuestion = verdict.ClarificationQuestion
	st.ReadyToFill = verdict.ReadyToFill
	st.Confirmed = verdict.Confirmed
	return match, verdict
}

// respond converts the final state and route decision into the envelope.
func (p *Pipeline) respond(st *session.State, decision route, summary []string) Response {
	switch decision {
	case routeOutput:
		return Response{
			Status:    StatusSuccess,
			SessionID: st.SessionID,
			Payload:   st.FinalPayload,
		}
	case routePause, routeCorrection:
		question := st.ClarificationQuestion
		if question == "" {
			question = "Could you provide more information?"
		}
		return Response{
			Status:    StatusNeedsInput,
			SessionID: st.SessionID,
			Question:  question,
			Partial:   st.Fields,
			Missing:   st.Missing,
			Summary:   summary,
		}
	default:
		message := st.ErrorMessage
		if message == "" {
			message = "form filling incomplete"
		}
		return Response{
			Status:    StatusError,
			SessionID: st.SessionID,
			Message:   message,
		}
	}
}

// missingRequired lists the required page field keys that no collected value
// satisfies. Keys compare through normalization, so a collected "name" value
// satisfies a required "fullName" field.
func missingRequired(fields map[string]session.FieldValue, pageFields []session.PageField) []string {
	have := make(map[string]bool, len(fields))
	for k := range fields {
		have[selector.Normalize(k)] = true
		have[k] = true
	}

	var missing []string
	for _, f := range pageFields {
		if !f.IsRequired {
			continue
		}
		key := f.Key()
		if key == "" {
			continue
		}
		if have[key] || have[selector.Normalize(key)] {
			continue
		}
		missing = append(missing, key)
	}
	slices.Sort(missing)
	return missing
}

// pageFieldKeys lists every page field key, sorted. Used as the missing set
// on degraded turns, where no field can be trusted as satisfied.
func pageFieldKeys(pageFields []session.PageField) []string {
	var keys []string
	for _, f := range pageFields {
		if key := f.Key(); key != "" {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// extractedSummary renders the assistant history entry for an extraction
// pass without repeating any values.
func extractedSummary(fields map[string]session.FieldValue) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return fmt.Sprintf("Extracted: %v", keys)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
