package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/voxfill/internal/correct"
	"github.com/MrWong99/voxfill/internal/extract"
	"github.com/MrWong99/voxfill/internal/pipeline"
	"github.com/MrWong99/voxfill/internal/session"
	llm "github.com/MrWong99/voxfill/pkg/provider/llm"
	"github.com/MrWong99/voxfill/pkg/provider/llm/mock"
)

var signupFields = []session.PageField{
	{ID: "full-name", Name: "full_name", Label: "Full Name", Type: "text", IsRequired: true, Selector: "#full-name"},
	{ID: "email", Name: "email", Label: "Email", Type: "email", IsRequired: true, Selector: "#email"},
	{ID: "phone", Name: "phone", Label: "Phone", Type: "tel", Selector: "#phone"},
}

func newPipeline(provider llm.Provider) (*pipeline.Pipeline, *session.MemStore) {
	store := session.NewMemStore()
	p := pipeline.New(store, extract.New(provider), correct.New(provider))
	return p, store
}

func jsonResp(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: content}
}

// TestConversationLifecycle walks the canonical three-turn conversation:
// partial input, completing answer, then a targeted correction.
func TestConversationLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			// Turn 1: extraction finds only the name.
			jsonResp(`{"extracted_fields": {"full_name": {"value": "Ahmed Khan", "confidence": 0.95, "source_text": "my name is Ahmed Khan"}}}`),
			// Turn 2: extraction finds the email.
			jsonResp(`{"extracted_fields": {"email": {"value": "ahmed@example.com", "confidence": 0.9, "source_text": "ahmed@example.com"}}}`),
			// Turn 3: extraction pass of the correction turn finds nothing.
			jsonResp(`{"extracted_fields": {}}`),
			// Turn 3: correction capability fixes the name.
			jsonResp(`{"corrected_field": "full_name", "new_value": "Muhammad Khan", "confidence": 0.95}`),
		},
	}
	p, store := newPipeline(provider)

	// Turn 1.
	resp := p.Turn(ctx, pipeline.Request{
		Transcript: "Hi, my name is Ahmed Khan",
		PageFields: signupFields,
	})
	if resp.Status != pipeline.StatusNeedsInput {
		t.Fatalf("turn 1 status = %q (%+v)", resp.Status, resp)
	}
	if resp.SessionID == "" {
		t.Fatal("turn 1 must assign a session id")
	}
	if !strings.Contains(resp.Question, "Still missing: Email") {
		t.Errorf("turn 1 question = %q", resp.Question)
	}
	if resp.Partial["full_name"].Value != "Ahmed Khan" {
		t.Errorf("turn 1 partial = %+v", resp.Partial)
	}
	var summarized bool
	for _, line := range resp.Summary {
		if strings.Contains(line, "Full Name") && strings.Contains(line, "Ahmed Khan") {
			summarized = true
		}
	}
	if !summarized {
		t.Errorf("turn 1 summary = %v", resp.Summary)
	}
	sessionID := resp.SessionID

	// Turn 2.
	resp = p.Turn(ctx, pipeline.Request{
		SessionID:  sessionID,
		Transcript: "my email is ahmed@example.com",
		PageFields: signupFields,
	})
	if resp.Status != pipeline.StatusSuccess {
		t.Fatalf("turn 2 status = %q (%+v)", resp.Status, resp)
	}
	if resp.Payload == nil {
		t.Fatal("turn 2 must carry a payload")
	}
	if got := resp.Payload.FieldsToFill["full_name"].Value; got != "Ahmed Khan" {
		t.Errorf("turn 1 value lost: %q", got)
	}
	if got := resp.Payload.FieldsToFill["email"].Value; got != "ahmed@example.com" {
		t.Errorf("email = %q", got)
	}
	if sel := resp.Payload.FieldsToFill["email"].Selectors; len(sel) == 0 || sel[0] != "#email" {
		t.Errorf("email selectors = %v", sel)
	}
	if len(resp.Payload.MissingFields) != 0 {
		t.Errorf("missing = %v", resp.Payload.MissingFields)
	}

	// Turn 3: correction.
	resp = p.Turn(ctx, pipeline.Request{
		SessionID:      sessionID,
		Transcript:     "wait, change my name to Muhammad Khan",
		PageFields:     signupFields,
		CorrectionMode: true,
	})
	if resp.Status != pipeline.StatusSuccess {
		t.Fatalf("turn 3 status = %q (%+v)", resp.Status, resp)
	}
	if got := resp.Payload.FieldsToFill["full_name"].Value; got != "Muhammad Khan" {
		t.Errorf("correction not applied: %q", got)
	}
	if got := resp.Payload.FieldsToFill["email"].Value; got != "ahmed@example.com" {
		t.Errorf("correction must preserve other fields: %q", got)
	}

	// The committed state reflects all three turns.
	st, err := store.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.TurnCount != 3 {
		t.Errorf("turn count = %d", st.TurnCount)
	}
	var correctionLogged bool
	for _, h := range st.History {
		if h.Content == "Correction: full_name -> Muhammad Khan" {
			correctionLogged = true
		}
	}
	if !correctionLogged {
		t.Errorf("correction history entry missing: %+v", st.History)
	}
}

func TestTurnRedactsSensitiveData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider := &mock.Provider{
		CompleteResponse: jsonResp(`{"extracted_fields": {"full_name": {"value": "Ahmed Khan", "confidence": 0.95, "source_text": "my name is Ahmed Khan"}, "email": {"value": "a@b.com", "confidence": 0.9, "source_text": "a@b.com"}}}`),
	}
	p, store := newPipeline(provider)

	resp := p.Turn(ctx, pipeline.Request{
		Transcript: "my name is Ahmed Khan, email a@b.com, and my card is 4111 1111 1111 1111",
		PageFields: signupFields,
	})
	if resp.Status != pipeline.StatusSuccess {
		t.Fatalf("status = %q (%+v)", resp.Status, resp)
	}
	if !resp.Payload.SensitiveDetected {
		t.Error("sensitive_detected must be set")
	}

	// Neither the LLM request nor the persisted history may carry the card.
	for _, call := range provider.CompleteCalls {
		for _, m := range call.Req.Messages {
			if strings.Contains(m.Content, "4111") {
				t.Errorf("raw card number sent to LLM: %q", m.Content)
			}
		}
	}
	st, _ := store.Get(ctx, resp.SessionID)
	for _, h := range st.History {
		if strings.Contains(h.Content, "4111") {
			t.Errorf("raw card number persisted: %q", h.Content)
		}
	}
	if !st.ContainsSensitive {
		t.Error("contains_sensitive must persist")
	}
}

func TestTurnExtractionFallbackStillProgresses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider := &mock.Provider{CompleteErr: errors.New("connection refused")}
	p, _ := newPipeline(provider)

	resp := p.Turn(ctx, pipeline.Request{
		Transcript: "my name is Ahmed Khan and my email is ahmed@example.com",
		PageFields: signupFields,
	})

	// Pattern fallback keeps both values as partials, but a degraded turn
	// always pauses with the retry question and the full missing set.
	if resp.Status != pipeline.StatusNeedsInput {
		t.Fatalf("status = %q (%+v)", resp.Status, resp)
	}
	if resp.Partial["email"].Value != "ahmed@example.com" {
		t.Errorf("fallback email missing: %+v", resp.Partial)
	}
	if !strings.Contains(resp.Question, "Could you repeat your details") {
		t.Errorf("question = %q", resp.Question)
	}
	want := []string{"email", "full_name", "phone"}
	if !slices.Equal(resp.Missing, want) {
		t.Errorf("missing = %v, want %v", resp.Missing, want)
	}
}

// TestTurnDegradedExtractionNeverCompletes pins the rule that regex-only
// values cannot fill a form, even when their fixed confidence clears the
// gate on its own.
func TestTurnDegradedExtractionNeverCompletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	emailOnly := []session.PageField{
		{ID: "email", Name: "email", Label: "Email", Type: "email", IsRequired: true, Selector: "#email"},
	}

	for name, provider := range map[string]llm.Provider{
		"transport failure": &mock.Provider{CompleteErr: errors.New("connection refused")},
		"schema invalid":    &mock.Provider{CompleteResponse: jsonResp("sorry, I cannot help with that")},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p, _ := newPipeline(provider)

			resp := p.Turn(ctx, pipeline.Request{
				Transcript: "you can reach me at ahmed@example.com",
				PageFields: emailOnly,
			})
			if resp.Status == pipeline.StatusSuccess {
				t.Fatalf("degraded turn must not complete: %+v", resp)
			}
			if resp.Status != pipeline.StatusNeedsInput {
				t.Fatalf("status = %q (%+v)", resp.Status, resp)
			}
			if resp.Partial["email"].Value != "ahmed@example.com" {
				t.Errorf("fallback value must survive as partial: %+v", resp.Partial)
			}
			if !slices.Equal(resp.Missing, []string{"email"}) {
				t.Errorf("missing = %v, want all page keys", resp.Missing)
			}
		})
	}
}

// TestTurnCorrectionUsesUserResponse checks that the correction capability
// consumes the dedicated answer field when the client sends one.
func TestTurnCorrectionUsesUserResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			jsonResp(`{"extracted_fields": {"full_name": {"value": "Ahmed Khan", "confidence": 0.95, "source_text": "n"}, "email": {"value": "a@b.com", "confidence": 0.9, "source_text": "e"}}}`),
			jsonResp(`{"extracted_fields": {}}`),
			jsonResp(`{"corrected_field": "full_name", "new_value": "Muhammad Khan", "confidence": 0.95}`),
		},
	}
	p, _ := newPipeline(provider)

	resp := p.Turn(ctx, pipeline.Request{
		SessionID:  "s1",
		Transcript: "my name is Ahmed Khan, email a@b.com",
		PageFields: signupFields,
	})
	if resp.Status != pipeline.StatusSuccess {
		t.Fatalf("setup turn status = %q (%+v)", resp.Status, resp)
	}

	resp = p.Turn(ctx, pipeline.Request{
		SessionID:      "s1",
		Transcript:     "no wait",
		UserResponse:   "change my name to Muhammad Khan",
		PageFields:     signupFields,
		CorrectionMode: true,
	})
	if resp.Status != pipeline.StatusSuccess {
		t.Fatalf("correction turn status = %q (%+v)", resp.Status, resp)
	}

	// The third LLM call is the correction; its user message must carry the
	// dedicated answer, not the bare transcript.
	calls := provider.CompleteCalls
	if len(calls) != 3 {
		t.Fatalf("llm calls = %d", len(calls))
	}
	correction := calls[2].Req.Messages[len(calls[2].Req.Messages)-1].Content
	if !strings.Contains(correction, "change my name to Muhammad Khan") {
		t.Errorf("correction message = %q", correction)
	}
}

func TestTurnLowConfidencePauses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider := &mock.Provider{
		CompleteResponse: jsonResp(`{"extracted_fields": {"full_name": {"value": "Ahmed Khan", "confidence": 0.6, "source_text": "name"}, "email": {"value": "a@b.com", "confidence": 0.9, "source_text": "a@b.com"}}}`),
	}
	p, _ := newPipeline(provider)

	resp := p.Turn(ctx, pipeline.Request{
		Transcript: "something mumbled",
		PageFields: signupFields,
	})
	if resp.Status != pipeline.StatusNeedsInput {
		t.Fatalf("status = %q (%+v)", resp.Status, resp)
	}
	if !strings.Contains(resp.Question, "I'm not sure about: Full Name") {
		t.Errorf("question = %q", resp.Question)
	}
}

func TestTurnRejectsConcurrentSameSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gate := make(chan struct{})
	provider := &blockingProvider{gate: gate}
	store := session.NewMemStore()
	p := pipeline.New(store, extract.New(provider), correct.New(provider))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Turn(ctx, pipeline.Request{SessionID: "s1", Transcript: "first", PageFields: signupFields})
	}()

	<-provider.started()

	resp := p.Turn(ctx, pipeline.Request{SessionID: "s1", Transcript: "second", PageFields: signupFields})
	if resp.Status != pipeline.StatusError || !strings.Contains(resp.Message, "already processing") {
		t.Errorf("concurrent turn must be rejected, got %+v", resp)
	}

	close(gate)
	wg.Wait()
}

func TestTurnRecoversFromPanic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, _ := newPipeline(&panickingProvider{})

	resp := p.Turn(ctx, pipeline.Request{SessionID: "s1", Transcript: "boom", PageFields: signupFields})
	if resp.Status != pipeline.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if resp.SessionID != "s1" {
		t.Errorf("session id = %q", resp.SessionID)
	}

	// The session stays usable afterwards.
	resp = p.Turn(ctx, pipeline.Request{SessionID: "s1", Transcript: "boom again", PageFields: signupFields})
	if resp.Status != pipeline.StatusError {
		t.Errorf("second turn status = %q", resp.Status)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider := &mock.Provider{
		CompleteResponse: jsonResp(`{"extracted_fields": {}}`),
	}
	p, store := newPipeline(provider)

	resp := p.Turn(ctx, pipeline.Request{SessionID: "s1", Transcript: "hello", PageFields: signupFields})
	if resp.SessionID != "s1" {
		t.Fatalf("session id = %q", resp.SessionID)
	}
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("state must exist before reset: %v", err)
	}

	if err := p.Reset(ctx, "s1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound after reset, got %v", err)
	}
}

// blockingProvider blocks Complete until its gate closes, signalling the
// first call through started.
type blockingProvider struct {
	gate      chan struct{}
	startOnce sync.Once
	startedCh chan struct{}
	initOnce  sync.Once
}

func (b *blockingProvider) started() <-chan struct{} {
	b.initOnce.Do(func() { b.startedCh = make(chan struct{}) })
	return b.startedCh
}

func (b *blockingProvider) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	b.initOnce.Do(func() { b.startedCh = make(chan struct{}) })
	b.startOnce.Do(func() { close(b.startedCh) })
	select {
	case <-b.gate:
	case <-ctx.Done():
	}
	return &llm.CompletionResponse{Content: `{"extracted_fields": {}}`}, nil
}

type panickingProvider struct{}

func (panickingProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	panic("provider exploded")
}
