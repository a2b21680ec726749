package session_test

import (
	"testing"

	"github.com/MrWong99/voxfill/internal/session"
)

func TestNewGeneratesID(t *testing.T) {
	t.Parallel()

	s := session.New("")
	if s.SessionID == "" {
		t.Fatal("expected generated session id, got empty")
	}
	if s.Fields == nil || s.Selectors == nil {
		t.Error("expected initialised maps")
	}

	s2 := session.New("fixed-id")
	if s2.SessionID != "fixed-id" {
		t.Errorf("expected session id %q, got %q", "fixed-id", s2.SessionID)
	}
}

func TestPageFieldKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field session.PageField
		want  string
	}{
		{"name wins over id", session.PageField{ID: "field-7", Name: "email"}, "email"},
		{"id fallback", session.PageField{ID: "field-7"}, "field-7"},
		{"both empty", session.PageField{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.field.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	s := session.New("abc")
	if err := s.Validate(); err != nil {
		t.Fatalf("fresh state should validate, got %v", err)
	}

	s.ReadyToFill = true
	s.NeedsClarification = true
	if err := s.Validate(); err == nil {
		t.Error("expected error for ready_to_fill with needs_clarification")
	}

	s = session.New("abc")
	s.CorrectionMode = true
	s.ReadyToFill = true
	if err := s.Validate(); err == nil {
		t.Error("expected error for correction_mode with ready_to_fill")
	}

	s = session.New("")
	s.SessionID = ""
	s.TurnCount = -1
	err := s.Validate()
	if err == nil {
		t.Fatal("expected joined errors, got nil")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	s := session.New("abc")
	s.Fields["email"] = session.FieldValue{Value: "a@b.com", Confidence: 0.9}
	s.Selectors["email"] = []string{"#email", "[name='email']"}
	s.Missing = []string{"phone"}
	s.AppendHistory(1, session.RoleUser, "hello")
	s.FinalPayload = &session.FillPayload{
		Status:       "success",
		SessionID:    "abc",
		FieldsToFill: map[string]session.FilledField{"email": {Value: "a@b.com", Selectors: []string{"#email"}}},
		Summary:      map[string]string{"Email": "a@b.com"},
	}

	c := s.Clone()
	c.Fields["email"] = session.FieldValue{Value: "x@y.com"}
	c.Selectors["email"][0] = "#other"
	c.Missing[0] = "name"
	c.History[0].Content = "mutated"
	c.FinalPayload.FieldsToFill["email"] = session.FilledField{Value: "mutated"}
	c.FinalPayload.Summary["Email"] = "mutated"

	if s.Fields["email"].Value != "a@b.com" {
		t.Error("clone mutation leaked into Fields")
	}
	if s.Selectors["email"][0] != "#email" {
		t.Error("clone mutation leaked into Selectors")
	}
	if s.Missing[0] != "phone" {
		t.Error("clone mutation leaked into Missing")
	}
	if s.History[0].Content != "hello" {
		t.Error("clone mutation leaked into History")
	}
	if s.FinalPayload.FieldsToFill["email"].Value != "a@b.com" {
		t.Error("clone mutation leaked into FinalPayload.FieldsToFill")
	}
	if s.FinalPayload.Summary["Email"] != "a@b.com" {
		t.Error("clone mutation leaked into FinalPayload.Summary")
	}
}

func TestCloneNil(t *testing.T) {
	t.Parallel()

	var s *session.State
	if s.Clone() != nil {
		t.Error("expected nil clone of nil state")
	}
}
