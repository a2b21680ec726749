// Package api exposes the form-filling pipeline over HTTP.
//
// The surface is small:
//
//   - POST   /v1/turn           — process one voice transcript turn
//   - DELETE /v1/sessions/{id}  — discard a conversation's state
//
// Turn responses always carry the three-status envelope from the pipeline
// package; HTTP status codes mirror the envelope so plain clients can branch
// on either.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/voxfill/internal/pipeline"
	"github.com/MrWong99/voxfill/internal/session"
)

// maxRequestBody bounds a turn request body. Transcripts are short; a page
// field catalog for a large form stays well under this.
const maxRequestBody = 1 << 20

// Turner is the subset of the pipeline the handler needs. *pipeline.Pipeline
// satisfies it; tests may substitute a stub.
type Turner interface {
	Turn(ctx context.Context, req pipeline.Request) pipeline.Response
	Reset(ctx context.Context, sessionID string) error
}

// Handler serves the /v1 API routes.
type Handler struct {
	pipe Turner
	log  *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Handler)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// New creates a [Handler] over the given pipeline.
func New(pipe Turner, opts ...Option) *Handler {
	h := &Handler{
		pipe: pipe,
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the /v1 routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/turn", h.Turn)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.DeleteSession)
}

// Turn decodes a turn request, validates it, and runs it through the
// pipeline. Validation failures never reach the state machine.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeEnvelope(w, http.StatusBadRequest, pipeline.Response{
			Status:  pipeline.StatusError,
			Message: "invalid request body: " + err.Error(),
		})
		return
	}
	if req.Transcript == "" {
		h.writeEnvelope(w, http.StatusBadRequest, pipeline.Response{
			Status:    pipeline.StatusError,
			SessionID: req.SessionID,
			Message:   "transcript must not be empty",
		})
		return
	}

	resp := h.pipe.Turn(r.Context(), req)
	h.writeEnvelope(w, statusCode(resp.Status), resp)
}

// DeleteSession discards the conversation state for the path's session id.
// Deleting an unknown session succeeds, matching the store's semantics.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeEnvelope(w, http.StatusBadRequest, pipeline.Response{
			Status:  pipeline.StatusError,
			Message: "session id must not be empty",
		})
		return
	}

	if err := h.pipe.Reset(r.Context(), id); err != nil && !errors.Is(err, session.ErrNotFound) {
		h.log.Error("session reset failed", slog.String("session_id", id), slog.String("error", err.Error()))
		h.writeEnvelope(w, http.StatusInternalServerError, pipeline.Response{
			Status:    pipeline.StatusError,
			SessionID: id,
			Message:   "could not reset session",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusCode maps an envelope status to an HTTP status. Unknown statuses map
// to 500 so a pipeline bug is visible instead of silently "ok".
func statusCode(status string) int {
	switch status {
	case pipeline.StatusSuccess, pipeline.StatusNeedsInput:
		return http.StatusOK
	case pipeline.StatusError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, code int, resp pipeline.Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("encode response failed", slog.String("error", err.Error()))
	}
}
