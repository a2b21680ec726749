package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no state exists for the session id.
var ErrNotFound = errors.New("session: not found")

// Store persists conversation states keyed by session id.
//
// Implementations must be safe for concurrent use. Get must return a copy the
// caller owns; Put must store a copy so later caller mutations are invisible.
type Store interface {
	// Get returns the state for the given session id, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*State, error)

	// Put stores the state under its SessionID, replacing any prior record.
	Put(ctx context.Context, state *State) error

	// Delete removes the state for the given session id. Deleting an unknown
	// id is not an error.
	Delete(ctx context.Context, sessionID string) error
}
