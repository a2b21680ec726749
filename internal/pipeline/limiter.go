package pipeline

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrSessionBusy is returned when a turn arrives for a session that is
// already processing one. Turns are never queued per session: the browser
// side retries after the in-flight turn responds.
var ErrSessionBusy = errors.New("pipeline: session is already processing a turn")

// turnLimiter bounds turn concurrency on two levels: at most one in-flight
// turn per session, and at most maxConcurrent turns process-wide.
type turnLimiter struct {
	global *semaphore.Weighted

	mu   sync.Mutex
	busy map[string]bool
}

func newTurnLimiter(maxConcurrent int64) *turnLimiter {
	return &turnLimiter{
		global: semaphore.NewWeighted(maxConcurrent),
		busy:   make(map[string]bool),
	}
}

// acquire claims the session slot and a global slot. A busy session is
// rejected immediately with ErrSessionBusy; the global semaphore blocks
// until a slot frees or ctx is done.
func (l *turnLimiter) acquire(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	if l.busy[sessionID] {
		l.mu.Unlock()
		return ErrSessionBusy
	}
	l.busy[sessionID] = true
	l.mu.Unlock()

	if err := l.global.Acquire(ctx, 1); err != nil {
		l.mu.Lock()
		delete(l.busy, sessionID)
		l.mu.Unlock()
		return err
	}
	return nil
}

// release frees both slots claimed by acquire.
func (l *turnLimiter) release(sessionID string) {
	l.global.Release(1)
	l.mu.Lock()
	delete(l.busy, sessionID)
	l.mu.Unlock()
}
