package session

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an idle session survives in a MemStore before it is
// eligible for eviction.
const DefaultTTL = 30 * time.Minute

// MemStore is an in-memory, thread-safe Store with idle-TTL eviction.
// Suitable for single-process deployments and tests; use the postgres store
// when sessions must survive restarts.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

type memEntry struct {
	state     *State
	updatedAt time.Time
}

// MemOption configures a MemStore.
type MemOption func(*MemStore)

// WithTTL overrides the idle eviction TTL. Zero or negative disables eviction.
func WithTTL(ttl time.Duration) MemOption {
	return func(s *MemStore) {
		s.ttl = ttl
	}
}

// NewMemStore creates an empty MemStore with DefaultTTL.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		entries: make(map[string]memEntry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get implements Store. Expired entries are removed and reported as not found.
func (s *MemStore) Get(_ context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(e) {
		s.mu.Lock()
		// Re-check under the write lock; a Put may have raced the upgrade.
		if e, ok = s.entries[sessionID]; ok && s.expired(e) {
			delete(s.entries, sessionID)
			ok = false
		}
		s.mu.Unlock()
		if !ok {
			return nil, ErrNotFound
		}
	}
	return e.state.Clone(), nil
}

// Put implements Store. The entry's idle timer restarts on every Put.
func (s *MemStore) Put(_ context.Context, state *State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state.SessionID] = memEntry{state: state.Clone(), updatedAt: s.now()}
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

// Len returns the number of live (non-expired) sessions.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !s.expired(e) {
			n++
		}
	}
	return n
}

// Sweep removes all expired entries and returns how many were evicted.
func (s *MemStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs Sweep on the given interval until ctx is done. Intended
// to be launched as a goroutine by the process entrypoint.
func (s *MemStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemStore) expired(e memEntry) bool {
	return s.ttl > 0 && s.now().Sub(e.updatedAt) > s.ttl
}

var _ Store = (*MemStore)(nil)
