// Package postgres provides a PostgreSQL-backed implementation of
// [session.Store] for deployments where conversations must survive process
// restarts or be shared across replicas.
//
// The full session record is stored as a single JSONB document per session id,
// written atomically on every Put. Idle expiry mirrors the in-memory store:
// the expires_at column is pushed forward on every Put, and expired rows are
// invisible to Get.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxfill/internal/session"
)

const ddlFillSessions = `
CREATE TABLE IF NOT EXISTS fill_sessions (
    session_id  TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL DEFAULT '',
    state       JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expires_at  TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fill_sessions_expires_at
    ON fill_sessions (expires_at);
`

// Store is a PostgreSQL-backed session store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the idle expiry applied on every Put.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the fill_sessions table exists.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := &Store{pool: pool, ttl: session.DefaultTTL}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Migrate creates the fill_sessions table and its indexes if they do not
// exist. Safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlFillSessions); err != nil {
		return fmt.Errorf("create fill_sessions: %w", err)
	}
	return nil
}

// Get implements [session.Store]. Rows past their expires_at are treated as
// absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*session.State, error) {
	const q = `
		SELECT state
		FROM   fill_sessions
		WHERE  session_id = $1
		  AND  expires_at > now()`

	var raw []byte
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get %q: %w", sessionID, err)
	}

	state := &session.State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("postgres store: decode %q: %w", sessionID, err)
	}
	return state, nil
}

// Put implements [session.Store]. The row's expires_at is pushed forward by
// the configured TTL on every write.
func (s *Store) Put(ctx context.Context, state *session.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres store: encode %q: %w", state.SessionID, err)
	}

	const q = `
		INSERT INTO fill_sessions (session_id, user_id, state, updated_at, expires_at)
		VALUES ($1, $2, $3, now(), now() + ($4::bigint * interval '1 microsecond'))
		ON CONFLICT (session_id) DO UPDATE SET
		    user_id    = EXCLUDED.user_id,
		    state      = EXCLUDED.state,
		    updated_at = EXCLUDED.updated_at,
		    expires_at = EXCLUDED.expires_at`

	if _, err := s.pool.Exec(ctx, q, state.SessionID, state.UserID, raw, s.ttl.Microseconds()); err != nil {
		return fmt.Errorf("postgres store: put %q: %w", state.SessionID, err)
	}
	return nil
}

// Delete implements [session.Store]. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM fill_sessions WHERE session_id = $1`
	if _, err := s.pool.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("postgres store: delete %q: %w", sessionID, err)
	}
	return nil
}

// Sweep removes all expired rows and returns how many were deleted. Intended
// for a periodic maintenance goroutine; Get already ignores expired rows, so
// skipping Sweep only costs storage.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	const q = `DELETE FROM fill_sessions WHERE expires_at <= now()`
	tag, err := s.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("postgres store: sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ session.Store = (*Store)(nil)
