// Package postgres provides a PostgreSQL-backed implementation of the
// Cadenza store for hosted deployments.
//
// State is kept as whole JSONB documents in a single records table, one row
// per document. The table is created on startup via CREATE TABLE IF NOT
// EXISTS; no external migration tooling is required.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocably/cadenza/internal/store"
	"github.com/vocably/cadenza/pkg/speech"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Document keys in the records table.
const (
	keySessions = "sessions"
	keyProgress = "progress"
)

const ddlRecords = `
CREATE TABLE IF NOT EXISTS records (
    key        TEXT         PRIMARY KEY,
    value      JSONB        NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Store is a PostgreSQL-backed store.Store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and ensures the records table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlRecords); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// LoadSessions implements store.Store.
func (s *Store) LoadSessions(ctx context.Context) ([]speech.Session, error) {
	var sessions []speech.Session
	if err := s.load(ctx, keySessions, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveSessions implements store.Store.
func (s *Store) SaveSessions(ctx context.Context, sessions []speech.Session) error {
	return s.save(ctx, keySessions, sessions)
}

// LoadProgress implements store.Store.
func (s *Store) LoadProgress(ctx context.Context) (*speech.ProgressState, error) {
	var state speech.ProgressState
	if err := s.load(ctx, keyProgress, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveProgress implements store.Store.
func (s *Store) SaveProgress(ctx context.Context, state *speech.ProgressState) error {
	return s.save(ctx, keyProgress, state)
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports backend reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// load scans the JSONB document stored under key into v.
func (s *Store) load(ctx context.Context, key string, v any) error {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM records WHERE key = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres store: load %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("postgres store: decode %s: %w", key, err)
	}
	return nil
}

// save upserts v as the JSONB document stored under key.
func (s *Store) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("postgres store: encode %s: %w", key, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save %s: %w", key, err)
	}
	return nil
}
