// Package store defines the persistence layer for practice history and
// player progression.
//
// Two implementations exist: [FileStore] keeps JSON documents on local disk
// and is the default for single-user installs, and the postgres subpackage
// stores the same documents as JSONB rows for hosted deployments. Both are
// whole-document stores: the session manager and progress tracker own the
// in-memory state and write it back after every mutation.
package store

import (
	"context"
	"errors"

	"github.com/vocably/cadenza/pkg/speech"
)

// ErrNotFound is returned by Load methods when nothing has been persisted
// yet. Callers treat it as a signal to start from fresh state.
var ErrNotFound = errors.New("store: not found")

// Store persists session history and progression state.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// LoadSessions returns the persisted session history, newest first.
	// Returns ErrNotFound when no history has been saved.
	LoadSessions(ctx context.Context) ([]speech.Session, error)

	// SaveSessions replaces the persisted session history.
	SaveSessions(ctx context.Context, sessions []speech.Session) error

	// LoadProgress returns the persisted progression state.
	// Returns ErrNotFound when no state has been saved.
	LoadProgress(ctx context.Context) (*speech.ProgressState, error)

	// SaveProgress replaces the persisted progression state.
	SaveProgress(ctx context.Context, state *speech.ProgressState) error

	// Close releases any resources held by the store.
	Close() error
}
