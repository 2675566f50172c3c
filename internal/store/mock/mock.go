// Package mock provides an in-memory test double for the store.Store
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/vocably/cadenza/internal/store"
	"github.com/vocably/cadenza/pkg/speech"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is an in-memory store.Store. Zero value is ready to use and behaves
// like an empty store. Set the Err fields to inject failures.
type Store struct {
	mu sync.Mutex

	sessions    []speech.Session
	hasSessions bool
	progress    *speech.ProgressState

	// LoadErr, if non-nil, is returned from both Load methods.
	LoadErr error

	// SaveErr, if non-nil, is returned from both Save methods.
	SaveErr error

	// SaveSessionsCalls counts invocations of SaveSessions.
	SaveSessionsCalls int

	// SaveProgressCalls counts invocations of SaveProgress.
	SaveProgressCalls int
}

// Seed pre-populates the store without counting as a save.
func (s *Store) Seed(sessions []speech.Session, progress *speech.ProgressState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessions != nil {
		s.sessions = append([]speech.Session(nil), sessions...)
		s.hasSessions = true
	}
	s.progress = progress
}

// LoadSessions implements store.Store.
func (s *Store) LoadSessions(context.Context) ([]speech.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if !s.hasSessions {
		return nil, store.ErrNotFound
	}
	return append([]speech.Session(nil), s.sessions...), nil
}

// SaveSessions implements store.Store.
func (s *Store) SaveSessions(_ context.Context, sessions []speech.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveSessionsCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.sessions = append([]speech.Session(nil), sessions...)
	s.hasSessions = true
	return nil
}

// LoadProgress implements store.Store.
func (s *Store) LoadProgress(context.Context) (*speech.ProgressState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.progress == nil {
		return nil, store.ErrNotFound
	}
	cp := *s.progress
	return &cp, nil
}

// SaveProgress implements store.Store.
func (s *Store) SaveProgress(_ context.Context, state *speech.ProgressState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveProgressCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	cp := *state
	s.progress = &cp
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Sessions returns a copy of the stored session history.
func (s *Store) Sessions() []speech.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Session(nil), s.sessions...)
}

// Progress returns the stored progression state, or nil.
func (s *Store) Progress() *speech.ProgressState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return nil
	}
	cp := *s.progress
	return &cp
}
