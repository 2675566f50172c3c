package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vocably/cadenza/pkg/speech"
)

// Document file names inside the store directory.
const (
	sessionsFile = "sessions.json"
	progressFile = "progress.json"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore persists state as JSON documents in a local directory.
// Writes are atomic: each document is written to a temp file and renamed
// into place, so a crash mid-write never leaves a truncated document.
// Thread-safe for concurrent use.
type FileStore struct {
	mu  sync.Mutex
	dir string
	log *slog.Logger
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	return &FileStore{dir: dir, log: slog.Default()}, nil
}

// LoadSessions implements Store.
func (fs *FileStore) LoadSessions(context.Context) ([]speech.Session, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var sessions []speech.Session
	if err := fs.read(sessionsFile, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveSessions implements Store.
func (fs *FileStore) SaveSessions(_ context.Context, sessions []speech.Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.write(sessionsFile, sessions)
}

// LoadProgress implements Store.
func (fs *FileStore) LoadProgress(context.Context) (*speech.ProgressState, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var state speech.ProgressState
	if err := fs.read(progressFile, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveProgress implements Store.
func (fs *FileStore) SaveProgress(_ context.Context, state *speech.ProgressState) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.write(progressFile, state)
}

// Close implements Store. FileStore holds no open resources.
func (fs *FileStore) Close() error { return nil }

// read unmarshals the named document into v. A missing file maps to
// ErrNotFound; a corrupt file is logged and also maps to ErrNotFound so the
// caller starts fresh rather than crashing on a damaged install.
func (fs *FileStore) read(name string, v any) error {
	path := filepath.Join(fs.dir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		fs.log.Warn("discarding corrupt store document",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return ErrNotFound
	}
	return nil
}

// write marshals v and atomically replaces the named document.
func (fs *FileStore) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", name, err)
	}

	path := filepath.Join(fs.dir, name)
	tmp, err := os.CreateTemp(fs.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename %s: %w", name, err)
	}
	return nil
}
