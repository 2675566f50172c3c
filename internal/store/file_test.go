package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vocably/cadenza/pkg/speech"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return fs
}

func TestFileStore_LoadBeforeSave(t *testing.T) {
	t.Parallel()
	fs := newTestStore(t)
	ctx := context.Background()

	if _, err := fs.LoadSessions(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadSessions err = %v, want ErrNotFound", err)
	}
	if _, err := fs.LoadProgress(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadProgress err = %v, want ErrNotFound", err)
	}
}

func TestFileStore_SessionsRoundTrip(t *testing.T) {
	t.Parallel()
	fs := newTestStore(t)
	ctx := context.Background()

	end := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	want := []speech.Session{{
		ID:        "sess-1",
		Mode:      speech.ModeGuided,
		Type:      speech.TypeFreePractice,
		StartTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EndTime:   &end,
		Duration:  30 * time.Minute,
		Completed: true,
	}}

	if err := fs.SaveSessions(ctx, want); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	got, err := fs.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "sess-1" || !got[0].Completed {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got[0].EndTime.Equal(end) {
		t.Errorf("end time = %v, want %v", got[0].EndTime, end)
	}
}

func TestFileStore_ProgressRoundTrip(t *testing.T) {
	t.Parallel()
	fs := newTestStore(t)
	ctx := context.Background()

	state := speech.NewProgressState()
	state.Game.Level = 3
	state.Game.Experience = 42
	state.Profile.CurrentStreak = 5

	if err := fs.SaveProgress(ctx, state); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	got, err := fs.LoadProgress(ctx)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	if got.Game.Level != 3 || got.Game.Experience != 42 || got.Profile.CurrentStreak != 5 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	t.Parallel()
	fs := newTestStore(t)
	ctx := context.Background()

	if err := fs.SaveSessions(ctx, []speech.Session{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if err := fs.SaveSessions(ctx, []speech.Session{{ID: "c"}}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	got, err := fs.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("sessions = %+v, want single session c", got)
	}
}

func TestFileStore_CorruptDocumentStartsFresh(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, progressFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := fs.LoadProgress(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadProgress err = %v, want ErrNotFound for corrupt file", err)
	}
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := fs.SaveProgress(context.Background(), speech.NewProgressState()); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != progressFile {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}
