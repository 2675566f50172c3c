// Package session manages the practice-session lifecycle.
//
// Only one session can be active at a time (enforced by mutex). A session
// moves through start, zero or more metric recordings, and either end or
// cancel. Ended sessions join the persisted history, newest first, capped at
// [MaxHistory]; cancelled sessions are discarded entirely.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vocably/cadenza/internal/clock"
	"github.com/vocably/cadenza/internal/events"
	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/internal/store"
	"github.com/vocably/cadenza/pkg/speech"
)

// MaxHistory caps the persisted session history. When a new session ends,
// the oldest entries beyond the cap are dropped.
const MaxHistory = 100

// Lifecycle errors returned by Manager methods.
var (
	// ErrSessionActive is returned by Start while another session runs.
	ErrSessionActive = errors.New("session: a session is already active")

	// ErrNoActiveSession is returned by RecordMetrics, End, and Cancel when
	// no session is running.
	ErrNoActiveSession = errors.New("session: no active session")

	// ErrInvalidSession is returned by Start for an unknown mode or type.
	ErrInvalidSession = errors.New("session: invalid mode or type")
)

// Manager manages the lifecycle of practice sessions.
// All exported methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	active  *speech.Session
	history []speech.Session // newest first

	st      store.Store
	clk     clock.Clock
	bus     *events.Bus
	log     *slog.Logger
	metrics *observe.Metrics

	seq int
}

// Option is a functional option for the Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clk = c }
}

// WithBus sets the event bus to publish lifecycle events on.
func WithBus(b *events.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(mt *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New creates a Manager persisting through st. Call [Manager.Load] before
// first use to hydrate the history.
func New(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		st:      st,
		clk:     clock.System{},
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load hydrates the session history from the store. A store with no saved
// history yields an empty one.
func (m *Manager) Load(ctx context.Context) error {
	sessions, err := m.st.LoadSessions(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: load history: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(sessions) > MaxHistory {
		sessions = sessions[:MaxHistory]
	}
	m.history = sessions
	return nil
}

// Start begins a new practice session.
// Returns ErrSessionActive if a session is already running and
// ErrInvalidSession for an unknown mode or type.
func (m *Manager) Start(ctx context.Context, mode speech.Mode, typ speech.SessionType, scenario string) (*speech.Session, error) {
	if !mode.IsValid() || !typ.IsValid() {
		return nil, fmt.Errorf("%w: mode=%q type=%q", ErrInvalidSession, mode, typ)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, m.active.ID)
	}

	now := m.clk.Now().UTC()
	m.seq++
	s := &speech.Session{
		ID:        fmt.Sprintf("session-%s-%03d", now.Format("20060102T150405Z"), m.seq),
		Mode:      mode,
		Type:      typ,
		Scenario:  scenario,
		StartTime: now,
	}
	m.active = s

	m.metrics.ActiveSessions.Add(ctx, 1)
	m.emit(events.SessionStarted, now, *s)
	m.log.Info("session started",
		slog.String("session_id", s.ID),
		slog.String("mode", string(mode)),
		slog.String("type", string(typ)),
	)

	cp := *s
	return &cp, nil
}

// RecordMetrics appends one analysis result to the active session.
// Returns ErrNoActiveSession when no session is running.
func (m *Manager) RecordMetrics(_ context.Context, metrics speech.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveSession
	}

	now := m.clk.Now().UTC()
	m.active.MetricsHistory = append(m.active.MetricsHistory, metrics)
	m.active.Duration = now.Sub(m.active.StartTime)
	m.emit(events.MetricsRecorded, now, metrics)
	return nil
}

// EndRequest carries the optional closing details for [Manager.End].
type EndRequest struct {
	// FinalMetrics overrides the session's final metrics. When nil, the
	// last recorded metrics become final.
	FinalMetrics *speech.Metrics

	// AudioPath references the kept recording, if any.
	AudioPath string

	// Transcript is the recognised text of the recording, if any.
	Transcript string

	Notes []string
}

// End completes the active session. The session joins the history (newest
// first, capped) and the history is persisted. A persistence failure is
// logged but does not undo the session end.
//
// Returns ErrNoActiveSession when no session is running.
func (m *Manager) End(ctx context.Context, req EndRequest) (*speech.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveSession
	}

	s := m.active
	now := m.clk.Now().UTC()
	s.EndTime = &now
	s.Duration = now.Sub(s.StartTime)
	s.Notes = req.Notes
	s.Completed = true
	if req.AudioPath != "" {
		s.AudioPath = req.AudioPath
	}
	if req.Transcript != "" {
		s.Transcript = req.Transcript
	}
	switch {
	case req.FinalMetrics != nil:
		final := *req.FinalMetrics
		s.FinalMetrics = &final
	case len(s.MetricsHistory) > 0:
		final := s.MetricsHistory[len(s.MetricsHistory)-1]
		s.FinalMetrics = &final
	}

	m.history = append([]speech.Session{*s}, m.history...)
	if len(m.history) > MaxHistory {
		m.history = m.history[:MaxHistory]
	}
	m.active = nil

	if err := m.st.SaveSessions(ctx, m.history); err != nil {
		m.log.Warn("persisting session history failed",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}

	m.metrics.ActiveSessions.Add(ctx, -1)
	m.metrics.RecordSessionCompleted(ctx, string(s.Type))
	m.emit(events.SessionEnded, now, *s)
	m.log.Info("session ended",
		slog.String("session_id", s.ID),
		slog.Duration("duration", s.Duration),
		slog.Int("recordings", len(s.MetricsHistory)),
	)

	cp := *s
	return &cp, nil
}

// Cancel discards the active session without recording it.
// Returns ErrNoActiveSession when no session is running.
func (m *Manager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveSession
	}

	s := m.active
	m.active = nil

	m.metrics.ActiveSessions.Add(ctx, -1)
	m.emit(events.SessionCancelled, m.clk.Now().UTC(), *s)
	m.log.Info("session cancelled", slog.String("session_id", s.ID))
	return nil
}

// Active returns a copy of the running session, if any.
func (m *Manager) Active() (*speech.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	cp := *m.active
	return &cp, true
}

// Recent returns up to n sessions from the history, newest first. A
// non-positive n yields an empty slice.
func (m *Manager) Recent(n int) []speech.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n > len(m.history) {
		n = len(m.history)
	}
	return append([]speech.Session(nil), m.history[:n]...)
}

// Today returns the completed sessions started on the current UTC day.
func (m *Manager) Today() []speech.Session {
	now := m.clk.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return m.since(dayStart)
}

// Week returns the completed sessions started within the last 7 days.
func (m *Manager) Week() []speech.Session {
	return m.since(m.clk.Now().UTC().AddDate(0, 0, -7))
}

// since returns history entries with StartTime at or after cutoff.
func (m *Manager) since(cutoff time.Time) []speech.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []speech.Session
	for _, s := range m.history {
		if !s.StartTime.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// AverageScore returns the mean overall score across all completed sessions
// that have final metrics. Returns 0 when there are none.
func (m *Manager) AverageScore() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	var n int
	for _, s := range m.history {
		if s.FinalMetrics != nil {
			sum += s.FinalMetrics.OverallScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// TotalPracticeTime returns the summed duration of all completed sessions.
func (m *Manager) TotalPracticeTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total time.Duration
	for _, s := range m.history {
		total += s.Duration
	}
	return total
}

// emit publishes an event when a bus is configured.
func (m *Manager) emit(t events.Type, now time.Time, payload any) {
	if m.bus != nil {
		m.bus.Emit(t, now, payload)
	}
}
