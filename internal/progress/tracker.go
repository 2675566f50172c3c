// Package progress maintains cumulative, persisted user progression: streaks
// computed from session end times, the XP/level curve, stars and coins, and
// the achievement catalogue.
//
// The tracker is the sole owner of the progression state; no other component
// mutates it. Every mutation is written back through the store so a crash
// between sessions never loses progress beyond the mutation in flight.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vocably/cadenza/internal/clock"
	"github.com/vocably/cadenza/internal/events"
	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/internal/store"
	"github.com/vocably/cadenza/pkg/speech"
)

// levelGrowth compounds the XP requirement per level.
const levelGrowth = 1.5

// Achievement IDs in the fixed catalogue.
const (
	AchFirstSession = "first-session"
	AchStreak3      = "streak-3"
	AchStreak7      = "streak-7"
	AchStreak30     = "streak-30"
	AchSessions10   = "sessions-10"
	AchSessions50   = "sessions-50"
	AchLevel5       = "level-5"
	AchLevel10      = "level-10"
)

// ErrUnknownAchievement is returned by Unlock for an ID outside the catalogue.
var ErrUnknownAchievement = errors.New("progress: unknown achievement")

// catalogue is the fixed achievement set. Order is presentation order.
var catalogue = []speech.Achievement{
	{ID: AchFirstSession, Title: "First Steps", Description: "Complete your first practice session."},
	{ID: AchStreak3, Title: "Warming Up", Description: "Practice three days in a row."},
	{ID: AchStreak7, Title: "One Full Week", Description: "Practice seven days in a row."},
	{ID: AchStreak30, Title: "Habit Formed", Description: "Practice thirty days in a row."},
	{ID: AchSessions10, Title: "Regular", Description: "Complete ten practice sessions."},
	{ID: AchSessions50, Title: "Dedicated", Description: "Complete fifty practice sessions."},
	{ID: AchLevel5, Title: "Rising Voice", Description: "Reach level five."},
	{ID: AchLevel10, Title: "Strong Voice", Description: "Reach level ten."},
}

// Tracker owns the progression state. All exported methods are safe for
// concurrent use.
type Tracker struct {
	mu    sync.Mutex
	state *speech.ProgressState

	st      store.Store
	clk     clock.Clock
	bus     *events.Bus
	log     *slog.Logger
	metrics *observe.Metrics
}

// Option is a functional option for the Tracker.
type Option func(*Tracker)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clk = c }
}

// WithBus sets the event bus to publish progression events on.
func WithBus(b *events.Bus) Option {
	return func(t *Tracker) { t.bus = b }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// New creates a Tracker persisting through st. Call [Tracker.Load] before
// first use.
func New(st store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		state:   speech.NewProgressState(),
		st:      st,
		clk:     clock.System{},
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load hydrates the progression state from the store. A store with no saved
// state, or a corrupt record, yields the default state.
func (t *Tracker) Load(ctx context.Context) error {
	state, err := t.st.LoadProgress(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("progress: load state: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	normalize(state)
	t.state = state
	return nil
}

// State returns a deep-enough copy of the current progression state.
func (t *Tracker) State() speech.ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Achievements returns the full catalogue with unlock timestamps merged in.
func (t *Tracker) Achievements() []speech.Achievement {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]speech.Achievement, len(catalogue))
	copy(out, catalogue)
	for i := range out {
		for _, a := range t.state.Game.Achievements {
			if a.ID == out[i].ID {
				out[i].UnlockedAt = a.UnlockedAt
			}
		}
	}
	return out
}

// RecordSession folds one completed session into the progression state:
// streak update, session and minute totals, and any milestone achievements.
// The streak uses the previous LastSessionDate, so same-day repeats do not
// inflate it and a gap of more than one day resets it to 1.
func (t *Tracker) RecordSession(ctx context.Context, s *speech.Session) {
	t.mu.Lock()

	now := t.clk.Now().UTC()
	p := &t.state.Profile

	switch {
	case p.LastSessionDate == nil:
		p.CurrentStreak = 1
	default:
		switch daysBetween(*p.LastSessionDate, now) {
		case 0:
			// Same-day repeat; streak unchanged.
		case 1:
			p.CurrentStreak++
		default:
			p.CurrentStreak = 1
		}
	}
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	p.LastSessionDate = &now

	p.TotalSessions++
	p.TotalMinutes += s.Duration.Minutes()

	var unlocked []speech.Achievement
	unlocked = append(unlocked, t.maybeUnlock(AchFirstSession, p.TotalSessions >= 1, now)...)
	unlocked = append(unlocked, t.maybeUnlock(AchSessions10, p.TotalSessions >= 10, now)...)
	unlocked = append(unlocked, t.maybeUnlock(AchSessions50, p.TotalSessions >= 50, now)...)
	unlocked = append(unlocked, t.maybeUnlock(AchStreak3, p.CurrentStreak >= 3, now)...)
	unlocked = append(unlocked, t.maybeUnlock(AchStreak7, p.CurrentStreak >= 7, now)...)
	unlocked = append(unlocked, t.maybeUnlock(AchStreak30, p.CurrentStreak >= 30, now)...)

	t.persistLocked(ctx)
	t.mu.Unlock()

	t.announce(ctx, now, unlocked)
}

// AddExperience awards xp, cascading level-ups. The requirement for each
// next level compounds by the growth factor and overflow XP carries across
// multiple level-ups from a single award. After the call,
// Experience < ExperienceToNextLevel always holds.
func (t *Tracker) AddExperience(ctx context.Context, xp int) {
	if xp <= 0 {
		return
	}

	t.mu.Lock()
	now := t.clk.Now().UTC()
	g := &t.state.Game

	leveledFrom := g.Level
	g.Experience += xp
	for g.Experience >= g.ExperienceToNextLevel {
		g.Experience -= g.ExperienceToNextLevel
		g.Level++
		g.ExperienceToNextLevel = int(math.Round(float64(g.ExperienceToNextLevel) * levelGrowth))
	}

	var unlocked []speech.Achievement
	unlocked = append(unlocked, t.maybeUnlock(AchLevel5, g.Level >= 5, now)...)
	unlocked = append(unlocked, t.maybeUnlock(AchLevel10, g.Level >= 10, now)...)

	leveledTo := g.Level
	t.persistLocked(ctx)
	t.mu.Unlock()

	if leveledTo > leveledFrom && t.bus != nil {
		t.bus.Emit(events.ProgressLevelUp, now, map[string]int{
			"from": leveledFrom,
			"to":   leveledTo,
		})
	}
	t.announce(ctx, now, unlocked)
}

// AddStars adds n stars. Negative n is ignored.
func (t *Tracker) AddStars(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.state.Game.Stars += n
	t.persistLocked(ctx)
	t.mu.Unlock()
}

// AddCoins adds n coins. Negative n is ignored.
func (t *Tracker) AddCoins(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.state.Game.Coins += n
	t.persistLocked(ctx)
	t.mu.Unlock()
}

// Unlock marks the achievement with the given ID as earned. Unlocking an
// already-unlocked achievement is a no-op, not an error. Returns
// ErrUnknownAchievement for IDs outside the catalogue.
func (t *Tracker) Unlock(ctx context.Context, id string) error {
	if !inCatalogue(id) {
		return fmt.Errorf("%w: %q", ErrUnknownAchievement, id)
	}

	t.mu.Lock()
	now := t.clk.Now().UTC()
	unlocked := t.maybeUnlock(id, true, now)
	if len(unlocked) > 0 {
		t.persistLocked(ctx)
	}
	t.mu.Unlock()

	t.announce(ctx, now, unlocked)
	return nil
}

// maybeUnlock appends the achievement to the unlocked set when cond holds
// and it is not already earned. Caller must hold t.mu.
func (t *Tracker) maybeUnlock(id string, cond bool, now time.Time) []speech.Achievement {
	if !cond {
		return nil
	}
	for _, a := range t.state.Game.Achievements {
		if a.ID == id {
			return nil
		}
	}

	var entry speech.Achievement
	for _, a := range catalogue {
		if a.ID == id {
			entry = a
			break
		}
	}
	at := now
	entry.UnlockedAt = &at
	t.state.Game.Achievements = append(t.state.Game.Achievements, entry)
	return []speech.Achievement{entry}
}

// announce publishes unlock events and metrics outside the lock.
func (t *Tracker) announce(ctx context.Context, now time.Time, unlocked []speech.Achievement) {
	for _, a := range unlocked {
		t.metrics.AchievementsUnlocked.Add(ctx, 1)
		t.log.Info("achievement unlocked", slog.String("achievement", a.ID))
		if t.bus != nil {
			t.bus.Emit(events.AchievementUnlocked, now, a)
		}
	}
}

// persistLocked writes the state back to the store. Failures are logged;
// the in-memory state stays authoritative. Caller must hold t.mu.
func (t *Tracker) persistLocked(ctx context.Context) {
	cp := t.snapshot()
	if err := t.st.SaveProgress(ctx, &cp); err != nil {
		t.log.Warn("persisting progression failed", slog.String("error", err.Error()))
	}
}

// snapshot copies the state including its slices. Caller must hold t.mu.
func (t *Tracker) snapshot() speech.ProgressState {
	cp := *t.state
	cp.Game.Achievements = append([]speech.Achievement(nil), t.state.Game.Achievements...)
	cp.Game.Stickers = append([]speech.Sticker(nil), t.state.Game.Stickers...)
	return cp
}

// normalize repairs a loaded state so the invariants hold even for records
// written by older builds.
func normalize(s *speech.ProgressState) {
	if s.Game.Level < 1 {
		s.Game.Level = 1
	}
	if s.Game.ExperienceToNextLevel <= 0 {
		fresh := speech.NewGameProgress()
		s.Game.ExperienceToNextLevel = fresh.ExperienceToNextLevel
	}
	if s.Profile.LongestStreak < s.Profile.CurrentStreak {
		s.Profile.LongestStreak = s.Profile.CurrentStreak
	}
}

// inCatalogue reports whether id names a known achievement.
func inCatalogue(id string) bool {
	for _, a := range catalogue {
		if a.ID == id {
			return true
		}
	}
	return false
}

// daysBetween returns the whole calendar days from a to b in UTC.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad) / (24 * time.Hour))
}

// XPForSession returns the experience award for one completed session:
// a flat participation award plus half the overall score of the final
// metrics, rounded.
func XPForSession(s *speech.Session) int {
	const base = 50
	if s.FinalMetrics == nil {
		return base
	}
	return base + int(math.Round(s.FinalMetrics.OverallScore/2))
}
