package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vocably/cadenza/internal/api"
	"github.com/vocably/cadenza/internal/clock"
	"github.com/vocably/cadenza/internal/coach"
	"github.com/vocably/cadenza/internal/events"
	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/internal/orchestrator"
	"github.com/vocably/cadenza/internal/progress"
	"github.com/vocably/cadenza/internal/session"
	storemock "github.com/vocably/cadenza/internal/store/mock"
	"github.com/vocably/cadenza/pkg/provider/analysis/sim"
	"github.com/vocably/cadenza/pkg/provider/llm"
	llmmock "github.com/vocably/cadenza/pkg/provider/llm/mock"
	"github.com/vocably/cadenza/pkg/speech"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type testEnv struct {
	handler http.Handler
	bus     *events.Bus
	clk     *clock.Fake
}

func newTestEnv(t *testing.T, opts ...api.Option) *testEnv {
	t.Helper()
	m := testMetrics(t)
	bus := events.NewBus()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	st := &storemock.Store{}
	sessions := session.New(st, session.WithClock(clk), session.WithBus(bus), session.WithMetrics(m))
	if err := sessions.Load(context.Background()); err != nil {
		t.Fatalf("load sessions: %v", err)
	}
	tracker := progress.New(st, progress.WithClock(clk), progress.WithBus(bus), progress.WithMetrics(m))
	if err := tracker.Load(context.Background()); err != nil {
		t.Fatalf("load progress: %v", err)
	}
	orch := orchestrator.New(sim.New(sim.WithSeed(11)),
		orchestrator.WithClock(clk),
		orchestrator.WithMetrics(m),
	)

	opts = append([]api.Option{api.WithBus(bus)}, opts...)
	srv := api.New(sessions, tracker, orch, opts...)
	return &testEnv{handler: srv.Handler(), bus: bus, clk: clk}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func startSession(t *testing.T, e *testEnv) speech.Session {
	t.Helper()
	rec := e.do(t, "POST", "/v1/sessions", map[string]string{"mode": "guided", "type": "freePractice"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: status %d: %s", rec.Code, rec.Body)
	}
	return decodeBody[speech.Session](t, rec)
}

func TestStartSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	s := startSession(t, e)
	if s.ID == "" || s.Mode != speech.ModeGuided || s.Type != speech.TypeFreePractice {
		t.Errorf("session = %+v", s)
	}

	if rec := e.do(t, "POST", "/v1/sessions", map[string]string{"mode": "guided", "type": "game"}); rec.Code != http.StatusConflict {
		t.Errorf("second start: status %d, want 409", rec.Code)
	}
}

func TestStartSession_InvalidMode(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	rec := e.do(t, "POST", "/v1/sessions", map[string]string{"mode": "zen", "type": "freePractice"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestActiveSession_NoneRunning(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	if rec := e.do(t, "GET", "/v1/sessions/active", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRecordMetrics_WithoutSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	rec := e.do(t, "POST", "/v1/sessions/active/metrics", map[string]float64{"clarityScore": 80})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestEndSession_AwardsProgress(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	startSession(t, e)

	rec := e.do(t, "POST", "/v1/sessions/active/metrics", map[string]float64{
		"clarityScore": 88, "nasalityScore": 30, "pacingScore": 3.4, "breathControlScore": 82,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("record metrics: status %d: %s", rec.Code, rec.Body)
	}

	e.clk.Advance(20 * time.Minute)
	rec = e.do(t, "POST", "/v1/sessions/active/end", map[string]any{"notes": []string{"solid run"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("end session: status %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Session   speech.Session       `json:"session"`
		XPAwarded int                  `json:"xpAwarded"`
		Progress  speech.ProgressState `json:"progress"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Session.Completed || resp.Session.FinalMetrics == nil {
		t.Errorf("session = %+v, want completed with final metrics", resp.Session)
	}
	if resp.XPAwarded <= 50 {
		t.Errorf("xp awarded = %d, want base plus score share", resp.XPAwarded)
	}
	if resp.Progress.Profile.TotalSessions != 1 || resp.Progress.Profile.CurrentStreak != 1 {
		t.Errorf("progress = %+v", resp.Progress.Profile)
	}

	if rec := e.do(t, "POST", "/v1/sessions/active/end", map[string]any{}); rec.Code != http.StatusConflict {
		t.Errorf("double end: status %d, want 409", rec.Code)
	}
}

func TestCancelSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	startSession(t, e)

	if rec := e.do(t, "POST", "/v1/sessions/active/cancel", nil); rec.Code != http.StatusNoContent {
		t.Errorf("cancel: status %d, want 204", rec.Code)
	}
	if rec := e.do(t, "POST", "/v1/sessions/active/cancel", nil); rec.Code != http.StatusConflict {
		t.Errorf("second cancel: status %d, want 409", rec.Code)
	}
	if rec := e.do(t, "GET", "/v1/sessions?range=today", nil); rec.Code != http.StatusOK {
		t.Errorf("list: status %d", rec.Code)
	} else if got := decodeBody[[]speech.Session](t, rec); len(got) != 0 {
		t.Errorf("cancelled session appeared in history: %+v", got)
	}
}

func TestListSessions_BadRange(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	if rec := e.do(t, "GET", "/v1/sessions?range=fortnight", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if rec := e.do(t, "GET", "/v1/sessions?limit=zero", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	rec := e.do(t, "POST", "/v1/analyze", map[string]any{
		"audio":      []byte{0x52, 0x49, 0x46, 0x46},
		"format":     "wav",
		"targetText": "the sun is bright",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Metrics speech.Metrics `json:"metrics"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Metrics.Source != speech.SourceSimulated {
		t.Errorf("source = %q, want simulated", resp.Metrics.Source)
	}
	if resp.Metrics.OverallScore <= 0 {
		t.Errorf("overall score = %v, want positive", resp.Metrics.OverallScore)
	}
}

func TestAnalyze_Validation(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	if rec := e.do(t, "POST", "/v1/analyze", map[string]any{"format": "wav"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing audio: status %d, want 400", rec.Code)
	}
	if rec := e.do(t, "POST", "/v1/analyze", map[string]any{"audio": []byte{1}, "format": "flac"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad format: status %d, want 400", rec.Code)
	}
}

func TestAnalyze_RecordsIntoActiveSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	startSession(t, e)

	rec := e.do(t, "POST", "/v1/analyze", map[string]any{
		"audio":  []byte{1, 2, 3},
		"format": "wav",
		"record": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	rec = e.do(t, "GET", "/v1/sessions/active", nil)
	sess := decodeBody[speech.Session](t, rec)
	if len(sess.MetricsHistory) != 1 {
		t.Errorf("metrics history length = %d, want 1", len(sess.MetricsHistory))
	}
}

func TestAnalyze_CoachNote(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Great pacing today, keep it up."}}
	e := newTestEnv(t, api.WithCoach(coach.New(p)))

	rec := e.do(t, "POST", "/v1/analyze", map[string]any{"audio": []byte{1}, "format": "wav"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		CoachNote string `json:"coachNote"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.CoachNote, "Great pacing") {
		t.Errorf("coach note = %q", resp.CoachNote)
	}
}

func TestProgressEndpoints(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	rec := e.do(t, "POST", "/v1/progress/experience", map[string]int{"amount": 140})
	if rec.Code != http.StatusOK {
		t.Fatalf("add experience: status %d: %s", rec.Code, rec.Body)
	}
	game := decodeBody[speech.GameProgress](t, rec)
	if game.Level != 2 || game.Experience != 40 {
		t.Errorf("game = %+v, want level 2 with 40 xp", game)
	}

	if rec := e.do(t, "POST", "/v1/progress/stars", map[string]int{"amount": 0}); rec.Code != http.StatusBadRequest {
		t.Errorf("zero stars: status %d, want 400", rec.Code)
	}
	if rec := e.do(t, "POST", "/v1/progress/coins", map[string]int{"amount": 10}); rec.Code != http.StatusOK {
		t.Errorf("add coins: status %d", rec.Code)
	}

	rec = e.do(t, "GET", "/v1/progress", nil)
	state := decodeBody[speech.ProgressState](t, rec)
	if state.Game.Coins != 10 {
		t.Errorf("coins = %d, want 10", state.Game.Coins)
	}
}

func TestUnlockAchievement(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	if rec := e.do(t, "POST", "/v1/progress/achievements/time-traveller/unlock", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown achievement: status %d, want 404", rec.Code)
	}

	rec := e.do(t, "POST", "/v1/progress/achievements/streak-7/unlock", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	achs := decodeBody[[]speech.Achievement](t, rec)
	var found bool
	for _, a := range achs {
		if a.ID == "streak-7" && a.Unlocked() {
			found = true
		}
	}
	if !found {
		t.Errorf("streak-7 not unlocked in %+v", achs)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	startSession(t, e)
	e.clk.Advance(10 * time.Minute)
	if rec := e.do(t, "POST", "/v1/sessions/active/end", map[string]any{}); rec.Code != http.StatusOK {
		t.Fatalf("end: status %d", rec.Code)
	}

	rec := e.do(t, "GET", "/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats struct {
		SessionsToday        int     `json:"sessionsToday"`
		TotalPracticeSeconds float64 `json:"totalPracticeSeconds"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.SessionsToday != 1 {
		t.Errorf("sessions today = %d, want 1", stats.SessionsToday)
	}
	if stats.TotalPracticeSeconds != 600 {
		t.Errorf("practice seconds = %v, want 600", stats.TotalPracticeSeconds)
	}
}

// newTestEnvNoBus builds a server without an event bus.
func newTestEnvNoBus(t *testing.T) *testEnv {
	t.Helper()
	m := testMetrics(t)
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	st := &storemock.Store{}
	sessions := session.New(st, session.WithClock(clk), session.WithMetrics(m))
	if err := sessions.Load(context.Background()); err != nil {
		t.Fatalf("load sessions: %v", err)
	}
	tracker := progress.New(st, progress.WithClock(clk), progress.WithMetrics(m))
	if err := tracker.Load(context.Background()); err != nil {
		t.Fatalf("load progress: %v", err)
	}
	orch := orchestrator.New(sim.New(sim.WithSeed(11)),
		orchestrator.WithClock(clk),
		orchestrator.WithMetrics(m),
	)

	srv := api.New(sessions, tracker, orch)
	return &testEnv{handler: srv.Handler(), clk: clk}
}
