package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vocably/cadenza/internal/clock"
	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/internal/resilience"
	"github.com/vocably/cadenza/pkg/provider/analysis"
	"github.com/vocably/cadenza/pkg/provider/analysis/mock"
	"github.com/vocably/cadenza/pkg/provider/analysis/sim"
	tmock "github.com/vocably/cadenza/pkg/provider/transcribe/mock"
	"github.com/vocably/cadenza/pkg/speech"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
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

func remoteResult() *analysis.Result {
	return &analysis.Result{
		Metrics: speech.Metrics{
			ClarityScore:       88,
			NasalityScore:      30,
			PacingScore:        3.4,
			BreathControlScore: 82,
			Suggestions:        []string{"Keep your airflow steady through long phrases."},
		},
		Transcript: "she sells sea shells",
	}
}

func newOrch(t *testing.T, remote analysis.Provider, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithMetrics(testMetrics(t)),
		WithClock(clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))),
	}
	if remote != nil {
		base = append(base, WithRemote(remote))
	}
	return New(sim.New(sim.WithSeed(7)), append(base, opts...)...)
}

func TestAnalyze_RemoteHealthy(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{Result: remoteResult()}
	o := newOrch(t, remote)

	res := o.Analyze(context.Background(), analysis.Request{
		Audio:  []byte{1, 2, 3},
		Format: analysis.FormatWAV,
	})

	if res.Metrics.Source != speech.SourceRemote {
		t.Errorf("source = %q, want remote", res.Metrics.Source)
	}
	if remote.PingCalls != 1 {
		t.Errorf("ping calls = %d, want 1", remote.PingCalls)
	}
	if len(remote.AnalyzeCalls) != 1 {
		t.Errorf("analyze calls = %d, want 1", len(remote.AnalyzeCalls))
	}
	want := speech.OverallScore(88, 30, 3.4, 82)
	if res.Metrics.OverallScore != want {
		t.Errorf("overall = %v, want %v", res.Metrics.OverallScore, want)
	}
	if res.Metrics.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestAnalyze_ProbeFailureFallsBack(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{PingErr: errors.New("connection refused")}
	o := newOrch(t, remote)

	res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})

	if res.Metrics.Source != speech.SourceSimulated {
		t.Errorf("source = %q, want simulated", res.Metrics.Source)
	}
	if len(remote.AnalyzeCalls) != 0 {
		t.Errorf("remote Analyze should not run after failed probe, got %d calls", len(remote.AnalyzeCalls))
	}
}

func TestAnalyze_RemoteErrorFallsBack(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{AnalyzeErr: errors.New("500 internal server error")}
	o := newOrch(t, remote)

	res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})

	if res.Metrics.Source != speech.SourceSimulated {
		t.Errorf("source = %q, want simulated", res.Metrics.Source)
	}
}

func TestAnalyze_NoRemoteConfigured(t *testing.T) {
	t.Parallel()

	o := newOrch(t, nil)
	res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})
	if res.Metrics.Source != speech.SourceSimulated {
		t.Errorf("source = %q, want simulated", res.Metrics.Source)
	}
}

func TestAnalyze_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{PingErr: errors.New("down")}
	o := newOrch(t, remote, WithBreakerConfig(resilience.Config{
		Name:         "analysis",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	}))

	for i := 0; i < 4; i++ {
		res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})
		if res.Metrics.Source != speech.SourceSimulated {
			t.Fatalf("run %d: source = %q, want simulated", i, res.Metrics.Source)
		}
	}

	// Only the first two runs should have reached the backend.
	if remote.PingCalls != 2 {
		t.Errorf("ping calls = %d, want 2 (circuit open)", remote.PingCalls)
	}
	if o.BreakerState() != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", o.BreakerState())
	}
}

func TestAnalyze_ClampsRemoteScores(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{Result: &analysis.Result{
		Metrics: speech.Metrics{
			ClarityScore:       140,
			NasalityScore:      -5,
			PacingScore:        3.5,
			BreathControlScore: 101,
		},
	}}
	o := newOrch(t, remote)

	res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})

	m := res.Metrics
	if m.ClarityScore != 100 || m.NasalityScore != 0 || m.BreathControlScore != 100 {
		t.Errorf("scores not clamped: clarity=%v nasality=%v breath=%v",
			m.ClarityScore, m.NasalityScore, m.BreathControlScore)
	}
	if want := speech.OverallScore(100, 0, 3.5, 100); m.OverallScore != want {
		t.Errorf("overall = %v, want %v", m.OverallScore, want)
	}
}

func TestAnalyze_FillsSuggestionsWhenRemoteOmitsThem(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{Result: &analysis.Result{
		Metrics: speech.Metrics{
			ClarityScore:       55,
			NasalityScore:      30,
			PacingScore:        3.5,
			BreathControlScore: 80,
		},
	}}
	o := newOrch(t, remote)

	res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})
	if len(res.Metrics.Suggestions) == 0 {
		t.Error("expected generated suggestions for low clarity")
	}
}

func TestAnalyze_KeepsRemoteSuggestions(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{Result: remoteResult()}
	o := newOrch(t, remote)

	res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})
	want := "Keep your airflow steady through long phrases."
	if len(res.Metrics.Suggestions) != 1 || res.Metrics.Suggestions[0] != want {
		t.Errorf("suggestions = %v, want [%q]", res.Metrics.Suggestions, want)
	}
}

func TestAnalyze_PhoneticEnrichment(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{Result: &analysis.Result{
		Metrics: speech.Metrics{
			ClarityScore:       85,
			NasalityScore:      30,
			PacingScore:        3.5,
			BreathControlScore: 80,
		},
		Transcript: "the thun is bright",
	}}
	o := newOrch(t, remote)

	res := o.Analyze(context.Background(), analysis.Request{
		Format:     analysis.FormatWAV,
		TargetText: "the sun is bright",
	})

	if len(res.Metrics.PhonemeErrors) != 1 {
		t.Fatalf("phoneme errors = %v, want exactly one", res.Metrics.PhonemeErrors)
	}
	if res.Metrics.PhonemeErrors[0].Phoneme != "s" {
		t.Errorf("phoneme = %q, want s", res.Metrics.PhonemeErrors[0].Phoneme)
	}
}

func TestAnalyze_TranscriberFillsMissingTranscript(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{Result: &analysis.Result{
		Metrics: speech.Metrics{
			ClarityScore:       85,
			NasalityScore:      30,
			PacingScore:        3.5,
			BreathControlScore: 80,
		},
	}}
	tr := &tmock.Provider{}
	tr.Result.Text = "the sun is bright"
	o := newOrch(t, remote, WithTranscriber(tr))

	res := o.Analyze(context.Background(), analysis.Request{
		Audio:      []byte{1, 2, 3},
		Format:     analysis.FormatWAV,
		TargetText: "the sun is bright",
	})

	if res.Transcript != "the sun is bright" {
		t.Errorf("transcript = %q, want filled from transcriber", res.Transcript)
	}
	if tr.Calls() != 1 {
		t.Errorf("transcriber calls = %d, want 1", tr.Calls())
	}
}

func TestAnalyze_TranscriberFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	remote := &mock.Provider{Result: &analysis.Result{
		Metrics: speech.Metrics{ClarityScore: 85, NasalityScore: 30, PacingScore: 3.5, BreathControlScore: 80},
	}}
	tr := &tmock.Provider{TranscribeErr: errors.New("quota exceeded")}
	o := newOrch(t, remote, WithTranscriber(tr))

	res := o.Analyze(context.Background(), analysis.Request{
		Audio:  []byte{1},
		Format: analysis.FormatWAV,
	})

	if res.Transcript != "" {
		t.Errorf("transcript = %q, want empty", res.Transcript)
	}
	if res.Metrics.Source != speech.SourceRemote {
		t.Errorf("source = %q, want remote", res.Metrics.Source)
	}
}

func TestAnalyze_TimestampFromClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	o := New(sim.New(sim.WithSeed(1)),
		WithMetrics(testMetrics(t)),
		WithClock(clock.NewFake(at)),
	)

	res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})
	if !res.Metrics.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", res.Metrics.Timestamp, at)
	}
}

func TestAnalyze_ConcurrentRuns(t *testing.T) {
	t.Parallel()

	o := newOrch(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.Analyze(context.Background(), analysis.Request{Format: analysis.FormatWAV})
			if res == nil {
				t.Error("nil result")
			}
		}()
	}
	wg.Wait()

	if got := o.InFlight(); got != 0 {
		t.Errorf("in-flight after completion = %d, want 0", got)
	}
}
