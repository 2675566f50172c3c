// Package orchestrator runs the speech-analysis pipeline.
//
// Every analysis follows the same path: probe the remote backend, analyze
// remotely when the probe succeeds, and fall back to the local simulator on
// any failure. The caller always gets a usable result; Analyze has no error
// return. A circuit breaker in front of the remote backend stops repeated
// probing while the backend is known to be down.
//
// After a result arrives from either backend the orchestrator normalises it:
// scores are clamped, the overall score is recomputed from the sub-scores,
// the source is tagged, and missing pieces (transcript, phoneme errors,
// suggestions) are filled in by the enrichment steps.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vocably/cadenza/internal/clock"
	"github.com/vocably/cadenza/internal/feedback"
	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/internal/phonetic"
	"github.com/vocably/cadenza/internal/resilience"
	"github.com/vocably/cadenza/pkg/provider/analysis"
	"github.com/vocably/cadenza/pkg/provider/transcribe"
	"github.com/vocably/cadenza/pkg/speech"
)

// Defaults for the pipeline's per-stage budgets.
const (
	defaultProbeTimeout      = 3 * time.Second
	defaultAnalyzeTimeout    = 60 * time.Second
	defaultTranscribeTimeout = 30 * time.Second
)

// errUnreachable wraps probe failures so fallbacks can be counted by reason.
var errUnreachable = errors.New("orchestrator: backend unreachable")

// Orchestrator coordinates remote analysis, fallback, and enrichment.
// Safe for concurrent use.
type Orchestrator struct {
	remote      analysis.Provider
	sim         analysis.Provider
	transcriber transcribe.Provider

	breaker  *resilience.CircuitBreaker
	comparer *phonetic.Comparer
	clk      clock.Clock
	log      *slog.Logger
	metrics  *observe.Metrics

	probeTimeout      time.Duration
	analyzeTimeout    time.Duration
	transcribeTimeout time.Duration

	inFlight atomic.Int64
}

// Option is a functional option for the Orchestrator.
type Option func(*Orchestrator)

// WithRemote sets the remote analysis backend. Without it every analysis is
// served by the simulator.
func WithRemote(p analysis.Provider) Option {
	return func(o *Orchestrator) { o.remote = p }
}

// WithTranscriber sets an optional speech-to-text backend used to fill in
// the transcript when the analysis backend does not return one.
func WithTranscriber(p transcribe.Provider) Option {
	return func(o *Orchestrator) { o.transcriber = p }
}

// WithClock overrides the wall clock. Tests use a fake clock to pin result
// timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clk = c }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics overrides the metrics instance. Tests pass one backed by a
// manual reader.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProbeTimeout sets the reachability probe budget.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.probeTimeout = d }
}

// WithAnalyzeTimeout sets the remote analysis budget.
func WithAnalyzeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.analyzeTimeout = d }
}

// WithTranscribeTimeout sets the transcript enrichment budget.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.transcribeTimeout = d }
}

// WithBreakerConfig overrides the circuit breaker configuration guarding the
// remote backend.
func WithBreakerConfig(cfg resilience.Config) Option {
	return func(o *Orchestrator) { o.breaker = resilience.New(cfg) }
}

// New constructs an Orchestrator. sim must not be nil; it is the guaranteed
// last resort for every analysis.
func New(sim analysis.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sim:               sim,
		comparer:          phonetic.New(),
		clk:               clock.System{},
		log:               slog.Default(),
		metrics:           observe.DefaultMetrics(),
		probeTimeout:      defaultProbeTimeout,
		analyzeTimeout:    defaultAnalyzeTimeout,
		transcribeTimeout: defaultTranscribeTimeout,
	}
	o.breaker = resilience.New(resilience.Config{Name: "analysis"})
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze scores one recording. It never fails: any remote problem is
// absorbed by falling back to the simulator, so the returned result is
// always non-nil and fully normalised.
func (o *Orchestrator) Analyze(ctx context.Context, req analysis.Request) *analysis.Result {
	o.inFlight.Add(1)
	o.metrics.AnalysesInFlight.Add(ctx, 1)
	start := time.Now()
	defer func() {
		o.inFlight.Add(-1)
		o.metrics.AnalysesInFlight.Add(ctx, -1)
	}()

	source := speech.SourceRemote
	res := o.tryRemote(ctx, req)
	if res == nil {
		source = speech.SourceSimulated
		res = o.simulate(ctx, req)
	}

	o.finalize(ctx, res, source, req)
	o.metrics.RecordAnalysis(ctx, string(source), "ok", time.Since(start).Seconds())
	return res
}

// InFlight returns the number of analyses currently running.
func (o *Orchestrator) InFlight() int64 {
	return o.inFlight.Load()
}

// BreakerState exposes the circuit breaker state for health reporting.
func (o *Orchestrator) BreakerState() resilience.State {
	return o.breaker.State()
}

// tryRemote runs the probe-then-analyze sequence through the circuit
// breaker. Returns nil when the remote path cannot serve this request.
func (o *Orchestrator) tryRemote(ctx context.Context, req analysis.Request) *analysis.Result {
	if o.remote == nil {
		return nil
	}

	var res *analysis.Result
	err := o.breaker.Execute(func() error {
		probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout)
		defer cancel()
		if err := o.remote.Ping(probeCtx); err != nil {
			return fmt.Errorf("%w: %v", errUnreachable, err)
		}

		runCtx, cancel := context.WithTimeout(ctx, o.analyzeTimeout)
		defer cancel()
		r, err := o.remote.Analyze(runCtx, req)
		if err != nil {
			return fmt.Errorf("orchestrator: remote analyze: %w", err)
		}
		res = r
		return nil
	})
	if err != nil {
		reason := "analysis_error"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			reason = "circuit_open"
		case errors.Is(err, errUnreachable):
			reason = "unreachable"
		}
		o.log.Warn("falling back to simulated analysis",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		o.metrics.RecordFallback(ctx, reason)
		o.metrics.RecordProviderError(ctx, "remote", "analysis")
		return nil
	}
	return res
}

// simulate serves the request from the local simulator. The simulator does
// not fail in practice; if it ever does, a neutral baseline result keeps the
// no-error contract intact.
func (o *Orchestrator) simulate(ctx context.Context, req analysis.Request) *analysis.Result {
	res, err := o.sim.Analyze(ctx, req)
	if err != nil {
		o.log.Error("simulated analysis failed", slog.String("error", err.Error()))
		return &analysis.Result{
			Metrics: speech.Metrics{
				ClarityScore:       75,
				NasalityScore:      40,
				PacingScore:        3.5,
				BreathControlScore: 75,
			},
		}
	}
	return res
}

// finalize normalises and enriches a raw provider result in place.
func (o *Orchestrator) finalize(ctx context.Context, res *analysis.Result, source speech.Source, req analysis.Request) {
	m := &res.Metrics
	m.Clamp()
	m.Source = source
	m.Timestamp = o.clk.Now().UTC()

	if res.Transcript == "" && o.transcriber != nil && len(req.Audio) > 0 {
		o.fillTranscript(ctx, res, req)
	}

	if len(m.PhonemeErrors) == 0 && res.Transcript != "" && req.TargetText != "" {
		m.PhonemeErrors = o.comparer.Compare(req.TargetText, res.Transcript)
	}

	if len(m.Suggestions) == 0 {
		m.Suggestions = feedback.Suggestions(*m)
	}

	m.Recompute()
}

// fillTranscript asks the transcriber for the missing transcript. Failures
// are logged and swallowed; the transcript stays empty.
func (o *Orchestrator) fillTranscript(ctx context.Context, res *analysis.Result, req analysis.Request) {
	tctx, cancel := context.WithTimeout(ctx, o.transcribeTimeout)
	defer cancel()

	start := time.Now()
	tr, err := o.transcriber.Transcribe(tctx, transcribe.Request{
		Audio:  req.Audio,
		Format: req.Format,
		Prompt: req.TargetText,
	})
	o.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.log.Warn("transcript enrichment failed", slog.String("error", err.Error()))
		o.metrics.RecordProviderError(ctx, "transcriber", "transcription")
		return
	}
	res.Transcript = tr.Text
}
