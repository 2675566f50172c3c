// Package app wires all Cadenza subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithClock,
// WithBus). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vocably/cadenza/internal/api"
	"github.com/vocably/cadenza/internal/clock"
	"github.com/vocably/cadenza/internal/coach"
	"github.com/vocably/cadenza/internal/config"
	"github.com/vocably/cadenza/internal/events"
	"github.com/vocably/cadenza/internal/health"
	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/internal/orchestrator"
	"github.com/vocably/cadenza/internal/progress"
	"github.com/vocably/cadenza/internal/resilience"
	"github.com/vocably/cadenza/internal/session"
	"github.com/vocably/cadenza/internal/store"
	"github.com/vocably/cadenza/internal/store/postgres"
	"github.com/vocably/cadenza/pkg/provider/analysis"
	"github.com/vocably/cadenza/pkg/provider/analysis/sim"
	"github.com/vocably/cadenza/pkg/provider/llm"
	"github.com/vocably/cadenza/pkg/provider/transcribe"
)

// defaultDataDir is used by the file store when store.dir is not configured.
const defaultDataDir = "data"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	// Analysis is the remote speech-analysis backend. Nil runs the engine
	// purely on the simulator.
	Analysis analysis.Provider

	// Transcriber fills transcripts the analysis backend did not supply.
	Transcriber transcribe.Provider

	// LLM backs the coaching notes. Nil disables coaching.
	LLM llm.Provider
}

// App owns all subsystem lifetimes and serves the practice engine over HTTP.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	st       store.Store
	bus      *events.Bus
	clk      clock.Clock
	sessions *session.Manager
	tracker  *progress.Tracker
	orch     *orchestrator.Orchestrator
	coach    *coach.Coach
	server   *http.Server
	metrics  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.st = s }
}

// WithBus injects an event bus instead of creating a fresh one.
func WithBus(b *events.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithClock overrides the wall clock for every subsystem.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clk = c }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection, session
// and progression hydration, orchestrator assembly, and HTTP server
// construction.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.bus == nil {
		a.bus = events.NewBus()
	}
	if a.clk == nil {
		a.clk = clock.System{}
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initEngine(ctx); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}
	a.initServers()

	return a, nil
}

// initStore opens the configured persistence backend.
func (a *App) initStore(ctx context.Context) error {
	if a.st != nil {
		return nil
	}

	switch a.cfg.Store.Backend {
	case config.StorePostgres:
		st, err := postgres.New(ctx, a.cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		a.st = st
	default:
		dir := a.cfg.Store.Dir
		if dir == "" {
			dir = defaultDataDir
		}
		st, err := store.NewFileStore(dir)
		if err != nil {
			return err
		}
		a.st = st
	}
	a.closers = append(a.closers, a.st.Close)
	return nil
}

// initEngine builds the orchestrator, session manager, progression tracker,
// and optional coach, then hydrates persisted state.
func (a *App) initEngine(ctx context.Context) error {
	var simOpts []sim.Option
	if seed := a.cfg.Engine.SimulatorSeed; seed != 0 {
		simOpts = append(simOpts, sim.WithSeed(uint64(seed)))
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithClock(a.clk),
	}
	if a.providers.Analysis != nil {
		orchOpts = append(orchOpts, orchestrator.WithRemote(a.providers.Analysis))
	}
	if a.providers.Transcriber != nil {
		orchOpts = append(orchOpts, orchestrator.WithTranscriber(a.providers.Transcriber))
	}
	if d := a.cfg.Engine.ProbeTimeout.Std(); d > 0 {
		orchOpts = append(orchOpts, orchestrator.WithProbeTimeout(d))
	}
	if d := a.cfg.Engine.AnalyzeTimeout.Std(); d > 0 {
		orchOpts = append(orchOpts, orchestrator.WithAnalyzeTimeout(d))
	}
	if d := a.cfg.Engine.TranscribeTimeout.Std(); d > 0 {
		orchOpts = append(orchOpts, orchestrator.WithTranscribeTimeout(d))
	}
	if b := a.cfg.Engine.Breaker; b.MaxFailures > 0 || b.ResetTimeout > 0 {
		orchOpts = append(orchOpts, orchestrator.WithBreakerConfig(resilience.Config{
			Name:         "analysis",
			MaxFailures:  b.MaxFailures,
			ResetTimeout: b.ResetTimeout.Std(),
		}))
	}
	a.orch = orchestrator.New(sim.New(simOpts...), orchOpts...)

	a.sessions = session.New(a.st, session.WithClock(a.clk), session.WithBus(a.bus))
	if err := a.sessions.Load(ctx); err != nil {
		return err
	}

	a.tracker = progress.New(a.st, progress.WithClock(a.clk), progress.WithBus(a.bus))
	if err := a.tracker.Load(ctx); err != nil {
		return err
	}

	if a.providers.LLM != nil {
		a.coach = coach.New(a.providers.LLM)
	}
	return nil
}

// initServers assembles the engine and metrics HTTP servers.
func (a *App) initServers() {
	apiOpts := []api.Option{api.WithBus(a.bus)}
	if a.coach != nil {
		apiOpts = append(apiOpts, api.WithCoach(a.coach))
	}
	srv := api.New(a.sessions, a.tracker, a.orch, apiOpts...)

	mux := http.NewServeMux()
	srv.Register(mux)

	checkers := []health.Checker{
		health.BreakerChecker(a.orch.BreakerState),
	}
	if p, ok := a.st.(health.Pinger); ok {
		checkers = append(checkers, health.StoreChecker(p))
	}
	health.New(checkers...).Register(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.Handler())
		a.metrics = &http.Server{
			Addr:              addr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
}

// Handler exposes the assembled HTTP handler. Used by tests to drive the
// full stack without binding a socket.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP until ctx is cancelled or a listener fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("engine listening", "addr", a.server.Addr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: engine server: %w", err)
		}
		return nil
	})

	if a.metrics != nil {
		g.Go(func() error {
			slog.Info("metrics listening", "addr", a.metrics.Addr)
			if err := a.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("engine server shutdown error", "err", err)
		}
		if a.metrics != nil {
			if err := a.metrics.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown error", "err", err)
			}
		}
		return ctx.Err()
	})

	return g.Wait()
}

// ApplyDiff applies a hot-reloadable config change produced by the config
// watcher. Changes flagged RestartRequired are logged and skipped.
func (a *App) ApplyDiff(cfg *config.Config, diff config.ConfigDiff) {
	if diff.RestartRequired {
		slog.Warn("config change requires a restart to take effect")
	}
	if diff.LogLevelChanged {
		slog.Info("log level change detected", "new_level", diff.NewLogLevel)
	}
	if diff.CoachChanged {
		slog.Info("coach provider change detected; restart to apply a new model")
	}
}

// Shutdown tears subsystems down in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
