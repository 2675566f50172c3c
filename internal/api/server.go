package api

import (
	"log/slog"
	"net/http"

	"github.com/vocably/cadenza/internal/coach"
	"github.com/vocably/cadenza/internal/events"
	"github.com/vocably/cadenza/internal/orchestrator"
	"github.com/vocably/cadenza/internal/progress"
	"github.com/vocably/cadenza/internal/session"
)

// Server bundles the engine components behind the HTTP surface.
type Server struct {
	sessions *session.Manager
	tracker  *progress.Tracker
	orch     *orchestrator.Orchestrator
	coach    *coach.Coach
	bus      *events.Bus
	log      *slog.Logger
}

// Option is a functional option for the Server.
type Option func(*Server)

// WithCoach enables LLM coaching notes on analysis responses.
func WithCoach(c *coach.Coach) Option {
	return func(s *Server) { s.coach = c }
}

// WithBus sets the event bus backing the /v1/events stream.
func WithBus(b *events.Bus) Option {
	return func(s *Server) { s.bus = b }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New assembles the engine's HTTP server.
func New(sessions *session.Manager, tracker *progress.Tracker, orch *orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		tracker:  tracker,
		orch:     orch,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds all engine routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/active", s.handleActiveSession)
	mux.HandleFunc("POST /v1/sessions/active/metrics", s.handleRecordMetrics)
	mux.HandleFunc("POST /v1/sessions/active/end", s.handleEndSession)
	mux.HandleFunc("POST /v1/sessions/active/cancel", s.handleCancelSession)

	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)

	mux.HandleFunc("GET /v1/progress", s.handleProgress)
	mux.HandleFunc("GET /v1/progress/achievements", s.handleAchievements)
	mux.HandleFunc("POST /v1/progress/experience", s.handleAddExperience)
	mux.HandleFunc("POST /v1/progress/stars", s.handleAddStars)
	mux.HandleFunc("POST /v1/progress/coins", s.handleAddCoins)
	mux.HandleFunc("POST /v1/progress/achievements/{id}/unlock", s.handleUnlockAchievement)

	mux.HandleFunc("GET /v1/stats", s.handleStats)

	if s.bus != nil {
		mux.HandleFunc("GET /v1/events", s.handleEvents)
	}
}

// Handler returns a ready-to-serve handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}
