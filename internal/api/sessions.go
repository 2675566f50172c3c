package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vocably/cadenza/internal/progress"
	"github.com/vocably/cadenza/internal/session"
	"github.com/vocably/cadenza/pkg/speech"
)

// startSessionRequest is the JSON body for POST /v1/sessions.
type startSessionRequest struct {
	Mode     speech.Mode        `json:"mode"`
	Type     speech.SessionType `json:"type"`
	Scenario string             `json:"scenario,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.Mode, req.Type, req.Scenario)
	if err != nil {
		respondError(w, sessionErrStatus(err), err)
		return
	}
	respond(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var list []speech.Session
	switch rng := r.URL.Query().Get("range"); rng {
	case "", "all":
		limit := session.MaxHistory
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				respondError(w, http.StatusBadRequest, errors.New("api: limit must be a positive integer"))
				return
			}
			limit = n
		}
		list = s.sessions.Recent(limit)
	case "today":
		list = s.sessions.Today()
	case "week":
		list = s.sessions.Week()
	default:
		respondError(w, http.StatusBadRequest, errors.New("api: range must be one of all, today, week"))
		return
	}

	if list == nil {
		list = []speech.Session{}
	}
	respond(w, http.StatusOK, list)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Active()
	if !ok {
		respondError(w, http.StatusNotFound, session.ErrNoActiveSession)
		return
	}
	respond(w, http.StatusOK, sess)
}

func (s *Server) handleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	var m speech.Metrics
	if err := decode(r, &m); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	m.Clamp()
	m.Recompute()

	if err := s.sessions.RecordMetrics(r.Context(), m); err != nil {
		respondError(w, sessionErrStatus(err), err)
		return
	}
	respond(w, http.StatusAccepted, m)
}

// endSessionRequest is the JSON body for POST /v1/sessions/active/end.
type endSessionRequest struct {
	FinalMetrics *speech.Metrics `json:"finalMetrics,omitempty"`
	AudioPath    string          `json:"audioPath,omitempty"`
	Transcript   string          `json:"transcript,omitempty"`
	Notes        []string        `json:"notes,omitempty"`
}

// endSessionResponse returns the finalized session together with the
// progression effects of completing it.
type endSessionResponse struct {
	Session   *speech.Session      `json:"session"`
	XPAwarded int                  `json:"xpAwarded"`
	Progress  speech.ProgressState `json:"progress"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.sessions.End(r.Context(), session.EndRequest{
		FinalMetrics: req.FinalMetrics,
		AudioPath:    req.AudioPath,
		Transcript:   req.Transcript,
		Notes:        req.Notes,
	})
	if err != nil {
		respondError(w, sessionErrStatus(err), err)
		return
	}

	xp := progress.XPForSession(sess)
	s.tracker.RecordSession(r.Context(), sess)
	s.tracker.AddExperience(r.Context(), xp)

	respond(w, http.StatusOK, endSessionResponse{
		Session:   sess,
		XPAwarded: xp,
		Progress:  s.tracker.State(),
	})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Cancel(r.Context()); err != nil {
		respondError(w, sessionErrStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statsResponse summarises practice activity for dashboards.
type statsResponse struct {
	SessionsToday     int     `json:"sessionsToday"`
	SessionsThisWeek  int     `json:"sessionsThisWeek"`
	AverageScore      float64 `json:"averageScore"`
	TotalPracticeTime string  `json:"totalPracticeTime"`
	TotalPracticeSecs float64 `json:"totalPracticeSeconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total := s.sessions.TotalPracticeTime()
	respond(w, http.StatusOK, statsResponse{
		SessionsToday:     len(s.sessions.Today()),
		SessionsThisWeek:  len(s.sessions.Week()),
		AverageScore:      s.sessions.AverageScore(),
		TotalPracticeTime: total.Round(time.Second).String(),
		TotalPracticeSecs: total.Seconds(),
	})
}

// sessionErrStatus maps session lifecycle errors to HTTP status codes.
func sessionErrStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidSession):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
