package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vocably/cadenza/internal/events"
	"github.com/vocably/cadenza/pkg/provider/analysis"
	"github.com/vocably/cadenza/pkg/speech"
)

// analyzeRequest is the JSON body for POST /v1/analyze. Audio is
// base64-encoded by the standard JSON rules for byte slices.
type analyzeRequest struct {
	Audio          []byte          `json:"audio"`
	Format         analysis.Format `json:"format"`
	TargetText     string          `json:"targetText,omitempty"`
	TargetPhonemes []string        `json:"targetPhonemes,omitempty"`

	// Record appends the result to the active session's metrics history.
	Record bool `json:"record,omitempty"`
}

// analyzeResponse is the JSON body returned from POST /v1/analyze.
type analyzeResponse struct {
	Metrics    speech.Metrics `json:"metrics"`
	Transcript string         `json:"transcript,omitempty"`
	CoachNote  string         `json:"coachNote,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Audio) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("api: audio is required"))
		return
	}
	if !req.Format.IsValid() {
		respondError(w, http.StatusBadRequest, fmt.Errorf("api: format %q is invalid; valid values: wav, m4a, webm", req.Format))
		return
	}

	res := s.orch.Analyze(r.Context(), analysis.Request{
		Audio:          req.Audio,
		Format:         req.Format,
		TargetText:     req.TargetText,
		TargetPhonemes: req.TargetPhonemes,
	})

	if s.bus != nil {
		s.bus.Emit(events.AnalysisCompleted, res.Metrics.Timestamp, res.Metrics)
	}

	resp := analyzeResponse{
		Metrics:    res.Metrics,
		Transcript: res.Transcript,
	}

	if s.coach != nil {
		note, err := s.coach.Note(r.Context(), res.Metrics)
		if err != nil {
			logRequestError(s.log, r, err)
		}
		resp.CoachNote = note
	}

	if req.Record {
		if err := s.sessions.RecordMetrics(r.Context(), res.Metrics); err != nil {
			respondError(w, sessionErrStatus(err), err)
			return
		}
	}

	respond(w, http.StatusOK, resp)
}
