package api

import (
	"errors"
	"net/http"

	"github.com/vocably/cadenza/internal/progress"
)

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.tracker.State())
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.tracker.Achievements())
}

// amountRequest is the JSON body shared by the experience, stars, and coins
// endpoints.
type amountRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleAddExperience(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.tracker.AddExperience(r.Context(), amount)
	respond(w, http.StatusOK, s.tracker.State().Game)
}

func (s *Server) handleAddStars(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.tracker.AddStars(r.Context(), amount)
	respond(w, http.StatusOK, s.tracker.State().Game)
}

func (s *Server) handleAddCoins(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.tracker.AddCoins(r.Context(), amount)
	respond(w, http.StatusOK, s.tracker.State().Game)
}

func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tracker.Unlock(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, progress.ErrUnknownAchievement) {
			status = http.StatusNotFound
		}
		respondError(w, status, err)
		return
	}
	respond(w, http.StatusOK, s.tracker.Achievements())
}

// decodeAmount parses an amountRequest and rejects non-positive values.
func (s *Server) decodeAmount(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return 0, false
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, errors.New("api: amount must be positive"))
		return 0, false
	}
	return req.Amount, true
}
