// Package api exposes the practice engine over HTTP.
//
// All endpoints live under /v1 and speak JSON. Validation failures return
// 400, operations invalid in the current session state return 409, and
// unknown resources return 404. The /v1/events endpoint upgrades to a
// WebSocket and streams engine events as they happen.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// respond writes v as a JSON response with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding response failed"}`, http.StatusInternalServerError)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// respondError writes err as a JSON error body.
func respondError(w http.ResponseWriter, status int, err error) {
	respond(w, status, errorBody{Error: err.Error()})
}

// decode reads the request body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("api: invalid request body: " + err.Error())
	}
	return nil
}

// logRequestError logs handler failures that turn into 5xx responses.
func logRequestError(log *slog.Logger, r *http.Request, err error) {
	log.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
