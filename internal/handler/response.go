package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// writeJSON sends data as JSON with the given status code.
//
// ORDER IS FIXED:
//  1. w.Header().Set(...)  ← headers only count before the status line
//  2. w.WriteHeader(...)   ← flushes status + headers
//  3. Encode(data)         ← body
//
// An encode failure can't change the status any more (it's already sent), so
// the best we can do is log it with the request's logger.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeText sends a plain-text body.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
