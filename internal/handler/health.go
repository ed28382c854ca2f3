// Package handler serves the HTTP health surface polled by the hosting
// platform.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sakif/ledgerbot/internal/apperror"
)

// LiveMessage is the body of GET /.
const LiveMessage = "Discord Bot is Online and Healthy!"

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyResponse is the body of GET /ready.
type ReadyResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	store   Pinger
	timeout time.Duration
}

func NewHealthHandler(store Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{store: store, timeout: timeout}
}

// HandleLive always succeeds while the process is up, store or not.
func (h *HealthHandler) HandleLive(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, LiveMessage)
}

// HandleReady reports 503 while the store is unreachable.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		reason := "store ping failed"
		if errors.Is(err, apperror.ErrConnection) {
			reason = "store not connected"
		}
		writeJSON(w, r, http.StatusServiceUnavailable, ReadyResponse{Status: "degraded", Reason: reason})
		return
	}
	writeJSON(w, r, http.StatusOK, ReadyResponse{Status: "ready"})
}
