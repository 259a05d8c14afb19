package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/somepatt/tgbot-search-films/internal/logging"
)

const readyTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	Ready func(ctx context.Context) error
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			logging.FromContext(r.Context()).Error("readiness check failed", "error", err)
			respondJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
