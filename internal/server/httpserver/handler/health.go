package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
)

const readyProbeTimeout = 2 * time.Second

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The server is not ready while shutting
// down or when the presence store is unreachable.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.registry.Closed() {
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrServiceUnavailable.Code, "shutting down", nil)
		return
	}
	if h.presence != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()
		if err := h.presence.Ping(ctx); err != nil {
			h.logger.Warn("readiness probe failed", "error", err)
			h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrStorageError.Code, "presence store unreachable", nil)
			return
		}
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":   "ready",
		"sessions": h.registry.Count(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}
