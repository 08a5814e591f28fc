// Package api provides the HTTP surface next to the WebSocket endpoint:
// liveness and readiness checks.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amigo-labs/amigo-server/internal/profile"
	"github.com/amigo-labs/amigo-server/internal/store"
	"github.com/amigo-labs/amigo-server/internal/ws"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store    store.Store
	profiles profile.Store
	conns    *ws.ConnManager
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(st store.Store, profiles profile.Store, conns *ws.ConnManager) *HealthHandler {
	return &HealthHandler{store: st, profiles: profiles, conns: conns}
}

// RegisterRoutes mounts the health endpoints.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/health/ready", h.handleReady)
}

// handleHealth is the liveness probe: the process is up.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.conns.Count(),
	})
}

// handleReady is the readiness probe: both backing stores answer.
func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"fabric": "ok", "profiles": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		checks["fabric"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.profiles.Ping(ctx); err != nil {
		checks["profiles"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	JSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
