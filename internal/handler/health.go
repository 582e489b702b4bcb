package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	repo   domain.RegistryRepository
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(repo domain.RegistryRepository, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{repo: repo, logger: logger}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /healthz - liveness only
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /readyz - 200 only when the registry answers
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"registry": "ok"}
	status, code := "ready", http.StatusOK
	if err := h.repo.Ping(ctx); err != nil {
		checks["registry"] = "error: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
		h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
	}

	writeJSON(w, code, ReadinessResponse{Status: status, Checks: checks})
}
