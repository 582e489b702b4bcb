package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/security/audit"
)

// NewRouter registers the clinic REST API and health endpoints over repo.
func NewRouter(repo domain.RegistryRepository, auditLog *audit.Logger, logger *slog.Logger) *http.ServeMux {
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	programs := NewProgramsHandler(repo, auditLog, logger)
	clients := NewClientsHandler(repo, auditLog, logger)
	health := NewHealthHandler(repo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/programs", programs.List)
	mux.HandleFunc("POST /api/programs", programs.Create)
	mux.HandleFunc("GET /api/clients", clients.List)
	mux.HandleFunc("POST /api/clients", clients.Create)
	mux.HandleFunc("GET /api/clients/{id}", clients.Get)
	mux.HandleFunc("PUT /api/clients/{id}/enroll", clients.Enroll)
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("GET /readyz", health.Ready)
	return mux
}
