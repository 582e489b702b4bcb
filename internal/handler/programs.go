package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/security/audit"
)

// ProgramResponse is the wire form of a program. Programs are listed as
// objects; client program lists use bare names.
type ProgramResponse struct {
	Name string `json:"name"`
}

// CreateProgramRequest is the POST /api/programs body
type CreateProgramRequest struct {
	Name string `json:"name"`
}

// ProgramsHandler serves /api/programs
type ProgramsHandler struct {
	repo   domain.RegistryRepository
	audit  *audit.Logger
	logger *slog.Logger
}

// NewProgramsHandler creates a new programs handler
func NewProgramsHandler(repo domain.RegistryRepository, auditLog *audit.Logger, logger *slog.Logger) *ProgramsHandler {
	return &ProgramsHandler{repo: repo, audit: auditLog, logger: logger}
}

// List handles GET /api/programs
func (h *ProgramsHandler) List(w http.ResponseWriter, r *http.Request) {
	programs, err := h.repo.ListPrograms(r.Context())
	if err != nil {
		writeRepoError(w, h.logger, err, "", "")
		return
	}
	out := make([]ProgramResponse, 0, len(programs))
	for _, p := range programs {
		out = append(out, ProgramResponse{Name: p.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/programs
func (h *ProgramsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProgramRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.repo.CreateProgram(r.Context(), domain.Program{Name: name}); err != nil {
		h.audit.LogAction(r.Context(), "create", "program", name, "failed", err.Error())
		writeRepoError(w, h.logger, err, "", "program already exists")
		return
	}
	h.audit.LogAction(r.Context(), "create", "program", name, "success", "")
	writeJSON(w, http.StatusCreated, ProgramResponse{Name: name})
}
