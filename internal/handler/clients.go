package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/security/audit"
)

// EnrollRequest is the PUT /api/clients/{id}/enroll body. It carries the
// client's complete program set.
type EnrollRequest struct {
	Programs []domain.Program `json:"programs"`
}

// ClientsHandler serves /api/clients
type ClientsHandler struct {
	repo   domain.RegistryRepository
	audit  *audit.Logger
	logger *slog.Logger
}

// NewClientsHandler creates a new clients handler
func NewClientsHandler(repo domain.RegistryRepository, auditLog *audit.Logger, logger *slog.Logger) *ClientsHandler {
	return &ClientsHandler{repo: repo, audit: auditLog, logger: logger}
}

// List handles GET /api/clients
func (h *ClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.repo.ListClients(r.Context())
	if err != nil {
		writeRepoError(w, h.logger, err, "", "")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// Get handles GET /api/clients/{id}
func (h *ClientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	client, err := h.repo.GetClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeRepoError(w, h.logger, err, "client not found", "")
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// Create handles POST /api/clients. An empty id is replaced by a generated one.
func (h *ClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var client domain.Client
	if !decodeBody(w, r, &client) {
		return
	}
	client.ID = strings.TrimSpace(client.ID)
	client.Name = strings.TrimSpace(client.Name)
	if client.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if strings.TrimSpace(string(client.Age)) == "" {
		writeError(w, http.StatusBadRequest, "age is required")
		return
	}
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	client.Programs = domain.NormalizePrograms(client.Programs)

	if err := h.repo.CreateClient(r.Context(), client); err != nil {
		h.audit.LogAction(r.Context(), "create", "client", client.ID, "failed", err.Error())
		writeRepoError(w, h.logger, err, "", "client id already exists")
		return
	}
	h.audit.LogAction(r.Context(), "create", "client", client.ID, "success", "")
	writeJSON(w, http.StatusCreated, client)
}

// Enroll handles PUT /api/clients/{id}/enroll. The body replaces the
// client's program set; every program must exist.
func (h *ClientsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req EnrollRequest
	if !decodeBody(w, r, &req) {
		return
	}
	requested := domain.NormalizePrograms(req.Programs)

	known, err := h.repo.ListPrograms(r.Context())
	if err != nil {
		writeRepoError(w, h.logger, err, "", "")
		return
	}
	for _, p := range requested {
		if !domain.HasProgram(known, p.Name) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown program %q", p.Name))
			return
		}
	}

	updated, err := h.repo.SetClientPrograms(r.Context(), id, requested)
	if err != nil {
		h.audit.LogAction(r.Context(), "enroll", "client", id, "failed", err.Error())
		writeRepoError(w, h.logger, err, "client not found", "")
		return
	}
	h.audit.LogAction(r.Context(), "enroll", "client", id, "success",
		strings.Join(domain.ProgramNames(requested), ","))
	writeJSON(w, http.StatusOK, updated)
}
