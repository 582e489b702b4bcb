package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
)

// MemoryRegistry implements domain.RegistryRepository in process memory,
// preserving insertion order for listings.
type MemoryRegistry struct {
	mu       sync.RWMutex
	programs []domain.Program
	clients  []domain.Client
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

func (r *MemoryRegistry) ListPrograms(_ context.Context) ([]domain.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Program, len(r.programs))
	copy(out, r.programs)
	return out, nil
}

func (r *MemoryRegistry) CreateProgram(_ context.Context, program domain.Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if domain.HasProgram(r.programs, program.Name) {
		return fmt.Errorf("program %s: %w", program.Name, domain.ErrConflict)
	}
	r.programs = append(r.programs, program)
	return nil
}

func (r *MemoryRegistry) ListClients(_ context.Context) ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (r *MemoryRegistry) GetClient(_ context.Context, id string) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := domain.FindClient(r.clients, id)
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	c = c.Clone()
	return &c, nil
}

func (r *MemoryRegistry) CreateClient(_ context.Context, client domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := domain.FindClient(r.clients, client.ID); ok {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrConflict)
	}
	r.clients = append(r.clients, client.Clone())
	return nil
}

func (r *MemoryRegistry) SetClientPrograms(_ context.Context, id string, programs []domain.Program) (*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.clients {
		if r.clients[i].ID == id {
			r.clients[i].Programs = domain.NormalizePrograms(programs)
			c := r.clients[i].Clone()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
}

// RemoveClient deletes a client. The REST surface has no delete; this
// exists so tests can simulate an upstream removal.
func (r *MemoryRegistry) RemoveClient(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.clients {
		if r.clients[i].ID == id {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			return
		}
	}
}

func (r *MemoryRegistry) Ping(_ context.Context) error { return nil }
