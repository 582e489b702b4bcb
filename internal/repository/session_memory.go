package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
)

// MemorySessionStore implements domain.KeyValueStore in process memory.
// Nothing survives a restart.
type MemorySessionStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{items: map[string]string{}}
}

func (s *MemorySessionStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	if !ok {
		return "", fmt.Errorf("session key %s: %w", key, domain.ErrNotFound)
	}
	return value, nil
}

func (s *MemorySessionStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
