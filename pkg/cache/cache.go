package cache

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
)

// collection is one mirrored backend collection.
type collection[T any] struct {
	items       []T
	seq         uint64
	loaded      bool
	refreshedAt time.Time
}

// replace swaps in items unless a newer fetch has already been applied.
func (c *collection[T]) replace(seq uint64, items []T, now time.Time) bool {
	if c.loaded && seq < c.seq {
		return false
	}
	c.items = slices.Clone(items)
	if c.items == nil {
		c.items = []T{}
	}
	c.seq = seq
	c.loaded = true
	c.refreshedAt = now
	return true
}

// Stats summarizes the mirror.
type Stats struct {
	Programs            int
	Clients             int
	ProgramsRefreshedAt time.Time
	ClientsRefreshedAt  time.Time
}

// Store is an in-memory mirror of the backend's programs and clients.
//
// Every replace is a full snapshot; there is no partial update. Callers take
// a sequence number with NextSequence before issuing a fetch and hand it back
// on replace, so a slow response can never overwrite a fresher one.
type Store struct {
	mu       sync.RWMutex
	seq      atomic.Uint64
	programs collection[domain.Program]
	clients  collection[domain.Client]
	now      func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{now: time.Now}
}

// NextSequence returns a ticket ordering a fetch against all others.
func (s *Store) NextSequence() uint64 {
	return s.seq.Add(1)
}

// ReplacePrograms replaces the programs snapshot. It reports false when the
// snapshot was older than the one already held and was discarded.
func (s *Store) ReplacePrograms(seq uint64, programs []domain.Program) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.programs.replace(seq, programs, s.now())
}

// ReplaceClients replaces the clients snapshot. It reports false when the
// snapshot was older than the one already held and was discarded.
func (s *Store) ReplaceClients(seq uint64, clients []domain.Client) bool {
	cloned := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		cloned = append(cloned, c.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients.replace(seq, cloned, s.now())
}

// Programs returns a copy of the programs snapshot.
func (s *Store) Programs() []domain.Program {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.programs.items)
}

// Clients returns a copy of the clients snapshot.
func (s *Store) Clients() []domain.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Client, 0, len(s.clients.items))
	for _, c := range s.clients.items {
		out = append(out, c.Clone())
	}
	return out
}

// Client looks up a client in the snapshot by id.
func (s *Store) Client(id string) (domain.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := domain.FindClient(s.clients.items, id)
	if !ok {
		return domain.Client{}, false
	}
	return c.Clone(), true
}

// ProgramsLoaded reports whether any programs snapshot has been applied.
func (s *Store) ProgramsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.programs.loaded
}

// ClientsLoaded reports whether any clients snapshot has been applied.
func (s *Store) ClientsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients.loaded
}

// Stats returns collection sizes and refresh times.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Programs:            len(s.programs.items),
		Clients:             len(s.clients.items),
		ProgramsRefreshedAt: s.programs.refreshedAt,
		ClientsRefreshedAt:  s.clients.refreshedAt,
	}
}
