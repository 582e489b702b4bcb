package domain

import "context"

// Gateway is the REST backend holding the authoritative programs and clients.
type Gateway interface {
	ListPrograms(ctx context.Context) ([]Program, error)
	CreateProgram(ctx context.Context, name string) (*Program, error)
	ListClients(ctx context.Context) ([]Client, error)
	CreateClient(ctx context.Context, client Client) (*Client, error)
	GetClient(ctx context.Context, id string) (*Client, error)
	// EnrollClient replaces the client's program set with programs.
	EnrollClient(ctx context.Context, id string, programs []string) (*Client, error)
}

// KeyValueStore is the local store behind session persistence.
// Get returns ErrNotFound for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RegistryRepository is the storage behind the development backend.
type RegistryRepository interface {
	ListPrograms(ctx context.Context) ([]Program, error)
	// CreateProgram returns ErrConflict when the name already exists.
	CreateProgram(ctx context.Context, program Program) error
	ListClients(ctx context.Context) ([]Client, error)
	GetClient(ctx context.Context, id string) (*Client, error)
	// CreateClient returns ErrConflict when the id already exists.
	CreateClient(ctx context.Context, client Client) error
	// SetClientPrograms replaces the client's program set.
	SetClientPrograms(ctx context.Context, id string, programs []Program) (*Client, error)
	Ping(ctx context.Context) error
}
