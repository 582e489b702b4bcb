package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresRegistry implements domain.RegistryRepository on Postgres.
// A client's program set is stored as a JSON array of names.
type PostgresRegistry struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRegistry creates a registry over an open connection pool
func NewPostgresRegistry(db *sql.DB, logger *slog.Logger) *PostgresRegistry {
	return &PostgresRegistry{db: db, logger: logger}
}

// EnsureSchema creates the tables if they do not exist
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS programs (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		age TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		contact TEXT NOT NULL DEFAULT '',
		programs JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`)
	if err != nil {
		return fmt.Errorf("failed to create registry schema: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) ListPrograms(ctx context.Context) ([]domain.Program, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM programs ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	programs := []domain.Program{}
	for rows.Next() {
		var p domain.Program
		if err := rows.Scan(&p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

func (r *PostgresRegistry) CreateProgram(ctx context.Context, program domain.Program) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO programs (name) VALUES ($1)`, program.Name)
	if isUniqueViolation(err) {
		return fmt.Errorf("program %s: %w", program.Name, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create program: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, age, gender, contact, programs FROM clients ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := []domain.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			r.logger.Error("failed to scan client", slog.String("error", err.Error()))
			continue
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (r *PostgresRegistry) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, age, gender, contact, programs FROM clients WHERE id = $1`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

func (r *PostgresRegistry) CreateClient(ctx context.Context, client domain.Client) error {
	programs, err := json.Marshal(domain.ProgramNames(domain.NormalizePrograms(client.Programs)))
	if err != nil {
		return fmt.Errorf("failed to marshal programs: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO clients (id, name, age, gender, contact, programs) VALUES ($1, $2, $3, $4, $5, $6)`,
		client.ID, client.Name, string(client.Age), client.Gender, client.Contact, string(programs))
	if isUniqueViolation(err) {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	r.logger.Debug("client created", slog.String("client_id", client.ID))
	return nil
}

func (r *PostgresRegistry) SetClientPrograms(ctx context.Context, id string, programs []domain.Program) (*domain.Client, error) {
	data, err := json.Marshal(domain.ProgramNames(domain.NormalizePrograms(programs)))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal programs: %w", err)
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE clients SET programs = $2 WHERE id = $1 RETURNING id, name, age, gender, contact, programs`,
		id, string(data))
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enroll client: %w", err)
	}
	return c, nil
}

func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*domain.Client, error) {
	var (
		c        domain.Client
		age      string
		programs []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &age, &c.Gender, &c.Contact, &programs); err != nil {
		return nil, err
	}
	c.Age = domain.Age(age)
	if err := json.Unmarshal(programs, &c.Programs); err != nil {
		return nil, fmt.Errorf("client %s has malformed programs: %w", c.ID, err)
	}
	c.Programs = domain.NormalizePrograms(c.Programs)
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
