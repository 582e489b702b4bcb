package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/clinicdesk/pkg/cache"
)

const (
	flightPrograms = "programs"
	flightClients  = "clients"
)

// Observer is notified when the clients snapshot changes and when an
// operation fails.
type Observer interface {
	// ClientsReplaced receives every clients snapshot applied to the cache.
	ClientsReplaced(ctx context.Context, clients []domain.Client)
	// ReportError receives every failure the reconciler encounters.
	ReportError(err error)
}

// Reconciler keeps the cache consistent with the backend. Every write is
// followed by a refetch of the affected collection; nothing is inserted
// optimistically. At most one write runs at a time.
type Reconciler struct {
	gateway domain.Gateway
	cache   *cache.Store
	logger  *slog.Logger
	tracer  trace.Tracer

	flights  singleflight.Group
	slot     chan struct{}
	inflight atomic.Int32

	mu        sync.Mutex
	draft     domain.Draft
	observers []Observer
}

// NewReconciler creates a reconciler over gateway and store
func NewReconciler(gateway domain.Gateway, store *cache.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		gateway: gateway,
		cache:   store,
		logger:  logger,
		tracer:  otel.Tracer("clinicdesk/service"),
		slot:    make(chan struct{}, 1),
		draft:   domain.NewDraft(),
	}
}

// Observe registers o for snapshot and error notifications.
func (r *Reconciler) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Cache returns the store the reconciler writes to.
func (r *Reconciler) Cache() *cache.Store {
	return r.cache
}

// Busy reports whether any backend call is in progress.
func (r *Reconciler) Busy() bool {
	return r.inflight.Load() > 0
}

// Bootstrap fetches programs and clients concurrently. Each result is
// applied on its own; the first failure is returned.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "reconciler.Bootstrap")
	defer span.End()

	var g errgroup.Group
	g.Go(func() error {
		_, err := r.RefreshPrograms(ctx)
		return err
	})
	g.Go(func() error {
		_, err := r.RefreshClients(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bootstrap failed")
		return err
	}
	return nil
}

// RefreshPrograms replaces the cached programs with a fresh full fetch.
// Concurrent calls share one request.
func (r *Reconciler) RefreshPrograms(ctx context.Context) ([]domain.Program, error) {
	v, err, _ := r.flights.Do(flightPrograms, func() (any, error) {
		return r.fetchPrograms(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Program), nil
}

func (r *Reconciler) fetchPrograms(ctx context.Context) ([]domain.Program, error) {
	done := r.track()
	defer done()

	seq := r.cache.NextSequence()
	programs, err := r.gateway.ListPrograms(ctx)
	if err != nil {
		metrics.ObserveReconcile("refresh_programs", "error")
		r.report(err)
		return nil, err
	}
	if !r.cache.ReplacePrograms(seq, programs) {
		metrics.ObserveStaleSnapshot(flightPrograms)
		r.logger.Debug("discarded stale programs snapshot", slog.Uint64("seq", seq))
	}
	metrics.ObserveReconcile("refresh_programs", "success")
	current := r.cache.Programs()
	metrics.SetCachedItems(flightPrograms, len(current))
	return current, nil
}

// RefreshClients replaces the cached clients with a fresh full fetch and
// notifies observers. Concurrent calls share one request.
func (r *Reconciler) RefreshClients(ctx context.Context) ([]domain.Client, error) {
	v, err, _ := r.flights.Do(flightClients, func() (any, error) {
		return r.fetchClients(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Client), nil
}

func (r *Reconciler) fetchClients(ctx context.Context) ([]domain.Client, error) {
	done := r.track()
	defer done()

	seq := r.cache.NextSequence()
	clients, err := r.gateway.ListClients(ctx)
	if err != nil {
		metrics.ObserveReconcile("refresh_clients", "error")
		r.report(err)
		return nil, err
	}
	applied := r.cache.ReplaceClients(seq, clients)
	if !applied {
		metrics.ObserveStaleSnapshot(flightClients)
		r.logger.Debug("discarded stale clients snapshot", slog.Uint64("seq", seq))
	}
	metrics.ObserveReconcile("refresh_clients", "success")

	current := r.cache.Clients()
	metrics.SetCachedItems(flightClients, len(current))
	if applied {
		for _, o := range r.snapshotObservers() {
			o.ClientsReplaced(ctx, current)
		}
	}
	return current, nil
}

// refetchClients forces a fetch that starts after the caller's write.
func (r *Reconciler) refetchClients(ctx context.Context) ([]domain.Client, error) {
	r.flights.Forget(flightClients)
	return r.RefreshClients(ctx)
}

func (r *Reconciler) refetchPrograms(ctx context.Context) ([]domain.Program, error) {
	r.flights.Forget(flightPrograms)
	return r.RefreshPrograms(ctx)
}

// CreateProgram creates a program and refetches the programs collection.
// A failed refetch is reported but does not fail the call: the program
// exists on the backend.
func (r *Reconciler) CreateProgram(ctx context.Context, name string) (*domain.Program, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: program name is required", domain.ErrValidation)
	}

	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := r.tracer.Start(ctx, "reconciler.CreateProgram",
		trace.WithAttributes(attribute.String("program", name)))
	defer span.End()

	done := r.track()
	created, err := r.gateway.CreateProgram(ctx, name)
	done()
	if err != nil {
		r.fail(span, "create_program", err)
		return nil, err
	}
	r.logger.Info("program created", slog.String("program", created.Name))
	metrics.ObserveReconcile("create_program", "success")

	_, _ = r.refetchPrograms(ctx)
	return created, nil
}

// Draft returns the registration draft.
func (r *Reconciler) Draft() domain.Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// UpdateDraft applies fn to the registration draft.
func (r *Reconciler) UpdateDraft(fn func(*domain.Draft)) domain.Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.draft)
	return r.draft
}

func (r *Reconciler) resetDraft() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draft = domain.NewDraft()
}

// RegisterClient registers draft with an empty program set and refetches
// the clients collection. Missing name or age fails with
// domain.ErrValidation and keeps the draft. Once the request has been sent
// the draft is reset, whether or not the backend accepted it.
func (r *Reconciler) RegisterClient(ctx context.Context, draft domain.Draft) (*domain.Client, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := r.tracer.Start(ctx, "reconciler.RegisterClient",
		trace.WithAttributes(attribute.String("draft_id", draft.ID)))
	defer span.End()

	done := r.track()
	created, err := r.gateway.CreateClient(ctx, draft.Client())
	done()
	r.resetDraft()
	if err != nil {
		r.fail(span, "register_client", err)
		return nil, err
	}
	r.logger.Info("client registered", slog.String("client_id", created.ID))
	metrics.ObserveReconcile("register_client", "success")

	if clients, err := r.refetchClients(ctx); err == nil {
		if fresh, ok := domain.FindClient(clients, created.ID); ok {
			return &fresh, nil
		}
	}
	return created, nil
}

// EnrollClient adds programs to the client's program set. The backend
// replaces the whole set, so the request carries the union of the current
// set and programs. Enrolling in a program twice is a no-op. The returned
// client comes from the clients snapshot fetched after the write; when the
// client is no longer in it, the result wraps domain.ErrNotFound.
func (r *Reconciler) EnrollClient(ctx context.Context, clientID string, programs []string) (*domain.Client, error) {
	selected := domain.CleanProgramNames(programs)
	if len(selected) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: client is required", domain.ErrValidation)
	}

	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := r.tracer.Start(ctx, "reconciler.EnrollClient",
		trace.WithAttributes(
			attribute.String("client_id", clientID),
			attribute.StringSlice("programs", selected),
		))
	defer span.End()

	current, ok := r.cache.Client(clientID)
	if !ok {
		done := r.track()
		fetched, err := r.gateway.GetClient(ctx, clientID)
		done()
		if err != nil {
			r.fail(span, "enroll_client", err)
			return nil, err
		}
		current = *fetched
	}

	merged := domain.UnionPrograms(current.Programs, selected)

	done := r.track()
	echo, err := r.gateway.EnrollClient(ctx, clientID, domain.ProgramNames(merged))
	done()
	if err != nil {
		r.fail(span, "enroll_client", err)
		return nil, err
	}
	r.logger.Info("client enrolled",
		slog.String("client_id", clientID),
		slog.Any("programs", domain.ProgramNames(merged)),
	)
	metrics.ObserveReconcile("enroll_client", "success")

	clients, err := r.refetchClients(ctx)
	if err != nil {
		if echo != nil {
			return echo, nil
		}
		current.Programs = merged
		return &current, nil
	}
	fresh, ok := domain.FindClient(clients, clientID)
	if !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
	}
	return &fresh, nil
}

// FetchClientByID reads one client from the backend. Failures are reported
// to observers and yield nil.
func (r *Reconciler) FetchClientByID(ctx context.Context, id string) *domain.Client {
	ctx, span := r.tracer.Start(ctx, "reconciler.FetchClientByID",
		trace.WithAttributes(attribute.String("client_id", id)))
	defer span.End()

	done := r.track()
	client, err := r.gateway.GetClient(ctx, id)
	done()
	if err != nil {
		r.fail(span, "fetch_client", err)
		return nil
	}
	metrics.ObserveReconcile("fetch_client", "success")
	return client
}

// acquire takes the mutation slot or fails with domain.ErrBusy.
func (r *Reconciler) acquire() (func(), error) {
	select {
	case r.slot <- struct{}{}:
		return func() { <-r.slot }, nil
	default:
		metrics.ObserveReconcile("mutation", "busy")
		return nil, domain.ErrBusy
	}
}

func (r *Reconciler) track() func() {
	r.inflight.Add(1)
	return func() { r.inflight.Add(-1) }
}

func (r *Reconciler) fail(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	metrics.ObserveReconcile(op, "error")
	r.logger.Warn("operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	r.report(err)
}

func (r *Reconciler) report(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	for _, o := range r.snapshotObservers() {
		o.ReportError(err)
	}
}

func (r *Reconciler) snapshotObservers() []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Observer, len(r.observers))
	copy(out, r.observers)
	return out
}
