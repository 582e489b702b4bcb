package service

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/gateway"
	"github.com/aryan0dhankhar/clinicdesk/internal/handler"
	"github.com/aryan0dhankhar/clinicdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/clinicdesk/internal/repository"
	"github.com/aryan0dhankhar/clinicdesk/pkg/cache"
)

type recordingObserver struct {
	mu        sync.Mutex
	snapshots [][]domain.Client
	errs      []error
}

func (o *recordingObserver) ClientsReplaced(_ context.Context, clients []domain.Client) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = append(o.snapshots, clients)
}

func (o *recordingObserver) ReportError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) clientSnapshots() [][]domain.Client {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]domain.Client(nil), o.snapshots...)
}

func (o *recordingObserver) errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs...)
}

// newBackedReconciler wires a reconciler to the development backend over HTTP.
func newBackedReconciler(t *testing.T) (*Reconciler, *repository.MemoryRegistry, *recordingObserver) {
	t.Helper()
	repo := repository.NewMemoryRegistry()
	srv := httptest.NewServer(handler.NewRouter(repo, nil, logger.Discard()))
	t.Cleanup(srv.Close)

	gw, err := gateway.New(gateway.Options{BaseURL: srv.URL, Timeout: 2 * time.Second, Logger: logger.Discard()})
	require.NoError(t, err)

	rec := NewReconciler(gw, cache.New(), logger.Discard())
	obs := &recordingObserver{}
	rec.Observe(obs)
	return rec, repo, obs
}

func TestEnrollmentScenario(t *testing.T) {
	ctx := context.Background()
	rec, _, obs := newBackedReconciler(t)
	require.NoError(t, rec.Bootstrap(ctx))

	_, err := rec.CreateProgram(ctx, "TB")
	require.NoError(t, err)
	assert.Equal(t, []string{"TB"}, domain.ProgramNames(rec.Cache().Programs()))

	rec.UpdateDraft(func(d *domain.Draft) {
		d.Name = "Asha"
		d.Age = "30"
	})
	draftID := rec.Draft().ID
	asha, err := rec.RegisterClient(ctx, rec.Draft())
	require.NoError(t, err)
	assert.Equal(t, draftID, asha.ID)
	assert.Empty(t, asha.Programs)
	assert.NotEqual(t, draftID, rec.Draft().ID, "draft resets after registration")
	assert.Empty(t, rec.Draft().Name)

	updated, err := rec.EnrollClient(ctx, asha.ID, []string{"TB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TB"}, domain.ProgramNames(updated.Programs))

	fetched := rec.FetchClientByID(ctx, asha.ID)
	require.NotNil(t, fetched)
	assert.Equal(t, []string{"TB"}, domain.ProgramNames(fetched.Programs))

	again, err := rec.EnrollClient(ctx, asha.ID, []string{"TB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TB"}, domain.ProgramNames(again.Programs))

	cached, ok := rec.Cache().Client(asha.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"TB"}, domain.ProgramNames(cached.Programs))
	assert.Empty(t, obs.errors())
}

func TestEnrollmentIsAdditive(t *testing.T) {
	ctx := context.Background()
	rec, repo, _ := newBackedReconciler(t)
	for _, name := range []string{"TB", "HIV", "Malaria"} {
		require.NoError(t, repo.CreateProgram(ctx, domain.Program{Name: name}))
	}
	require.NoError(t, repo.CreateClient(ctx, domain.Client{ID: "C1", Name: "Asha", Age: "30"}))
	require.NoError(t, rec.Bootstrap(ctx))

	_, err := rec.EnrollClient(ctx, "C1", []string{"HIV"})
	require.NoError(t, err)
	got, err := rec.EnrollClient(ctx, "C1", []string{"TB", "HIV", "Malaria"})
	require.NoError(t, err)
	assert.Equal(t, []string{"HIV", "TB", "Malaria"}, domain.ProgramNames(got.Programs))
}

func TestEnrollUncachedClientUsesPointRead(t *testing.T) {
	ctx := context.Background()
	rec, repo, _ := newBackedReconciler(t)
	require.NoError(t, repo.CreateProgram(ctx, domain.Program{Name: "TB"}))
	require.NoError(t, repo.CreateProgram(ctx, domain.Program{Name: "HIV"}))
	require.NoError(t, repo.CreateClient(ctx, domain.Client{ID: "C1", Name: "Asha", Age: "30",
		Programs: []domain.Program{{Name: "HIV"}}}))

	got, err := rec.EnrollClient(ctx, "C1", []string{"TB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"HIV", "TB"}, domain.ProgramNames(got.Programs))
}

func TestEnrollEmptySelectionIsNoop(t *testing.T) {
	rec := NewReconciler(&fakeGateway{}, cache.New(), logger.Discard())
	got, err := rec.EnrollClient(context.Background(), "C1", []string{" ", ""})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnrollClientRemovedUpstream(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{
		clients:       []domain.Client{{ID: "C1", Name: "Asha"}},
		afterEnroll:   []domain.Client{},
		enrollApplies: true,
	}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	_, err := rec.RefreshClients(ctx)
	require.NoError(t, err)

	_, err = rec.EnrollClient(ctx, "C1", []string{"TB"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, domain.IsGatewayError(err))
}

func TestValidationNeverReachesBackend(t *testing.T) {
	gw := &fakeGateway{}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	ctx := context.Background()

	_, err := rec.CreateProgram(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	rec.UpdateDraft(func(d *domain.Draft) { d.Name = "Asha" })
	draft := rec.Draft()
	_, err = rec.RegisterClient(ctx, draft)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, draft, rec.Draft(), "draft is kept after a validation failure")

	assert.Zero(t, gw.writes())
}

func TestFailedRegistrationResetsDraft(t *testing.T) {
	gw := &fakeGateway{createErr: &domain.GatewayError{Op: "failed to register client", StatusCode: 500, Err: domain.ErrUnavailable}}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	obs := &recordingObserver{}
	rec.Observe(obs)

	rec.UpdateDraft(func(d *domain.Draft) {
		d.Name = "Asha"
		d.Age = "30"
	})
	_, err := rec.RegisterClient(context.Background(), rec.Draft())
	require.Error(t, err)
	assert.True(t, domain.IsGatewayError(err))
	assert.Empty(t, rec.Draft().Name)
	require.Len(t, obs.errors(), 1)
	assert.Empty(t, rec.Cache().Clients())
}

func TestConcurrentMutationIsBusy(t *testing.T) {
	gw := &fakeGateway{block: make(chan struct{}), entered: make(chan struct{})}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := rec.CreateProgram(ctx, "TB")
		done <- err
	}()
	<-gw.entered
	assert.True(t, rec.Busy())

	_, err := rec.CreateProgram(ctx, "HIV")
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(gw.block)
	require.NoError(t, <-done)
	assert.False(t, rec.Busy())
}

func TestFailedRefetchAfterWriteIsReportedNotReturned(t *testing.T) {
	gw := &fakeGateway{listErr: &domain.GatewayError{Op: "failed to fetch programs", Err: domain.ErrUnavailable}}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	obs := &recordingObserver{}
	rec.Observe(obs)

	created, err := rec.CreateProgram(context.Background(), "TB")
	require.NoError(t, err)
	assert.Equal(t, "TB", created.Name)
	require.Len(t, obs.errors(), 1)
	assert.Equal(t, "failed to fetch programs: unavailable", obs.errors()[0].Error())
}

func TestLateOlderClientsFetchLosesToRefetchAfterWrite(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{
		clients:     []domain.Client{{ID: "C1", Name: "Asha", Age: "30"}},
		listHold:    make(chan struct{}),
		listEntered: make(chan struct{}),
	}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	obs := &recordingObserver{}
	rec.Observe(obs)

	// the first fetch reads the backend before the write, then stalls
	older := make(chan []domain.Client, 1)
	go func() {
		clients, err := rec.RefreshClients(ctx)
		assert.NoError(t, err)
		older <- clients
	}()
	<-gw.listEntered

	rec.UpdateDraft(func(d *domain.Draft) {
		d.Name = "Bongani"
		d.Age = "52"
	})
	registered := make(chan *domain.Client, 1)
	go func() {
		c, err := rec.RegisterClient(ctx, rec.Draft())
		assert.NoError(t, err)
		registered <- c
	}()

	var created *domain.Client
	select {
	case created = <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("refetch after the write waited on the stalled fetch")
	}
	require.NotNil(t, created)
	assert.Len(t, rec.Cache().Clients(), 2)

	close(gw.listHold)
	late := <-older

	assert.Len(t, late, 2, "the stalled fetch returns the newer mirror")
	_, ok := rec.Cache().Client(created.ID)
	assert.True(t, ok)

	snapshots := obs.clientSnapshots()
	require.Len(t, snapshots, 1, "the discarded snapshot is not announced")
	assert.Len(t, snapshots[0], 2)
}

func TestFetchClientByIDReportsErrors(t *testing.T) {
	gw := &fakeGateway{}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	obs := &recordingObserver{}
	rec.Observe(obs)

	assert.Nil(t, rec.FetchClientByID(context.Background(), "missing"))
	errs := obs.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrNotFound)
}

func TestBootstrapReturnsFirstError(t *testing.T) {
	gw := &fakeGateway{listErr: errors.New("boom")}
	rec := NewReconciler(gw, cache.New(), logger.Discard())
	assert.Error(t, rec.Bootstrap(context.Background()))
	assert.True(t, rec.Cache().ClientsLoaded())
	assert.False(t, rec.Cache().ProgramsLoaded())
}

// fakeGateway is an in-memory domain.Gateway with failure injection.
type fakeGateway struct {
	mu            sync.Mutex
	programs      []domain.Program
	clients       []domain.Client
	afterEnroll   []domain.Client
	enrollApplies bool
	listErr       error
	createErr     error
	writeCount    int
	block         chan struct{}
	entered       chan struct{}
	// listHold stalls the next ListClients after it has read the clients.
	listHold    chan struct{}
	listEntered chan struct{}
}

func (f *fakeGateway) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCount
}

func (f *fakeGateway) ListPrograms(context.Context) ([]domain.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Program(nil), f.programs...), nil
}

func (f *fakeGateway) CreateProgram(_ context.Context, name string) (*domain.Program, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCount++
	f.programs = append(f.programs, domain.Program{Name: name})
	return &domain.Program{Name: name}, nil
}

func (f *fakeGateway) ListClients(context.Context) ([]domain.Client, error) {
	f.mu.Lock()
	snapshot := append([]domain.Client(nil), f.clients...)
	hold, entered := f.listHold, f.listEntered
	f.listHold, f.listEntered = nil, nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if hold != nil {
		<-hold
	}
	return snapshot, nil
}

func (f *fakeGateway) CreateClient(_ context.Context, c domain.Client) (*domain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCount++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.clients = append(f.clients, c)
	return &c, nil
}

func (f *fakeGateway) GetClient(_ context.Context, id string) (*domain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := domain.FindClient(f.clients, id); ok {
		return &c, nil
	}
	return nil, &domain.GatewayError{Op: "failed to fetch client", StatusCode: 404, Err: domain.ErrNotFound}
}

func (f *fakeGateway) EnrollClient(_ context.Context, id string, programs []string) (*domain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCount++
	c, _ := domain.FindClient(f.clients, id)
	c.Programs = domain.UnionPrograms(nil, programs)
	if f.enrollApplies {
		f.clients = f.afterEnroll
	}
	return &c, nil
}
