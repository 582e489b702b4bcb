package view

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/gateway"
	"github.com/aryan0dhankhar/clinicdesk/internal/handler"
	"github.com/aryan0dhankhar/clinicdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/clinicdesk/internal/repository"
	"github.com/aryan0dhankhar/clinicdesk/internal/service"
	"github.com/aryan0dhankhar/clinicdesk/internal/session"
	"github.com/aryan0dhankhar/clinicdesk/pkg/cache"
)

type harness struct {
	ctrl    *Controller
	rec     *service.Reconciler
	repo    *repository.MemoryRegistry
	store   *repository.MemorySessionStore
	backend *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := repository.NewMemoryRegistry()
	backend := httptest.NewServer(handler.NewRouter(repo, nil, logger.Discard()))
	t.Cleanup(backend.Close)
	return newHarnessWith(t, repo, backend, repository.NewMemorySessionStore())
}

func newHarnessWith(t *testing.T, repo *repository.MemoryRegistry, backend *httptest.Server, store *repository.MemorySessionStore) *harness {
	t.Helper()
	gw, err := gateway.New(gateway.Options{BaseURL: backend.URL, Timeout: 2 * time.Second, Logger: logger.Discard()})
	require.NoError(t, err)

	c := cache.New()
	rec := service.NewReconciler(gw, c, logger.Discard())
	ctrl := NewController(rec, c, session.NewAdapter(store, "test", logger.Discard()), logger.Discard())
	return &harness{ctrl: ctrl, rec: rec, repo: repo, store: store, backend: backend}
}

func seed(t *testing.T, repo *repository.MemoryRegistry) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateProgram(ctx, domain.Program{Name: "TB"}))
	require.NoError(t, repo.CreateProgram(ctx, domain.Program{Name: "HIV"}))
	require.NoError(t, repo.CreateClient(ctx, domain.Client{ID: "C1", Name: "Asha", Age: "30"}))
	require.NoError(t, repo.CreateClient(ctx, domain.Client{ID: "C2", Name: "Natasha", Age: "41"}))
}

func TestViewProfileRequiresSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ctrl.Restore(ctx)

	assert.Equal(t, domain.DefaultTab, h.ctrl.ActiveTab())
	assert.NotContains(t, h.ctrl.AvailableTabs(), domain.TabViewProfile)
	assert.ErrorIs(t, h.ctrl.ChangeTab(ctx, domain.TabViewProfile), domain.ErrTabUnavailable)
	assert.ErrorIs(t, h.ctrl.ChangeTab(ctx, domain.Tab("dashboard")), domain.ErrTabUnavailable)

	require.NoError(t, h.ctrl.ChangeTab(ctx, domain.TabSearchClient))
	assert.Equal(t, domain.TabSearchClient, h.ctrl.ActiveTab())
}

func TestViewProfilePersistsAcrossRestart(t *testing.T) {
	h := newHarness(t)
	seed(t, h.repo)
	ctx := context.Background()
	require.NoError(t, h.rec.Bootstrap(ctx))

	client, err := h.ctrl.ViewProfile(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", client.Name)
	assert.Equal(t, domain.TabViewProfile, h.ctrl.ActiveTab())
	assert.Contains(t, h.ctrl.AvailableTabs(), domain.TabViewProfile)

	restarted := newHarnessWith(t, h.repo, h.backend, h.store)
	restarted.ctrl.Restore(ctx)
	assert.Equal(t, domain.TabViewProfile, restarted.ctrl.ActiveTab())
	require.NotNil(t, restarted.ctrl.Selected())
	assert.Equal(t, "C1", restarted.ctrl.Selected().ID)
}

func TestSelectedClientRemovedUpstream(t *testing.T) {
	h := newHarness(t)
	seed(t, h.repo)
	ctx := context.Background()
	require.NoError(t, h.rec.Bootstrap(ctx))
	_, err := h.ctrl.ViewProfile(ctx, "C1")
	require.NoError(t, err)

	h.repo.RemoveClient("C1")
	_, err = h.rec.RefreshClients(ctx)
	require.NoError(t, err)

	assert.Nil(t, h.ctrl.Selected())
	assert.Equal(t, domain.DefaultTab, h.ctrl.ActiveTab())

	state := session.NewAdapter(h.store, "test", logger.Discard()).Load(ctx)
	assert.Nil(t, state.SelectedClient)
	assert.Equal(t, domain.DefaultTab, state.ActiveTab)
}

func TestProfileTabNeedsClientInSnapshot(t *testing.T) {
	h := newHarness(t)
	seed(t, h.repo)
	ctx := context.Background()
	require.NoError(t, h.rec.Bootstrap(ctx))

	// registered after the snapshot was taken: reachable by point read only
	require.NoError(t, h.repo.CreateClient(ctx, domain.Client{ID: "C3", Name: "Bongani", Age: "52"}))

	client, err := h.ctrl.ViewProfile(ctx, "C3")
	require.NoError(t, err)
	assert.Equal(t, "Bongani", client.Name)

	assert.Equal(t, domain.DefaultTab, h.ctrl.ActiveTab())
	assert.NotContains(t, h.ctrl.AvailableTabs(), domain.TabViewProfile)
	assert.ErrorIs(t, h.ctrl.ChangeTab(ctx, domain.TabViewProfile), domain.ErrTabUnavailable)

	_, err = h.rec.RefreshClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TabViewProfile, h.ctrl.ActiveTab())
	assert.Contains(t, h.ctrl.AvailableTabs(), domain.TabViewProfile)
}

func TestRestoreDropsProfileWithoutClient(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemorySessionStore()
	require.NoError(t, store.Set(ctx, "clinicdesk:test:activeTab", "viewProfile"))
	require.NoError(t, store.Set(ctx, "clinicdesk:test:selectedClient", `{corrupt`))

	repo := repository.NewMemoryRegistry()
	backend := httptest.NewServer(handler.NewRouter(repo, nil, logger.Discard()))
	t.Cleanup(backend.Close)
	h := newHarnessWith(t, repo, backend, store)

	h.ctrl.Restore(ctx)
	assert.Equal(t, domain.DefaultTab, h.ctrl.ActiveTab())
	assert.Nil(t, h.ctrl.Selected())
	assert.Empty(t, h.ctrl.Error())
}

func TestEnrollFormGuidance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.rec.Bootstrap(ctx))

	form := h.ctrl.EnrollForm()
	assert.Equal(t, GuidanceNoClients, form.Guidance)
	assert.Equal(t, "No clients registered yet. Please register clients first.", form.Guidance.String())

	require.NoError(t, h.repo.CreateClient(ctx, domain.Client{ID: "C1", Name: "Asha", Age: "30"}))
	require.NoError(t, h.rec.Bootstrap(ctx))
	assert.Equal(t, GuidanceNoPrograms, h.ctrl.EnrollForm().Guidance)

	require.NoError(t, h.repo.CreateProgram(ctx, domain.Program{Name: "TB"}))
	require.NoError(t, h.rec.Bootstrap(ctx))
	assert.Equal(t, GuidanceNeedsSelection, h.ctrl.EnrollForm().Guidance)

	_, err := h.ctrl.SelectClient(ctx, "C1")
	require.NoError(t, err)
	h.ctrl.ToggleProgram("TB")
	form = h.ctrl.EnrollForm()
	assert.Equal(t, GuidanceReady, form.Guidance)
	require.Len(t, form.Programs, 1)
	assert.True(t, form.Programs[0].Checked)
	assert.False(t, form.Programs[0].Enrolled)
}

func TestEnrollSelected(t *testing.T) {
	h := newHarness(t)
	seed(t, h.repo)
	ctx := context.Background()
	require.NoError(t, h.rec.Bootstrap(ctx))

	got, err := h.ctrl.EnrollSelected(ctx)
	assert.NoError(t, err)
	assert.Nil(t, got, "nothing checked is a no-op")

	_, err = h.ctrl.SelectClient(ctx, "C2")
	require.NoError(t, err)
	h.ctrl.ToggleProgram("TB")
	h.ctrl.ToggleProgram("HIV")
	h.ctrl.ToggleProgram("TB")
	assert.Equal(t, []string{"HIV"}, h.ctrl.SelectedPrograms())
	h.ctrl.ToggleProgram("TB")

	got, err = h.ctrl.EnrollSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"HIV", "TB"}, domain.ProgramNames(got.Programs))
	assert.Empty(t, h.ctrl.SelectedPrograms())
	assert.Equal(t, []string{"HIV", "TB"}, domain.ProgramNames(h.ctrl.Selected().Programs))

	form := h.ctrl.EnrollForm()
	for _, opt := range form.Programs {
		assert.True(t, opt.Enrolled, opt.Name)
	}
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	seed(t, h.repo)
	require.NoError(t, h.rec.Bootstrap(context.Background()))

	var names []string
	for _, c := range h.ctrl.Search("asha") {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Asha", "Natasha"}, names)
	assert.Len(t, h.ctrl.Search(""), 2)
	assert.Empty(t, h.ctrl.Search("zed"))
}

func TestBannerShowsBackendFailuresOnly(t *testing.T) {
	repo := repository.NewMemoryRegistry()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(backend.Close)
	h := newHarnessWith(t, repo, backend, repository.NewMemorySessionStore())
	ctx := context.Background()

	_, err := h.rec.CreateProgram(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, h.ctrl.Error())

	assert.Error(t, h.rec.Bootstrap(ctx))
	assert.Contains(t, h.ctrl.Error(), "status 500")

	h.ctrl.DismissError()
	assert.Empty(t, h.ctrl.Error())
	assert.False(t, h.ctrl.Loading())
}

func TestViewProfileFallsBackToCache(t *testing.T) {
	h := newHarness(t)
	seed(t, h.repo)
	ctx := context.Background()
	require.NoError(t, h.rec.Bootstrap(ctx))

	h.backend.Close()

	client, err := h.ctrl.ViewProfile(ctx, "C2")
	require.NoError(t, err)
	assert.Equal(t, "Natasha", client.Name)
	assert.Equal(t, domain.TabViewProfile, h.ctrl.ActiveTab())
	assert.NotEmpty(t, h.ctrl.Error())

	_, err = h.ctrl.ViewProfile(ctx, "C9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
