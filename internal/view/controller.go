package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/service"
	"github.com/aryan0dhankhar/clinicdesk/internal/session"
	"github.com/aryan0dhankhar/clinicdesk/pkg/cache"
)

// Guidance is what the enrollment form tells the user to do next.
type Guidance int

const (
	GuidanceReady Guidance = iota
	GuidanceNoClients
	GuidanceNoPrograms
	GuidanceNeedsSelection
)

func (g Guidance) String() string {
	switch g {
	case GuidanceNoClients:
		return "No clients registered yet. Please register clients first."
	case GuidanceNoPrograms:
		return "No programs created yet. Please create programs first."
	case GuidanceNeedsSelection:
		return "Select a client to enroll."
	default:
		return "Select programs to enroll the client in."
	}
}

// ProgramOption is one row of the enrollment checklist.
type ProgramOption struct {
	Name    string
	Checked bool
	// Enrolled is true when the selected client already belongs to the program.
	Enrolled bool
}

// EnrollForm is the projected state of the enrollment view.
type EnrollForm struct {
	Guidance Guidance
	Clients  []domain.Client
	Selected *domain.Client
	Programs []ProgramOption
}

// Controller owns the focus state: the active tab, the selected client, the
// program checklist and the error banner. It persists tab and selection
// through the session adapter and re-derives the selection from every
// clients snapshot the reconciler applies.
//
// Controller never holds its lock while calling into the reconciler.
type Controller struct {
	rec     *service.Reconciler
	cache   *cache.Store
	session *session.Adapter
	logger  *slog.Logger

	mu       sync.RWMutex
	tab      domain.Tab
	selected *domain.Client
	checked  []string
	banner   string
}

// NewController creates a controller and registers it with rec.
func NewController(rec *service.Reconciler, store *cache.Store, adapter *session.Adapter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		rec:     rec,
		cache:   store,
		session: adapter,
		logger:  logger,
		tab:     domain.DefaultTab,
	}
	rec.Observe(c)
	return c
}

// Restore loads the persisted focus. viewProfile without a selected client
// falls back to the default tab.
func (c *Controller) Restore(ctx context.Context) {
	state := c.session.Load(ctx)

	c.mu.Lock()
	c.tab = state.ActiveTab
	c.selected = state.SelectedClient
	if c.tab == domain.TabViewProfile && c.selected == nil {
		c.tab = domain.DefaultTab
	}
	tab := c.tab
	c.mu.Unlock()

	if tab != state.ActiveTab {
		c.persistTab(ctx, tab)
	}
}

// ActiveTab returns the tab to render. Once clients are loaded, viewProfile
// is only returned while the selected client is in the snapshot.
func (c *Controller) ActiveTab() domain.Tab {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.effectiveTabLocked()
}

func (c *Controller) effectiveTabLocked() domain.Tab {
	if c.tab == domain.TabViewProfile && !c.profileAvailableLocked() {
		return domain.DefaultTab
	}
	return c.tab
}

// profileAvailableLocked reports whether viewProfile can be shown: a client
// is selected and, once clients are loaded, it is in the snapshot.
func (c *Controller) profileAvailableLocked() bool {
	if c.selected == nil {
		return false
	}
	if c.cache.ClientsLoaded() {
		if _, ok := c.cache.Client(c.selected.ID); !ok {
			return false
		}
	}
	return true
}

// AvailableTabs lists the tabs that can be switched to now.
func (c *Controller) AvailableTabs() []domain.Tab {
	c.mu.RLock()
	profile := c.profileAvailableLocked()
	c.mu.RUnlock()

	out := make([]domain.Tab, 0, len(domain.Tabs))
	for _, t := range domain.Tabs {
		if t == domain.TabViewProfile && !profile {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ChangeTab switches to tab. viewProfile requires a selected client that is
// still in the clients snapshot.
func (c *Controller) ChangeTab(ctx context.Context, tab domain.Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrTabUnavailable, tab)
	}

	c.mu.Lock()
	if tab == domain.TabViewProfile && !c.profileAvailableLocked() {
		c.mu.Unlock()
		return fmt.Errorf("%w: no client selected", domain.ErrTabUnavailable)
	}
	c.tab = tab
	c.mu.Unlock()

	c.persistTab(ctx, tab)
	return nil
}

// Selected returns the selected client, if any.
func (c *Controller) Selected() *domain.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == nil {
		return nil
	}
	sel := c.selected.Clone()
	return &sel
}

// SelectClient selects a cached client for enrollment without changing tab.
func (c *Controller) SelectClient(ctx context.Context, id string) (*domain.Client, error) {
	client, ok := c.cache.Client(id)
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	c.setSelected(ctx, &client)
	return &client, nil
}

// ClearSelection drops the selected client and leaves viewProfile.
func (c *Controller) ClearSelection(ctx context.Context) {
	c.mu.Lock()
	c.selected = nil
	c.checked = nil
	left := c.tab == domain.TabViewProfile
	if left {
		c.tab = domain.DefaultTab
	}
	c.mu.Unlock()

	if err := c.session.ClearClient(ctx); err != nil {
		c.logger.Warn("failed to clear persisted client", slog.String("error", err.Error()))
	}
	if left {
		c.persistTab(ctx, domain.DefaultTab)
	}
}

// ViewProfile opens the profile of client id. The client is read from the
// backend; when that read fails the cached copy is shown instead.
func (c *Controller) ViewProfile(ctx context.Context, id string) (*domain.Client, error) {
	client := c.rec.FetchClientByID(ctx, id)
	if client == nil {
		cached, ok := c.cache.Client(id)
		if !ok {
			return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
		}
		client = &cached
	}

	c.setSelected(ctx, client)

	c.mu.Lock()
	c.tab = domain.TabViewProfile
	c.mu.Unlock()
	c.persistTab(ctx, domain.TabViewProfile)

	out := client.Clone()
	return &out, nil
}

// ClientsReplaced re-derives the selection from a fresh clients snapshot.
// A selected client that is gone is cleared, which also leaves viewProfile.
func (c *Controller) ClientsReplaced(ctx context.Context, clients []domain.Client) {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return
	}
	fresh, ok := domain.FindClient(clients, c.selected.ID)
	if !ok {
		c.logger.Info("selected client no longer exists", slog.String("client_id", c.selected.ID))
		c.mu.Unlock()
		c.ClearSelection(ctx)
		return
	}
	fresh = fresh.Clone()
	c.selected = &fresh
	c.mu.Unlock()

	if err := c.session.SaveClient(ctx, fresh); err != nil {
		c.logger.Warn("failed to persist selected client", slog.String("error", err.Error()))
	}
}

// ReportError sets the banner. Only backend failures are shown; validation
// and local state problems are not.
func (c *Controller) ReportError(err error) {
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) {
		return
	}
	c.mu.Lock()
	c.banner = gwErr.Error()
	c.mu.Unlock()
}

// Error returns the banner text, empty when there is none.
func (c *Controller) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.banner
}

// DismissError clears the banner.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.banner = ""
	c.mu.Unlock()
}

// Loading reports whether a backend call is in progress.
func (c *Controller) Loading() bool {
	return c.rec.Busy()
}

// ToggleProgram checks or unchecks a program in the enrollment checklist.
func (c *Controller) ToggleProgram(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.Index(c.checked, name); i >= 0 {
		c.checked = slices.Delete(c.checked, i, i+1)
		return
	}
	c.checked = append(c.checked, name)
}

// SelectedPrograms returns the checked programs in the order they were checked.
func (c *Controller) SelectedPrograms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.checked)
}

// EnrollForm projects the enrollment view from the cache and focus state.
func (c *Controller) EnrollForm() EnrollForm {
	clients := c.cache.Clients()
	programs := c.cache.Programs()

	c.mu.RLock()
	defer c.mu.RUnlock()

	form := EnrollForm{Clients: clients}
	if c.selected != nil {
		sel := c.selected.Clone()
		form.Selected = &sel
	}
	for _, p := range programs {
		opt := ProgramOption{Name: p.Name, Checked: slices.Contains(c.checked, p.Name)}
		if form.Selected != nil {
			opt.Enrolled = form.Selected.EnrolledIn(p.Name)
		}
		form.Programs = append(form.Programs, opt)
	}

	switch {
	case len(clients) == 0:
		form.Guidance = GuidanceNoClients
	case len(programs) == 0:
		form.Guidance = GuidanceNoPrograms
	case form.Selected == nil:
		form.Guidance = GuidanceNeedsSelection
	default:
		form.Guidance = GuidanceReady
	}
	return form
}

// EnrollSelected enrolls the selected client in the checked programs and
// clears the checklist on success. Nothing checked is a no-op.
func (c *Controller) EnrollSelected(ctx context.Context) (*domain.Client, error) {
	c.mu.RLock()
	checked := slices.Clone(c.checked)
	var id string
	if c.selected != nil {
		id = c.selected.ID
	}
	c.mu.RUnlock()

	if len(checked) == 0 {
		return nil, nil
	}
	if id == "" {
		return nil, fmt.Errorf("%w: select a client first", domain.ErrValidation)
	}

	updated, err := c.rec.EnrollClient(ctx, id, checked)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.checked = nil
	c.mu.Unlock()

	if updated != nil {
		c.setSelected(ctx, updated)
	}
	return updated, nil
}

// Search returns the cached clients whose name contains term.
func (c *Controller) Search(term string) []domain.Client {
	return domain.FilterClients(c.cache.Clients(), term)
}

func (c *Controller) setSelected(ctx context.Context, client *domain.Client) {
	sel := client.Clone()
	c.mu.Lock()
	if c.selected == nil || c.selected.ID != sel.ID {
		c.checked = nil
	}
	c.selected = &sel
	c.mu.Unlock()

	if err := c.session.SaveClient(ctx, sel); err != nil {
		c.logger.Warn("failed to persist selected client", slog.String("error", err.Error()))
	}
}

func (c *Controller) persistTab(ctx context.Context, tab domain.Tab) {
	if err := c.session.SaveTab(ctx, tab); err != nil {
		c.logger.Warn("failed to persist active tab", slog.String("error", err.Error()))
	}
}
