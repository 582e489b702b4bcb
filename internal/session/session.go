package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/observability/metrics"
)

const (
	keyActiveTab      = "activeTab"
	keySelectedClient = "selectedClient"
)

// State is the persisted focus: the active tab and the selected client.
type State struct {
	ActiveTab      domain.Tab
	SelectedClient *domain.Client
}

// Adapter persists the focus state in a key-value store under a scope
// prefix. Each entry is written through independently.
type Adapter struct {
	store  domain.KeyValueStore
	prefix string
	logger *slog.Logger
}

// NewAdapter creates an adapter whose keys live under clinicdesk:<scope>:.
func NewAdapter(store domain.KeyValueStore, scope string, logger *slog.Logger) *Adapter {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		store:  store,
		prefix: "clinicdesk:" + scope + ":",
		logger: logger,
	}
}

// Key returns the store key for an entry name.
func (a *Adapter) Key(name string) string {
	return a.prefix + name
}

// Load reads both entries. Missing, unreadable or malformed entries fall
// back to defaults: the default tab and no selected client. Load never fails.
func (a *Adapter) Load(ctx context.Context) State {
	state := State{ActiveTab: domain.DefaultTab}

	if raw, ok := a.get(ctx, keyActiveTab); ok {
		if tab, err := parseStoredTab(raw); err != nil {
			a.logger.Debug("ignoring unknown session tab", slog.String("tab", raw))
		} else {
			state.ActiveTab = tab
		}
	}

	if raw, ok := a.get(ctx, keySelectedClient); ok && raw != "null" {
		var client domain.Client
		if err := json.Unmarshal([]byte(raw), &client); err != nil {
			a.logger.Debug("ignoring malformed session client", slog.String("error", err.Error()))
		} else if client.ID == "" {
			a.logger.Debug("ignoring session client without id")
		} else {
			state.SelectedClient = &client
		}
	}

	return state
}

// SaveTab records the active tab as its plain name.
func (a *Adapter) SaveTab(ctx context.Context, tab domain.Tab) error {
	return a.set(ctx, keyActiveTab, string(tab))
}

// parseStoredTab reads a plain tab name. A JSON-quoted name, as written by
// earlier releases, is accepted too.
func parseStoredTab(raw string) (domain.Tab, error) {
	raw = strings.TrimSpace(raw)
	if tab, err := domain.ParseTab(raw); err == nil {
		return tab, nil
	}
	var name string
	if err := json.Unmarshal([]byte(raw), &name); err != nil {
		return "", fmt.Errorf("malformed tab %q: %w", raw, err)
	}
	return domain.ParseTab(name)
}

// SaveClient records the selected client.
func (a *Adapter) SaveClient(ctx context.Context, client domain.Client) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to encode selected client: %w", err)
	}
	return a.set(ctx, keySelectedClient, string(data))
}

// ClearClient removes the selected client entry.
func (a *Adapter) ClearClient(ctx context.Context) error {
	if err := a.store.Delete(ctx, a.Key(keySelectedClient)); err != nil {
		metrics.ObserveSessionWrite(keySelectedClient, "error")
		return fmt.Errorf("failed to clear selected client: %w", err)
	}
	metrics.ObserveSessionWrite(keySelectedClient, "cleared")
	return nil
}

// Clear removes both entries.
func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.store.Delete(ctx, a.Key(keyActiveTab)); err != nil {
		return fmt.Errorf("failed to clear active tab: %w", err)
	}
	return a.ClearClient(ctx)
}

func (a *Adapter) get(ctx context.Context, name string) (string, bool) {
	raw, err := a.store.Get(ctx, a.Key(name))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.Debug("session store unreadable",
				slog.String("key", name),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}
	return raw, true
}

func (a *Adapter) set(ctx context.Context, name, value string) error {
	if err := a.store.Set(ctx, a.Key(name), value); err != nil {
		metrics.ObserveSessionWrite(name, "error")
		return fmt.Errorf("failed to persist %s: %w", name, err)
	}
	metrics.ObserveSessionWrite(name, "ok")
	return nil
}
