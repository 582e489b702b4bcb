package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/featureflags"
	"github.com/aryan0dhankhar/clinicdesk/internal/gateway"
	"github.com/aryan0dhankhar/clinicdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/clinicdesk/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/clinicdesk/internal/observability/tracing"
	"github.com/aryan0dhankhar/clinicdesk/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/clinicdesk/internal/repository"
	"github.com/aryan0dhankhar/clinicdesk/internal/service"
	"github.com/aryan0dhankhar/clinicdesk/internal/session"
	"github.com/aryan0dhankhar/clinicdesk/internal/view"
	"github.com/aryan0dhankhar/clinicdesk/pkg/cache"
	"github.com/aryan0dhankhar/clinicdesk/pkg/config"
)

// app is one CLI invocation's object graph.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	rec     *service.Reconciler
	ctrl    *view.Controller
	out     io.Writer
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	log := logger.NewConsole(os.Stderr, cfg.LogLevel)
	a := &app{cfg: cfg, log: log, out: out}

	shutdownTracing, err := tracing.Init(ctx, log, tracing.Options{
		ServiceName: "clinicdesk-cli",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	store, err := a.openSessionStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	breaker := circuitbreaker.New(circuitbreaker.Settings{
		FailureThreshold: int32(cfg.BreakerFailureThreshold),
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})
	gw, err := gateway.New(gateway.Options{
		BaseURL:      cfg.APIURL,
		Timeout:      cfg.RequestTimeout,
		ReadAttempts: cfg.ReadAttempts,
		Breaker:      breaker,
		OmitDraftID:  featureflags.Enabled(featureflags.ServerAssignedIDs),
		Logger:       log,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	mirror := cache.New()
	a.rec = service.NewReconciler(gw, mirror, log)
	a.ctrl = view.NewController(a.rec, mirror, session.NewAdapter(store, cfg.SessionScope, log), log)
	return a, nil
}

func (a *app) openSessionStore(ctx context.Context) (domain.KeyValueStore, error) {
	switch a.cfg.SessionBackend {
	case config.SessionBackendRedis:
		client, err := redis.Connect(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return repository.NewRedisSessionStore(client, a.log), nil
	case config.SessionBackendMemory:
		return repository.NewMemorySessionStore(), nil
	default:
		store, err := repository.NewSQLiteSessionStore(ctx, a.cfg.SessionPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
