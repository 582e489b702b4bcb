package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
	"github.com/aryan0dhankhar/clinicdesk/internal/handler"
	"github.com/aryan0dhankhar/clinicdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/clinicdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/clinicdesk/internal/observability/tracing"
	"github.com/aryan0dhankhar/clinicdesk/internal/repository"
	"github.com/aryan0dhankhar/clinicdesk/internal/security/audit"
	"github.com/aryan0dhankhar/clinicdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/clinicdesk/internal/security/ratelimit"
	"github.com/aryan0dhankhar/clinicdesk/pkg/config"
	"github.com/aryan0dhankhar/clinicdesk/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting clinicdesk development backend", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, tracing.Options{
		ServiceName: "clinicdesk-server",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Registry storage: Postgres when DATABASE_URL is set, memory otherwise
	var repo domain.RegistryRepository
	if cfg.DatabaseURL != "" {
		pool, err := database.NewConnectionPool(ctx, database.Config{DSN: cfg.DatabaseURL}, log)
		if err != nil {
			log.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		pg := repository.NewPostgresRegistry(pool.GetDB(), log)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to prepare schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		repo = pg
	} else {
		log.Warn("DATABASE_URL not set, registry is kept in memory")
		repo = repository.NewMemoryRegistry()
	}

	// 5. Routes
	mux := handler.NewRouter(repo, audit.NewLogger(log), log)
	mux.Handle("GET /metrics", promhttp.Handler())

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)

	// Chain middleware: request ID -> CORS -> path -> rate limit -> content type -> tracing -> metrics.
	// Metrics sit directly on the mux so they see the matched route pattern.
	rootHandler := middleware.Chain(
		otelhttp.NewHandler(metrics.HTTPMetricsMiddleware(mux), "clinicdesk-server"),
		middleware.RequestID(log),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.SanitizePath(log),
		middleware.RateLimit(rateLimiter, log),
		middleware.ValidateJSONContentType(log),
	)

	// 6. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("rate_limit_per_minute", cfg.RateLimitPerMinute),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	rateLimiter.Stop()
	log.Info("server stopped")
}
