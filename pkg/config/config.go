package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Session store backends
const (
	SessionBackendSQLite = "sqlite"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// Config holds the application configuration
type Config struct {
	Environment string
	LogLevel    string

	// Backend gateway
	APIURL                  string
	RequestTimeout          time.Duration
	ReadAttempts            int
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration

	// Session persistence
	SessionBackend string
	SessionPath    string
	SessionScope   string
	RedisURL       string

	SyncInterval time.Duration

	// Development backend
	ServerPort         int
	DatabaseURL        string
	CORSAllowedOrigins []string
	RateLimitPerMinute int

	OTLPEndpoint string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "5000"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	timeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	readAttempts, err := strconv.Atoi(getEnv("GATEWAY_READ_ATTEMPTS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_READ_ATTEMPTS: %w", err)
	}
	if readAttempts < 1 {
		return nil, fmt.Errorf("invalid GATEWAY_READ_ATTEMPTS: must be at least 1, got %d", readAttempts)
	}

	breakerThreshold, err := strconv.Atoi(getEnv("BREAKER_FAILURE_THRESHOLD", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_FAILURE_THRESHOLD: %w", err)
	}

	breakerTimeout, err := time.ParseDuration(getEnv("BREAKER_OPEN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_OPEN_TIMEOUT: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "600"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}

	backend := strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendSQLite))
	switch backend {
	case SessionBackendSQLite, SessionBackendRedis, SessionBackendMemory:
	default:
		return nil, fmt.Errorf("invalid SESSION_BACKEND %q: want sqlite, redis or memory", backend)
	}

	return &Config{
		Environment:             getEnv("ENVIRONMENT", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "warn"),
		APIURL:                  strings.TrimRight(getEnv("CLINICDESK_API", "http://127.0.0.1:5000"), "/"),
		RequestTimeout:          timeout,
		ReadAttempts:            readAttempts,
		BreakerFailureThreshold: breakerThreshold,
		BreakerOpenTimeout:      breakerTimeout,
		SessionBackend:          backend,
		SessionPath:             getEnv("SESSION_PATH", defaultSessionPath()),
		SessionScope:            getEnv("SESSION_SCOPE", "default"),
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379"),
		SyncInterval:            syncInterval,
		ServerPort:              port,
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		RateLimitPerMinute: rateLimit,
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".clinicdesk", "session.db")
	}
	return filepath.Join(home, ".clinicdesk", "session.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
