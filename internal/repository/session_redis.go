package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aryan0dhankhar/clinicdesk/internal/domain"
)

// RedisSessionStore keeps session entries as plain Redis strings with no
// expiry, so several terminals can share one focus.
type RedisSessionStore struct {
	rdb    goredis.Cmdable
	logger *slog.Logger
}

func NewRedisSessionStore(rdb goredis.Cmdable, logger *slog.Logger) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, logger: logger}
}

// Get returns the stored value or domain.ErrNotFound.
func (s *RedisSessionStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("session key %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session key: %w", err)
	}
	return value, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store session key: %w", err)
	}
	s.logger.Debug("session key stored", slog.String("key", key))
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete session key: %w", err)
	}
	return nil
}
