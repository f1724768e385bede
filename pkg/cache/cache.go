// Package cache provides byte-oriented key/value backends with per-entry TTL:
// an in-process LRU and a Redis backend, plus Open which falls back to memory
// when Redis is not configured or unreachable.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backend is a key/value store with TTL support. Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value for key. ok is false on miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any previous value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// CountPrefix returns the number of live keys starting with prefix.
	CountPrefix(ctx context.Context, prefix string) (int, error)
	// Name identifies the backend in logs and stats ("memory", "redis").
	Name() string
}

// OpenConfig selects and configures the backend returned by Open.
type OpenConfig struct {
	RedisURL         string
	RedisOpTimeout   time.Duration
	MemoryMaxEntries int
	Logger           *slog.Logger
}

// Open returns a Redis backend when RedisURL is set and reachable, otherwise a memory backend.
// A Redis connection failure is logged and never returned.
func Open(ctx context.Context, cfg OpenConfig) (Backend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.RedisURL != "" {
		backend, err := NewRedisBackend(ctx, RedisConfig{URL: cfg.RedisURL, OpTimeout: cfg.RedisOpTimeout})
		if err == nil {
			logger.Info("cache: using redis backend")

			return backend, nil
		}

		logger.Warn("cache: redis unavailable, falling back to memory", "error", err)
	} else {
		logger.Info("cache: REDIS_URL not set, using memory backend")
	}

	memory, err := NewMemoryBackend(cfg.MemoryMaxEntries)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}

	return memory, nil
}
