package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisOpTimeout    = 2 * time.Second
	defaultRedisDialTimeout  = 5 * time.Second
	defaultRedisReadTimeout  = 3 * time.Second
	defaultRedisWriteTimeout = 3 * time.Second
	redisScanCount           = 500
)

// RedisConfig configures NewRedisBackend.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL (REDIS_URL).
	URL string
	// OpTimeout bounds every individual cache operation.
	OpTimeout time.Duration
}

// RedisBackend stores entries in Redis and relies on native key expiry.
type RedisBackend struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewRedisBackend parses cfg.URL, connects and pings Redis.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.DialTimeout = defaultRedisDialTimeout
	opts.ReadTimeout = defaultRedisReadTimeout
	opts.WriteTimeout = defaultRedisWriteTimeout

	client := redis.NewClient(opts)
	backend := NewRedisBackendFromClient(client, cfg.OpTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, defaultRedisDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return backend, nil
}

// NewRedisBackendFromClient wraps an existing client. opTimeout <= 0 uses the default (2s).
func NewRedisBackendFromClient(client redis.UniversalClient, opTimeout time.Duration) *RedisBackend {
	if opTimeout <= 0 {
		opTimeout = defaultRedisOpTimeout
	}

	return &RedisBackend{client: client, opTimeout: opTimeout}
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return "redis" }

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// Get implements Backend. redis.Nil is a miss, not an error.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	return data, true, nil
}

// Set implements Backend.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete implements Backend.
func (r *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}

	return n > 0, nil
}

// DeletePrefix implements Backend using SCAN so large keyspaces are not blocked by KEYS.
func (r *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	removed := 0

	iter := r.client.Scan(ctx, 0, prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		n, err := r.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("redis del: %w", err)
		}

		removed += int(n)
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}

	return removed, nil
}

// CountPrefix implements Backend.
func (r *RedisBackend) CountPrefix(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	count := 0

	iter := r.client.Scan(ctx, 0, prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("redis scan: %w", err)
	}

	return count, nil
}
