package jobs

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultInitialBackoff = 50 * time.Millisecond
	backoffMultiplier     = 2
)

// RetryingInserterConfig holds configuration for the retrying inserter.
type RetryingInserterConfig struct {
	MaxRetries     int           // Retries after the first attempt (total attempts = 1 + MaxRetries).
	InitialBackoff time.Duration // Backoff after the first failure; doubles each attempt, capped by MaxBackoff.
	MaxBackoff     time.Duration
}

// RetryingInserter retries failed inserts with exponential backoff and jitter.
// Use it for transient River/DB errors; it gives up when ctx is cancelled.
type RetryingInserter struct {
	inner          JobInserter
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewRetryingInserter wraps inner.
func NewRetryingInserter(inner JobInserter, cfg RetryingInserterConfig) *RetryingInserter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}

	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &RetryingInserter{
		inner:          inner,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		sleep:          sleepContext,
	}
}

// InsertCacheRefreshJob calls the inner inserter and retries on error.
func (r *RetryingInserter) InsertCacheRefreshJob(ctx context.Context, args CacheRefreshArgs) error {
	var lastErr error

	backoff := r.initialBackoff

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.inner.InsertCacheRefreshJob(ctx, args)
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == r.maxRetries {
			break
		}

		wait := jitter(backoff)
		slog.WarnContext(ctx, "jobs: enqueue cache refresh failed, retrying",
			"attempt", attempt+1,
			"max_attempts", r.maxRetries+1,
			"backoff", wait,
			"error", err,
		)

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}

		backoff = min(backoff*backoffMultiplier, r.maxBackoff)
	}

	return lastErr
}

// jitter returns a duration between 50% and 100% of d.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return half
	}

	//nolint:gosec // G115: the modulo is in [0, half), which fits in int64
	return half + time.Duration(binary.BigEndian.Uint64(buf[:])%uint64(half))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
