package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics records match cache metrics with bounded cardinality (cache name, reason, operation).
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
	RecordInvalidation(ctx context.Context, reason string, count int)
	RecordBackendError(ctx context.Context, operation string)
	RecordComputeDuration(ctx context.Context, duration time.Duration)
}

// cacheMetrics implements CacheMetrics.
type cacheMetrics struct {
	hits            metric.Int64Counter
	misses          metric.Int64Counter
	invalidations   metric.Int64Counter
	backendErrors   metric.Int64Counter
	computeDuration metric.Float64Histogram
}

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	hitDesc := "Number of match cache lookups that returned a live entry. " +
		"Hit ratio = rate(hits) / (rate(hits) + rate(misses))."

	hits, err := meter.Int64Counter(
		MetricNameCacheHits, metric.WithDescription(hitDesc), metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}

	misses, err := meter.Int64Counter(
		MetricNameCacheMisses,
		metric.WithDescription("Number of match cache lookups that found no live entry (absent, expired, disabled or backend error)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}

	invalidations, err := meter.Int64Counter(
		MetricNameCacheInvalidations,
		metric.WithDescription("Match cache entries removed, by reason (feedback, profile_update, refresh, all)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache invalidations counter: %w", err)
	}

	backendErrors, err := meter.Int64Counter(
		MetricNameCacheBackendErrors,
		metric.WithDescription("Cache backend calls that failed and were degraded to a miss."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache backend errors counter: %w", err)
	}

	computeDuration, err := meter.Float64Histogram(
		MetricNameMatchComputeDuration,
		metric.WithDescription("Time to recompute a user's matches on cache miss (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create match compute duration histogram: %w", err)
	}

	return &cacheMetrics{
		hits:            hits,
		misses:          misses,
		invalidations:   invalidations,
		backendErrors:   backendErrors,
		computeDuration: computeDuration,
	}, nil
}

func attrCache(name string) attribute.KeyValue {
	return attribute.String(AttrCache, NormalizeCacheName(name))
}

func (c *cacheMetrics) RecordHit(ctx context.Context, cacheName string) {
	c.hits.Add(ctx, 1, metric.WithAttributes(attrCache(cacheName)))
}

func (c *cacheMetrics) RecordMiss(ctx context.Context, cacheName string) {
	c.misses.Add(ctx, 1, metric.WithAttributes(attrCache(cacheName)))
}

func (c *cacheMetrics) RecordInvalidation(ctx context.Context, reason string, count int) {
	reason = NormalizeReason(reason, AllowedInvalidationReasons)
	c.invalidations.Add(ctx, int64(count), metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (c *cacheMetrics) RecordBackendError(ctx context.Context, operation string) {
	operation = NormalizeReason(operation, AllowedCacheOperations)
	c.backendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOperation, operation)))
}

func (c *cacheMetrics) RecordComputeDuration(ctx context.Context, duration time.Duration) {
	c.computeDuration.Record(ctx, duration.Seconds())
}
