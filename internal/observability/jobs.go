package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// JobMetrics records River job outcomes and queue depth.
type JobMetrics interface {
	RecordJob(ctx context.Context, kind, status string, duration time.Duration)
	SetRiverQueueDepth(depth int)
}

type jobMetrics struct {
	outcomes        metric.Int64Counter
	duration        metric.Float64Histogram
	riverQueueDepth atomic.Int64
	riverQueueGauge metric.Float64ObservableGauge
}

// NewJobMetrics creates JobMetrics and registers the queue depth gauge.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewJobMetrics(meter metric.Meter) (JobMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	outcomes, err := meter.Int64Counter(
		MetricNameJobOutcomes,
		metric.WithDescription("Scheduled job runs by kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job outcomes counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameJobDuration,
		metric.WithDescription("Scheduled job duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job duration histogram: %w", err)
	}

	jm := &jobMetrics{outcomes: outcomes, duration: duration}

	gauge, err := meter.Float64ObservableGauge(
		MetricNameRiverQueueDepth,
		metric.WithDescription("Current River job queue depth (available/scheduled/retryable)"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(float64(jm.riverQueueDepth.Load()))

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create river queue depth gauge: %w", err)
	}

	jm.riverQueueGauge = gauge

	return jm, nil
}

func (j *jobMetrics) RecordJob(ctx context.Context, kind, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrJobKind, NormalizeReason(kind, AllowedJobKinds)),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedJobStatuses)),
	)
	j.outcomes.Add(ctx, 1, attrs)
	j.duration.Record(ctx, duration.Seconds(), attrs)
}

func (j *jobMetrics) SetRiverQueueDepth(depth int) {
	j.riverQueueDepth.Store(int64(depth))
}
