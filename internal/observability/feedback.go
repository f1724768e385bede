package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FeedbackMetrics records feedback collection and learning metrics.
type FeedbackMetrics interface {
	RecordSubmitted(ctx context.Context, feedbackType string)
	RecordLearningOutcome(ctx context.Context, status string)
	RecordAdjustmentFactor(ctx context.Context, factor float64)
	RecordVersionConflict(ctx context.Context)
	RecordCloseLoopChange(ctx context.Context, direction string)
}

type feedbackMetrics struct {
	submitted        metric.Int64Counter
	learningOutcomes metric.Int64Counter
	adjustmentFactor metric.Float64Histogram
	versionConflicts metric.Int64Counter
	closeLoopChanges metric.Int64Counter
}

// adjustmentFactorBoundaries bracket factors of 1 ± max learning rate (0.10).
var adjustmentFactorBoundaries = []float64{0.9, 0.95, 0.98, 0.99, 0.995, 1, 1.005, 1.01, 1.02, 1.05, 1.1}

// NewFeedbackMetrics creates FeedbackMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewFeedbackMetrics(meter metric.Meter) (FeedbackMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	submitted, err := meter.Int64Counter(
		MetricNameFeedbackSubmitted,
		metric.WithDescription("Feedback records collected, by feedback type"),
	)
	if err != nil {
		return nil, fmt.Errorf("create feedback submitted counter: %w", err)
	}

	learningOutcomes, err := meter.Int64Counter(
		MetricNameLearningOutcomes,
		metric.WithDescription("Learner runs by status (applied, no_embeddings, failed, skipped)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create learning outcomes counter: %w", err)
	}

	adjustmentFactor, err := meter.Float64Histogram(
		MetricNameAdjustmentFactor,
		metric.WithDescription("Multiplicative factor applied to embeddings before renormalisation"),
		metric.WithExplicitBucketBoundaries(adjustmentFactorBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create adjustment factor histogram: %w", err)
	}

	versionConflicts, err := meter.Int64Counter(
		MetricNameVersionConflicts,
		metric.WithDescription("Embedding stores rejected because another writer changed the vector first"),
	)
	if err != nil {
		return nil, fmt.Errorf("create version conflicts counter: %w", err)
	}

	closeLoopChanges, err := meter.Int64Counter(
		MetricNameCloseLoopChanges,
		metric.WithDescription("Dimension weight changes applied by close-loop runs, by direction"),
	)
	if err != nil {
		return nil, fmt.Errorf("create close loop changes counter: %w", err)
	}

	return &feedbackMetrics{
		submitted:        submitted,
		learningOutcomes: learningOutcomes,
		adjustmentFactor: adjustmentFactor,
		versionConflicts: versionConflicts,
		closeLoopChanges: closeLoopChanges,
	}, nil
}

func (f *feedbackMetrics) RecordSubmitted(ctx context.Context, feedbackType string) {
	feedbackType = NormalizeReason(feedbackType, AllowedFeedbackTypes)
	f.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrFeedbackType, feedbackType)))
}

func (f *feedbackMetrics) RecordLearningOutcome(ctx context.Context, status string) {
	status = NormalizeReason(status, AllowedLearningStatuses)
	f.learningOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (f *feedbackMetrics) RecordAdjustmentFactor(ctx context.Context, factor float64) {
	f.adjustmentFactor.Record(ctx, factor)
}

func (f *feedbackMetrics) RecordVersionConflict(ctx context.Context) {
	f.versionConflicts.Add(ctx, 1)
}

func (f *feedbackMetrics) RecordCloseLoopChange(ctx context.Context, direction string) {
	switch direction {
	case "increase_weight", "decrease_weight":
	default:
		direction = "other"
	}

	f.closeLoopChanges.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrDirection, direction)))
}
