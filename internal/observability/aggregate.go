package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all service metric collectors. When metrics are disabled, all fields are nil.
// Components that accept an interface (FeedbackMetrics, CacheMetrics, JobMetrics, APIMetrics) can
// receive the corresponding field; they already handle nil.
type Metrics struct {
	Feedback FeedbackMetrics
	Cache    CacheMetrics
	Jobs     JobMetrics
	API      APIMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	feedback, err := NewFeedbackMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("feedback metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	jobs, err := NewJobMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("job metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Feedback: feedback,
		Cache:    cache,
		Jobs:     jobs,
		API:      api,
	}, nil
}
