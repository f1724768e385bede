// Package workers provides River job workers for the feedback loop and match cache.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/reciprocity/matchloop/internal/jobs"
	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/observability"
)

// CloseLoopTimeout bounds one close-loop pass.
const CloseLoopTimeout = 2 * time.Minute

type loopCloser interface {
	CloseLoop(ctx context.Context) (*models.CloseLoopReport, error)
}

// CloseLoopWorker runs the periodic close-loop pass.
type CloseLoopWorker struct {
	river.WorkerDefaults[jobs.CloseLoopArgs]

	loop    loopCloser
	metrics observability.JobMetrics
	logger  *slog.Logger
}

// NewCloseLoopWorker creates a CloseLoopWorker. metrics may be nil when metrics are disabled.
func NewCloseLoopWorker(loop loopCloser, metrics observability.JobMetrics, logger *slog.Logger) *CloseLoopWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &CloseLoopWorker{loop: loop, metrics: metrics, logger: logger}
}

// Timeout limits how long a single pass can run.
func (w *CloseLoopWorker) Timeout(*river.Job[jobs.CloseLoopArgs]) time.Duration {
	return CloseLoopTimeout
}

// Work analyzes the recent window and applies the qualifying weight changes.
func (w *CloseLoopWorker) Work(ctx context.Context, job *river.Job[jobs.CloseLoopArgs]) error {
	ctx = observability.ContextWithJob(ctx, job.Kind, job.ID)
	start := time.Now()

	report, err := w.loop.CloseLoop(ctx)
	if err != nil {
		w.record(ctx, "failed", start)

		return fmt.Errorf("close loop: %w", err)
	}

	w.record(ctx, "success", start)
	w.logger.InfoContext(ctx, "close loop: pass finished",
		"feedback_processed", report.TotalFeedbackProcessed,
		"changes_applied", report.ChangesApplied,
		"signals", len(report.Changes),
	)

	return nil
}

func (w *CloseLoopWorker) record(ctx context.Context, status string, start time.Time) {
	if w.metrics != nil {
		w.metrics.RecordJob(ctx, jobs.KindCloseLoop, status, time.Since(start))
	}
}
