package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"golang.org/x/time/rate"

	"github.com/reciprocity/matchloop/internal/jobs"
	"github.com/reciprocity/matchloop/internal/observability"
)

// CacheRefreshTimeout bounds one refresh batch.
const CacheRefreshTimeout = 5 * time.Minute

type cacheRefresher interface {
	NeedsRefresh(ctx context.Context, userID string) bool
	RefreshUserCache(ctx context.Context, userID string) bool
}

// CacheRefreshWorker recomputes cached matches for the users in a job.
// Recomputations are paced by a shared limiter so a burst of stale hits does not flood the vector store.
type CacheRefreshWorker struct {
	river.WorkerDefaults[jobs.CacheRefreshArgs]

	refresher cacheRefresher
	limiter   *rate.Limiter
	metrics   observability.JobMetrics
	logger    *slog.Logger
}

// NewCacheRefreshWorker creates a CacheRefreshWorker allowing perSecond recomputations per second.
// A non-positive perSecond disables pacing. metrics may be nil.
func NewCacheRefreshWorker(
	refresher cacheRefresher, perSecond float64, metrics observability.JobMetrics, logger *slog.Logger,
) *CacheRefreshWorker {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := 1

	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}

	return &CacheRefreshWorker{
		refresher: refresher,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   metrics,
		logger:    logger,
	}
}

// Timeout limits how long a single batch can run.
func (w *CacheRefreshWorker) Timeout(*river.Job[jobs.CacheRefreshArgs]) time.Duration {
	return CacheRefreshTimeout
}

// Work refreshes every listed user whose entry is still missing or stale.
// Users refreshed by a request since the job was enqueued are skipped.
func (w *CacheRefreshWorker) Work(ctx context.Context, job *river.Job[jobs.CacheRefreshArgs]) error {
	ctx = observability.ContextWithJob(ctx, job.Kind, job.ID)
	start := time.Now()

	var refreshed, skipped, failed int

	for _, userID := range job.Args.UserIDs {
		if !w.refresher.NeedsRefresh(ctx, userID) {
			skipped++

			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			w.record(ctx, "failed", start)

			return fmt.Errorf("cache refresh: wait for limiter: %w", err)
		}

		if w.refresher.RefreshUserCache(ctx, userID) {
			refreshed++
		} else {
			failed++
		}
	}

	w.logger.DebugContext(ctx, "cache refresh: batch finished",
		"refreshed", refreshed,
		"skipped", skipped,
		"failed", failed,
	)

	if failed > 0 {
		w.record(ctx, "failed", start)

		return fmt.Errorf("cache refresh: %d of %d users failed", failed, len(job.Args.UserIDs))
	}

	w.record(ctx, "success", start)

	return nil
}

func (w *CacheRefreshWorker) record(ctx context.Context, status string, start time.Time) {
	if w.metrics != nil {
		w.metrics.RecordJob(ctx, jobs.KindCacheRefresh, status, time.Since(start))
	}
}
