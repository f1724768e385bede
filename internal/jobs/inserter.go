package jobs

import (
	"context"
)

// JobInserter enqueues background jobs without exposing River to callers.
type JobInserter interface {
	// InsertCacheRefreshJob enqueues a match cache refresh for the given users.
	InsertCacheRefreshJob(ctx context.Context, args CacheRefreshArgs) error
}

// RefreshEnqueuer adapts a JobInserter to single-user refresh requests.
type RefreshEnqueuer struct {
	inserter JobInserter
}

// NewRefreshEnqueuer creates a RefreshEnqueuer.
func NewRefreshEnqueuer(inserter JobInserter) *RefreshEnqueuer {
	return &RefreshEnqueuer{inserter: inserter}
}

// EnqueueRefresh schedules a cache refresh for userID.
func (e *RefreshEnqueuer) EnqueueRefresh(ctx context.Context, userID string) error {
	return e.inserter.InsertCacheRefreshJob(ctx, CacheRefreshArgs{UserIDs: []string{userID}})
}
