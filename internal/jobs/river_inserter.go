package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client        *river.Client[pgx.Tx]
	refreshPeriod time.Duration
}

// NewRiverJobInserter creates a new River-based job inserter. refreshPeriod, when positive,
// limits refreshes for the same users to one per period.
func NewRiverJobInserter(client *river.Client[pgx.Tx], refreshPeriod time.Duration) *RiverJobInserter {
	return &RiverJobInserter{client: client, refreshPeriod: refreshPeriod}
}

// pendingStates are the job states that make a new refresh for the same users a duplicate.
// River requires JobStatePending whenever ByState is set.
var pendingStates = []rivertype.JobState{
	rivertype.JobStatePending,
	rivertype.JobStateAvailable,
	rivertype.JobStateRetryable,
	rivertype.JobStateScheduled,
}

// InsertCacheRefreshJob enqueues a refresh. A refresh for the same users that has not started yet,
// or was inserted within the refresh period, absorbs the new one.
func (r *RiverJobInserter) InsertCacheRefreshJob(ctx context.Context, args CacheRefreshArgs) error {
	_, err := r.client.Insert(ctx, args, &river.InsertOpts{
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: r.refreshPeriod,
			ByState:  pendingStates,
		},
	})

	return err
}
