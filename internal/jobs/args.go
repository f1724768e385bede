// Package jobs defines the River jobs the service runs in the background.
package jobs

// Job kinds.
const (
	KindCloseLoop    = "close_loop"
	KindCacheRefresh = "cache_refresh"
)

// CloseLoopArgs runs one close-loop pass over the recent feedback window.
type CloseLoopArgs struct{}

// Kind returns the job type identifier for River.
func (CloseLoopArgs) Kind() string { return KindCloseLoop }

// CacheRefreshArgs recomputes cached matches for users whose entries are missing or stale.
type CacheRefreshArgs struct {
	UserIDs []string `json:"user_ids"`
}

// Kind returns the job type identifier for River.
func (CacheRefreshArgs) Kind() string { return KindCacheRefresh }

// BatchUserIDs splits userIDs into refresh jobs of at most size users each.
// A non-positive size puts everything in one job.
func BatchUserIDs(userIDs []string, size int) []CacheRefreshArgs {
	if len(userIDs) == 0 {
		return nil
	}

	if size <= 0 {
		size = len(userIDs)
	}

	batches := make([]CacheRefreshArgs, 0, (len(userIDs)+size-1)/size)

	for start := 0; start < len(userIDs); start += size {
		end := min(start+size, len(userIDs))
		batches = append(batches, CacheRefreshArgs{UserIDs: userIDs[start:end]})
	}

	return batches
}
