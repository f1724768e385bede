package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/observability"
)

// CachedMatcherParams wires a CachedMatcher.
type CachedMatcherParams struct {
	Cache     *MatchCache
	Matcher   Matcher
	Limit     int
	Refresher RefreshEnqueuer            // optional; stale hits are served without a background refresh when nil
	Metrics   observability.CacheMetrics // optional
	Logger    *slog.Logger
}

// CachedMatcher serves matches from the match cache and recomputes them on a miss.
// Concurrent misses for the same user share one computation.
type CachedMatcher struct {
	cache     *MatchCache
	matcher   Matcher
	limit     int
	refresher RefreshEnqueuer
	metrics   observability.CacheMetrics
	logger    *slog.Logger
	group     singleflight.Group
}

// NewCachedMatcher creates a CachedMatcher.
func NewCachedMatcher(p CachedMatcherParams) *CachedMatcher {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CachedMatcher{
		cache:     p.Cache,
		matcher:   p.Matcher,
		limit:     p.Limit,
		refresher: p.Refresher,
		metrics:   p.Metrics,
		logger:    logger,
	}
}

// FindMatches returns userID's cached matches, or computes and caches them when there is no
// live entry or forceRefresh is set. A stale hit is still served and schedules a refresh.
func (m *CachedMatcher) FindMatches(ctx context.Context, userID string, forceRefresh bool) models.FindMatchesResult {
	if !forceRefresh {
		if entry := m.cache.GetCachedMatches(ctx, userID); entry != nil {
			if m.cache.isStale(entry) {
				m.scheduleRefresh(ctx, userID)
			}

			cachedAt := entry.CachedAt

			return models.FindMatchesResult{
				Success:      true,
				FromCache:    true,
				CachedAt:     &cachedAt,
				Matches:      entry.Matches,
				TotalMatches: entry.TotalMatches,
			}
		}
	}

	matches, err := m.compute(ctx, userID)
	if err != nil {
		m.logger.Error("matcher: compute matches failed", "user_id", userID, "error", err)

		return models.FindMatchesResult{
			Success: false,
			Matches: []models.MatchCandidate{},
			Error:   err.Error(),
		}
	}

	return models.FindMatchesResult{
		Success:      true,
		FromCache:    false,
		Matches:      matches,
		TotalMatches: len(matches),
	}
}

func (m *CachedMatcher) compute(ctx context.Context, userID string) ([]models.MatchCandidate, error) {
	// Callers arriving after an invalidation do not join a computation that started before it.
	gen := m.cache.Generation(userID)
	key := userID + "@" + strconv.FormatUint(gen, 10)

	v, err, _ := m.group.Do(key, func() (any, error) {
		start := time.Now()

		matches, err := m.matcher.FindMatches(ctx, userID, m.limit)
		if err != nil {
			return nil, err
		}

		if m.metrics != nil {
			m.metrics.RecordComputeDuration(ctx, time.Since(start))
		}

		if matches == nil {
			matches = []models.MatchCandidate{}
		}

		m.cache.CacheMatchesIfCurrent(ctx, userID, gen, matches, map[string]any{
			"computed_at": time.Now().UTC().Format(time.RFC3339),
		})

		return matches, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]models.MatchCandidate), nil
}

// SetRefresher installs the background refresher. Call before serving requests; the River
// client that backs it is created after the matcher its workers depend on.
func (m *CachedMatcher) SetRefresher(r RefreshEnqueuer) {
	m.refresher = r
}

func (m *CachedMatcher) scheduleRefresh(ctx context.Context, userID string) {
	if m.refresher == nil {
		return
	}

	if err := m.refresher.EnqueueRefresh(ctx, userID); err != nil {
		m.logger.Warn("matcher: enqueue refresh failed", "user_id", userID, "error", err)
	}
}

// RefreshUserCache drops userID's entry and recomputes it. Reports whether the recomputation succeeded.
func (m *CachedMatcher) RefreshUserCache(ctx context.Context, userID string) bool {
	m.cache.invalidate(ctx, userID, "refresh")

	return m.FindMatches(ctx, userID, true).Success
}

// InvalidateOnProfileUpdate drops userID's cached matches after their profile changed.
// Other users' entries that contain userID age out through the TTL.
func (m *CachedMatcher) InvalidateOnProfileUpdate(ctx context.Context, userID string) bool {
	return m.cache.invalidate(ctx, userID, "profile_update")
}

// NeedsRefresh reports whether userID's cached matches are missing or stale.
func (m *CachedMatcher) NeedsRefresh(ctx context.Context, userID string) bool {
	return m.cache.NeedsRefresh(ctx, userID)
}

// Stats describes the underlying match cache.
func (m *CachedMatcher) Stats(ctx context.Context) models.CacheStats {
	return m.cache.Stats(ctx)
}

// InvalidateAll drops every cached match list.
func (m *CachedMatcher) InvalidateAll(ctx context.Context) int {
	return m.cache.InvalidateAll(ctx)
}
