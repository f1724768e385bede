package models

import "time"

// MatchCandidate is one precomputed match for a user.
type MatchCandidate struct {
	UserID      string     `json:"user_id"`
	Score       float64    `json:"score"`
	Tier        *MatchTier `json:"tier,omitempty"`
	Explanation *string    `json:"explanation,omitempty"`
}

// MatchCacheEntry is the cached match list for one user.
// Matches is truncated to the configured maximum; TotalMatches is the length before truncation.
type MatchCacheEntry struct {
	UserID       string           `json:"user_id"`
	Matches      []MatchCandidate `json:"matches"`
	TotalMatches int              `json:"total_matches"`
	CachedAt     time.Time        `json:"cached_at"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// Age returns how long ago the entry was cached.
func (e *MatchCacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// CacheState is the lifecycle position of a cache entry.
type CacheState string

// Cache states. An expired entry reads as absent.
const (
	CacheAbsent CacheState = "absent"
	CacheFresh  CacheState = "fresh"
	CacheStale  CacheState = "stale"
)

// CacheStats describes the match cache.
type CacheStats struct {
	Enabled     bool   `json:"enabled"`
	Backend     string `json:"backend"`
	TTLSeconds  int    `json:"ttl_seconds"`
	CachedUsers int    `json:"cached_users"`
}

// FindMatchesResult is returned by cached matching.
type FindMatchesResult struct {
	Success      bool             `json:"success"`
	FromCache    bool             `json:"from_cache"`
	CachedAt     *time.Time       `json:"cached_at,omitempty"`
	Matches      []MatchCandidate `json:"matches"`
	TotalMatches int              `json:"total_matches"`
	Error        string           `json:"error,omitempty"`
}

// FindMatchesFilters are the query parameters of GET /v1/matches/{user_id}.
type FindMatchesFilters struct {
	Refresh bool `form:"refresh"`
}

// Score thresholds for match tiers.
const (
	PerfectTierMinScore        = 0.80
	StrongTierMinScore         = 0.65
	WorthExploringTierMinScore = 0.45
)

// TierForScore maps a similarity score to its presentation tier.
func TierForScore(score float64) MatchTier {
	switch {
	case score >= PerfectTierMinScore:
		return TierPerfect
	case score >= StrongTierMinScore:
		return TierStrong
	case score >= WorthExploringTierMinScore:
		return TierWorthExploring
	default:
		return TierLow
	}
}
