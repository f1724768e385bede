package service

import (
	"context"
	"encoding/json"
	"hash/maphash"
	"log/slog"
	"sync"
	"time"

	"github.com/reciprocity/matchloop/internal/config"
	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/observability"
	"github.com/reciprocity/matchloop/pkg/cache"
)

const (
	matchCacheName      = "match_cache"
	matchCacheKeyPrefix = "matches:v2:"

	generationStripes = 256
)

// generationStripe guards the invalidation generation of every user hashed to it.
// Writes of computed matches and invalidations for those users are serialized on mu.
type generationStripe struct {
	mu  sync.Mutex
	gen uint64
}

// MatchCacheParams configures a MatchCache.
type MatchCacheParams struct {
	Backend cache.Backend
	Config  config.MatchCacheConfig
	Metrics observability.CacheMetrics // optional
	Logger  *slog.Logger               // optional; defaults to slog.Default()
	Now     func() time.Time           // optional; defaults to time.Now
}

// MatchCache stores each user's precomputed matches with a TTL and a shorter refresh threshold.
// An entry is fresh below the threshold, stale between threshold and TTL, and absent after TTL
// or invalidation. Backend failures are logged and read as misses; they never reach callers.
//
// Every invalidation bumps the user's generation. Matches computed before an invalidation
// are written through CacheMatchesIfCurrent and are dropped once the generation has moved.
type MatchCache struct {
	backend cache.Backend
	cfg     config.MatchCacheConfig
	metrics observability.CacheMetrics
	logger  *slog.Logger
	now     func() time.Time

	seed maphash.Seed
	gens [generationStripes]generationStripe
}

// NewMatchCache creates a MatchCache.
func NewMatchCache(p MatchCacheParams) *MatchCache {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	return &MatchCache{
		backend: p.Backend,
		cfg:     p.Config,
		metrics: p.Metrics,
		logger:  logger,
		now:     now,
		seed:    maphash.MakeSeed(),
	}
}

func (c *MatchCache) stripe(userID string) *generationStripe {
	return &c.gens[maphash.String(c.seed, userID)%generationStripes]
}

// Generation returns userID's invalidation generation. Capture it before computing matches
// and pass it to CacheMatchesIfCurrent.
func (c *MatchCache) Generation(userID string) uint64 {
	s := c.stripe(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gen
}

func matchCacheKey(userID string) string {
	return matchCacheKeyPrefix + userID
}

// GetCachedMatches returns the live entry for userID, or nil on miss, expiry,
// disabled cache, backend error or undecodable data.
func (c *MatchCache) GetCachedMatches(ctx context.Context, userID string) *models.MatchCacheEntry {
	if !c.cfg.Enabled {
		return nil
	}

	entry := c.load(ctx, userID)
	if entry == nil {
		c.recordMiss(ctx)

		return nil
	}

	if c.metrics != nil {
		c.metrics.RecordHit(ctx, matchCacheName)
	}

	c.logger.Debug("match cache: hit", "user_id", userID, "cached_at", entry.CachedAt)

	return entry
}

// load reads and decodes the entry, applying the TTL against the cache's own clock
// so expiry does not depend on the backend's notion of time.
func (c *MatchCache) load(ctx context.Context, userID string) *models.MatchCacheEntry {
	key := matchCacheKey(userID)

	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.backendError(ctx, "get", userID, err)

		return nil
	}

	if !ok {
		return nil
	}

	var entry models.MatchCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("match cache: dropping undecodable entry", "user_id", userID, "error", err)
		_, _ = c.backend.Delete(ctx, key)

		return nil
	}

	if c.cfg.TTL > 0 && entry.Age(c.now()) >= c.cfg.TTL {
		_, _ = c.backend.Delete(ctx, key)

		return nil
	}

	return &entry
}

// CacheMatches stores up to MaxMatches candidates for userID, replacing any previous entry.
// Returns false when the cache is disabled or the backend write fails.
func (c *MatchCache) CacheMatches(
	ctx context.Context, userID string, matches []models.MatchCandidate, metadata map[string]any,
) bool {
	s := c.stripe(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	return c.write(ctx, userID, matches, metadata)
}

// CacheMatchesIfCurrent stores matches only if userID has not been invalidated since gen
// was read. Returns false when the entry was skipped or not written.
func (c *MatchCache) CacheMatchesIfCurrent(
	ctx context.Context, userID string, gen uint64, matches []models.MatchCandidate, metadata map[string]any,
) bool {
	s := c.stripe(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		c.logger.Debug("match cache: skipping matches computed before invalidation", "user_id", userID)

		return false
	}

	return c.write(ctx, userID, matches, metadata)
}

// write must be called with the user's stripe locked.
func (c *MatchCache) write(
	ctx context.Context, userID string, matches []models.MatchCandidate, metadata map[string]any,
) bool {
	if !c.cfg.Enabled {
		return false
	}

	kept := matches
	if c.cfg.MaxMatches > 0 && len(kept) > c.cfg.MaxMatches {
		kept = kept[:c.cfg.MaxMatches]
	}

	if kept == nil {
		kept = []models.MatchCandidate{}
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	entry := models.MatchCacheEntry{
		UserID:       userID,
		Matches:      kept,
		TotalMatches: len(matches),
		CachedAt:     c.now().UTC(),
		Metadata:     metadata,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("match cache: encode entry", "user_id", userID, "error", err)

		return false
	}

	if err := c.backend.Set(ctx, matchCacheKey(userID), data, c.cfg.TTL); err != nil {
		c.backendError(ctx, "set", userID, err)

		return false
	}

	c.logger.Debug("match cache: stored", "user_id", userID, "matches", len(kept), "total", len(matches))

	return true
}

// InvalidateCache removes userID's entry. It reports whether the backend call succeeded,
// not whether an entry existed.
func (c *MatchCache) InvalidateCache(ctx context.Context, userID string) bool {
	return c.invalidate(ctx, userID, "feedback")
}

func (c *MatchCache) invalidate(ctx context.Context, userID, reason string) bool {
	s := c.stripe(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++

	existed, err := c.backend.Delete(ctx, matchCacheKey(userID))
	if err != nil {
		c.backendError(ctx, "delete", userID, err)

		return false
	}

	if existed && c.metrics != nil {
		c.metrics.RecordInvalidation(ctx, reason, 1)
	}

	c.logger.Info("match cache: invalidated", "user_id", userID, "reason", reason, "existed", existed)

	return true
}

// InvalidateAll removes every match cache entry and returns how many were removed.
// Returns 0 on backend error.
func (c *MatchCache) InvalidateAll(ctx context.Context) int {
	for i := range c.gens {
		c.gens[i].mu.Lock()
		c.gens[i].gen++
		c.gens[i].mu.Unlock()
	}

	n, err := c.backend.DeletePrefix(ctx, matchCacheKeyPrefix)
	if err != nil {
		c.backendError(ctx, "scan", "", err)

		return 0
	}

	if c.metrics != nil {
		c.metrics.RecordInvalidation(ctx, "all", n)
	}

	c.logger.Info("match cache: invalidated all entries", "count", n)

	return n
}

// NeedsRefresh reports whether userID has no live entry or its entry has reached the refresh threshold.
func (c *MatchCache) NeedsRefresh(ctx context.Context, userID string) bool {
	return c.State(ctx, userID) != models.CacheFresh
}

// State returns where userID's entry sits in its lifecycle.
func (c *MatchCache) State(ctx context.Context, userID string) models.CacheState {
	if !c.cfg.Enabled {
		return models.CacheAbsent
	}

	entry := c.load(ctx, userID)
	if entry == nil {
		return models.CacheAbsent
	}

	if c.isStale(entry) {
		return models.CacheStale
	}

	return models.CacheFresh
}

func (c *MatchCache) isStale(entry *models.MatchCacheEntry) bool {
	return entry.Age(c.now()) >= c.cfg.RefreshThreshold
}

// Stats describes the cache. CachedUsers is -1 when the backend cannot be scanned.
func (c *MatchCache) Stats(ctx context.Context) models.CacheStats {
	stats := models.CacheStats{
		Enabled:    c.cfg.Enabled,
		Backend:    c.backend.Name(),
		TTLSeconds: int(c.cfg.TTL / time.Second),
	}

	n, err := c.backend.CountPrefix(ctx, matchCacheKeyPrefix)
	if err != nil {
		c.backendError(ctx, "scan", "", err)

		n = -1
	}

	stats.CachedUsers = n

	return stats
}

func (c *MatchCache) recordMiss(ctx context.Context) {
	if c.metrics != nil {
		c.metrics.RecordMiss(ctx, matchCacheName)
	}
}

func (c *MatchCache) backendError(ctx context.Context, op, userID string, err error) {
	if c.metrics != nil {
		c.metrics.RecordBackendError(ctx, op)
	}

	c.logger.Warn("match cache: backend error", "operation", op, "user_id", userID, "backend", c.backend.Name(), "error", err)
}
