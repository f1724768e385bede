package service

import (
	"context"
	"time"

	"github.com/reciprocity/matchloop/internal/models"
)

// EmbeddingStore reads and writes per-user embeddings with optimistic versioning.
// StoreEmbedding returns an apperrors.ConflictError when the stored version is not expectedVersion.
type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error)
	StoreEmbedding(ctx context.Context, emb *models.Embedding, expectedVersion int64) (int64, error)
}

// FeedbackStore is the append-only feedback log.
type FeedbackStore interface {
	Append(ctx context.Context, rec *models.FeedbackRecord) error
	// ListByUser returns the most recent limit records for userID, oldest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]models.FeedbackRecord, error)
	ListSince(ctx context.Context, since time.Time) ([]models.FeedbackRecord, error)
	ListForMatch(ctx context.Context, userID, matchUserID string) ([]models.FeedbackRecord, error)
}

// DimensionWeightStore persists the global matching weight of each dimension.
type DimensionWeightStore interface {
	// GetWeight returns nil, nil when the dimension has no stored weight.
	GetWeight(ctx context.Context, dimension string) (*models.DimensionWeight, error)
	ListWeights(ctx context.Context) ([]models.DimensionWeight, error)
	SaveWeight(ctx context.Context, w *models.DimensionWeight) error
}

// Matcher computes a user's matches from scratch, best first.
type Matcher interface {
	FindMatches(ctx context.Context, userID string, limit int) ([]models.MatchCandidate, error)
}

// CacheInvalidator drops a user's cached matches.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, userID string) bool
}

// FeedbackProcessor applies free-text feedback to a user's embeddings.
type FeedbackProcessor interface {
	ProcessFeedback(ctx context.Context, req models.LearnRequest) models.LearningResult
}

// RefreshEnqueuer schedules a background recomputation of a user's matches.
type RefreshEnqueuer interface {
	EnqueueRefresh(ctx context.Context, userID string) error
}
