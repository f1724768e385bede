package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reciprocity/matchloop/internal/models"
)

// EmbeddingBackend stores embeddings and answers nearest-neighbour queries.
type EmbeddingBackend interface {
	GetEmbedding(ctx context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error)
	StoreEmbedding(ctx context.Context, emb *models.Embedding, expectedVersion int64) (int64, error)
	NearestUsers(ctx context.Context, userID string, limit int, minScore float64) ([]models.MatchCandidate, error)
}

// FeedbackBackend is the append-only feedback log.
type FeedbackBackend interface {
	Append(ctx context.Context, rec *models.FeedbackRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.FeedbackRecord, error)
	ListSince(ctx context.Context, since time.Time) ([]models.FeedbackRecord, error)
	ListForMatch(ctx context.Context, userID, matchUserID string) ([]models.FeedbackRecord, error)
}

// WeightBackend persists dimension weights.
type WeightBackend interface {
	GetWeight(ctx context.Context, dimension string) (*models.DimensionWeight, error)
	ListWeights(ctx context.Context) ([]models.DimensionWeight, error)
	SaveWeight(ctx context.Context, w *models.DimensionWeight) error
}

// Stores bundles the three persistent stores.
type Stores struct {
	Embeddings EmbeddingBackend
	Feedback   FeedbackBackend
	Weights    WeightBackend
}

// NewPostgresStores returns stores backed by db.
func NewPostgresStores(db *pgxpool.Pool) Stores {
	return Stores{
		Embeddings: NewEmbeddingsRepository(db),
		Feedback:   NewFeedbackRecordsRepository(db),
		Weights:    NewDimensionWeightsRepository(db),
	}
}

// NewMemoryStores returns empty in-process stores.
func NewMemoryStores() Stores {
	return Stores{
		Embeddings: NewMemoryEmbeddings(),
		Feedback:   NewMemoryFeedback(),
		Weights:    NewMemoryDimensionWeights(),
	}
}
