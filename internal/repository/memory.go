package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/reciprocity/matchloop/internal/apperrors"
	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/pkg/embeddings"
)

type embeddingKey struct {
	userID string
	kind   models.EmbeddingKind
}

// MemoryEmbeddings is an in-process embedding store with the same versioning rules as
// EmbeddingsRepository. Used when STORE_BACKEND=memory and in tests.
type MemoryEmbeddings struct {
	mu   sync.RWMutex
	rows map[embeddingKey]models.Embedding
	now  func() time.Time
}

// NewMemoryEmbeddings returns an empty store.
func NewMemoryEmbeddings() *MemoryEmbeddings {
	return &MemoryEmbeddings{rows: make(map[embeddingKey]models.Embedding), now: time.Now}
}

// GetEmbedding returns a copy of the stored embedding.
func (m *MemoryEmbeddings) GetEmbedding(_ context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emb, ok := m.rows[embeddingKey{userID, kind}]
	if !ok {
		return nil, apperrors.NewNotFoundError("embedding", fmt.Sprintf("no %s embedding for user %s", kind, userID))
	}

	emb.Vector = slices.Clone(emb.Vector)
	emb.Metadata.AffectedDimensions = slices.Clone(emb.Metadata.AffectedDimensions)

	return &emb, nil
}

// StoreEmbedding stores a copy of emb when the current version equals expectedVersion.
func (m *MemoryEmbeddings) StoreEmbedding(_ context.Context, emb *models.Embedding, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := embeddingKey{emb.UserID, emb.Kind}

	current, ok := m.rows[key]
	if (!ok && expectedVersion != 0) || (ok && current.Version != expectedVersion) {
		return 0, apperrors.NewConflictError(
			fmt.Sprintf("%s embedding for user %s changed since version %d", emb.Kind, emb.UserID, expectedVersion))
	}

	stored := *emb
	stored.Vector = slices.Clone(emb.Vector)
	stored.Metadata.AffectedDimensions = slices.Clone(emb.Metadata.AffectedDimensions)
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = m.now().UTC()
	m.rows[key] = stored

	return stored.Version, nil
}

// NearestUsers scores every other user's offerings against userID's requirements by cosine
// similarity, mirroring EmbeddingsRepository.NearestUsers. Ties are broken by user id.
func (m *MemoryEmbeddings) NearestUsers(
	_ context.Context, userID string, limit int, minScore float64,
) ([]models.MatchCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query, ok := m.rows[embeddingKey{userID, models.KindRequirements}]
	if !ok {
		return []models.MatchCandidate{}, nil
	}

	results := []models.MatchCandidate{}

	for key, emb := range m.rows {
		if key.kind != models.KindOfferings || key.userID == userID {
			continue
		}

		score := embeddings.CosineSimilarity(query.Vector, emb.Vector)
		if score < minScore {
			continue
		}

		results = append(results, models.MatchCandidate{UserID: key.userID, Score: score})
	}

	slices.SortFunc(results, func(a, b models.MatchCandidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.UserID, b.UserID)
		}
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// MemoryFeedback is an append-only in-process feedback store.
type MemoryFeedback struct {
	mu      sync.RWMutex
	records []models.FeedbackRecord
}

// NewMemoryFeedback returns an empty store.
func NewMemoryFeedback() *MemoryFeedback {
	return &MemoryFeedback{}
}

// Append adds rec.
func (m *MemoryFeedback) Append(_ context.Context, rec *models.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, *rec)

	return nil
}

// ListByUser returns the user's most recent limit records in submission order.
func (m *MemoryFeedback) ListByUser(_ context.Context, userID string, limit int) ([]models.FeedbackRecord, error) {
	out := m.filter(func(r *models.FeedbackRecord) bool { return r.UserID == userID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

// ListSince returns every record at or after since in submission order.
func (m *MemoryFeedback) ListSince(_ context.Context, since time.Time) ([]models.FeedbackRecord, error) {
	return m.filter(func(r *models.FeedbackRecord) bool { return !r.Timestamp.Before(since) }), nil
}

// ListForMatch returns the records userID submitted about matchUserID.
func (m *MemoryFeedback) ListForMatch(_ context.Context, userID, matchUserID string) ([]models.FeedbackRecord, error) {
	return m.filter(func(r *models.FeedbackRecord) bool {
		return r.UserID == userID && r.MatchUserID == matchUserID
	}), nil
}

func (m *MemoryFeedback) filter(keep func(*models.FeedbackRecord) bool) []models.FeedbackRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.FeedbackRecord{}

	for i := range m.records {
		if keep(&m.records[i]) {
			out = append(out, m.records[i])
		}
	}

	return out
}

// MemoryDimensionWeights is an in-process dimension weight store.
type MemoryDimensionWeights struct {
	mu      sync.RWMutex
	weights map[string]models.DimensionWeight
}

// NewMemoryDimensionWeights returns an empty store.
func NewMemoryDimensionWeights() *MemoryDimensionWeights {
	return &MemoryDimensionWeights{weights: make(map[string]models.DimensionWeight)}
}

// GetWeight returns the weight for dimension, or nil when none is stored.
func (m *MemoryDimensionWeights) GetWeight(_ context.Context, dimension string) (*models.DimensionWeight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.weights[dimension]
	if !ok {
		return nil, nil //nolint:nilnil // absent weight means default weight
	}

	return &w, nil
}

// ListWeights returns all weights ordered by dimension.
func (m *MemoryDimensionWeights) ListWeights(_ context.Context) ([]models.DimensionWeight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.DimensionWeight, 0, len(m.weights))
	for _, dim := range slices.Sorted(maps.Keys(m.weights)) {
		out = append(out, m.weights[dim])
	}

	return out, nil
}

// SaveWeight upserts w.
func (m *MemoryDimensionWeights) SaveWeight(_ context.Context, w *models.DimensionWeight) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.weights[w.Dimension] = *w

	return nil
}
