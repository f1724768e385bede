package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reciprocity/matchloop/internal/apperrors"
	"github.com/reciprocity/matchloop/internal/config"
	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/internal/repository"
	"github.com/reciprocity/matchloop/pkg/embeddings"
)

const terribleIndustryFeedback = "This was a terrible match, the industry focus was completely wrong"

type fakeEmbeddingStore struct {
	getFn   func(ctx context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error)
	storeFn func(ctx context.Context, emb *models.Embedding, expectedVersion int64) (int64, error)
}

func (f *fakeEmbeddingStore) GetEmbedding(ctx context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
	return f.getFn(ctx, userID, kind)
}

func (f *fakeEmbeddingStore) StoreEmbedding(ctx context.Context, emb *models.Embedding, expectedVersion int64) (int64, error) {
	return f.storeFn(ctx, emb, expectedVersion)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingInvalidator) InvalidateCache(_ context.Context, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users = append(r.users, userID)

	return true
}

func seedEmbedding(t *testing.T, store *repository.MemoryEmbeddings, userID string, kind models.EmbeddingKind, vec []float32) {
	t.Helper()

	_, err := store.StoreEmbedding(context.Background(), &models.Embedding{UserID: userID, Kind: kind, Vector: vec}, 0)
	require.NoError(t, err)
}

func TestEffectiveLearningRate_StaysWithinBounds(t *testing.T) {
	cfg := config.DefaultLearningConfig()

	for _, base := range []float64{0, 0.001, 0.02, 0.5, 3} {
		for _, conf := range []float64{0, 0.1, 0.5, 0.95, 1} {
			for _, scaling := range []bool{true, false} {
				cfg.BaseLearningRate = base
				cfg.ConfidenceScaling = scaling

				rate := EffectiveLearningRate(cfg, conf)
				assert.GreaterOrEqual(t, rate, cfg.MinLearningRate, "base=%v conf=%v", base, conf)
				assert.LessOrEqual(t, rate, cfg.MaxLearningRate, "base=%v conf=%v", base, conf)
			}
		}
	}
}

func TestEffectiveLearningRate_ScalesByConfidence(t *testing.T) {
	cfg := config.DefaultLearningConfig()

	assert.InDelta(t, 0.019, EffectiveLearningRate(cfg, 0.95), 1e-12)

	cfg.ConfidenceScaling = false
	assert.InDelta(t, 0.02, EffectiveLearningRate(cfg, 0.95), 1e-12)
}

func TestFeedbackLearner_TerribleIndustryFeedback(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindRequirements, []float32{1, 2, 2})

	mc, _ := newTestMatchCache(t, config.DefaultMatchCacheConfig())
	require.True(t, mc.CacheMatches(ctx, "u1", candidates(3), nil))

	learner := NewFeedbackLearner(FeedbackLearnerParams{
		Embeddings: store,
		Cache:      mc,
		Config:     config.DefaultLearningConfig(),
	})

	result := learner.ProcessFeedback(ctx, models.LearnRequest{
		UserID:       "u1",
		FeedbackText: terribleIndustryFeedback,
		FeedbackType: "match",
	})

	require.True(t, result.Success, result.Message)
	assert.Equal(t, learnedMessage, result.Message)
	require.NotNil(t, result.Analysis)
	assert.Equal(t, models.SentimentVeryNegative, result.Analysis.Sentiment)
	assert.Contains(t, result.Analysis.AffectedDimensions, models.DimensionIndustry)
	assert.Less(t, result.Analysis.SuggestedAdjustment, 0.0)

	require.Len(t, result.Updates, 1)
	assert.Equal(t, models.KindRequirements, result.Updates[0].Kind)
	assert.True(t, result.Updates[0].Updated)
	assert.Less(t, result.Updates[0].Adjustment, 1.0)

	emb, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, embeddings.Norm(emb.Vector), 1e-5)
	assert.InDeltaSlice(t, []float32{1, 2, 2}, emb.Vector, 1e-5)
	assert.Equal(t, int64(2), emb.Version)

	assert.True(t, emb.Metadata.FeedbackAdjusted)
	assert.InDelta(t, 1+0.019*-0.9025, emb.Metadata.AdjustmentFactor, 1e-9)
	assert.InDelta(t, 0.019, emb.Metadata.LearningRate, 1e-12)
	assert.Equal(t, models.SentimentVeryNegative, emb.Metadata.Sentiment)
	assert.Equal(t, "match", emb.Metadata.FeedbackType)
	assert.Contains(t, emb.Metadata.AffectedDimensions, "industry")

	assert.Nil(t, mc.GetCachedMatches(ctx, "u1"))
}

func TestFeedbackLearner_WithoutNormalizationShrinksVector(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindRequirements, []float32{1, 2, 2})

	cfg := config.DefaultLearningConfig()
	cfg.NormalizeVectors = false

	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: cfg})

	result := learner.ProcessFeedback(ctx, models.LearnRequest{UserID: "u1", FeedbackText: terribleIndustryFeedback})
	require.True(t, result.Success)

	emb, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
	require.NoError(t, err)
	assert.Less(t, embeddings.Norm(emb.Vector), 3.0)
}

func TestFeedbackLearner_TargetPortionBoth(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindRequirements, []float32{1, 0})
	seedEmbedding(t, store, "u1", models.KindOfferings, []float32{0, 1})

	cfg := config.DefaultLearningConfig()
	cfg.TargetPortion = config.TargetBoth

	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: cfg})

	result := learner.ProcessFeedback(ctx, models.LearnRequest{UserID: "u1", FeedbackText: "perfect match"})
	require.True(t, result.Success)
	require.Len(t, result.Updates, 2)
	assert.Equal(t, models.KindRequirements, result.Updates[0].Kind)
	assert.Equal(t, models.KindOfferings, result.Updates[1].Kind)
	assert.Greater(t, result.Updates[0].Adjustment, 1.0)
}

func TestFeedbackLearner_BothSkipsMissingKind(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindOfferings, []float32{0, 1})

	cfg := config.DefaultLearningConfig()
	cfg.TargetPortion = config.TargetBoth

	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: cfg})

	result := learner.ProcessFeedback(ctx, models.LearnRequest{UserID: "u1", FeedbackText: "great"})
	require.True(t, result.Success)
	require.Len(t, result.Updates, 1)
	assert.Equal(t, models.KindOfferings, result.Updates[0].Kind)
}

func TestFeedbackLearner_NoEmbeddings(t *testing.T) {
	inv := &recordingInvalidator{}
	learner := NewFeedbackLearner(FeedbackLearnerParams{
		Embeddings: repository.NewMemoryEmbeddings(),
		Cache:      inv,
		Config:     config.DefaultLearningConfig(),
	})

	result := learner.ProcessFeedback(context.Background(), models.LearnRequest{UserID: "ghost", FeedbackText: "great"})

	assert.False(t, result.Success)
	assert.Equal(t, noEmbeddingMessage, result.Message)
	assert.NotNil(t, result.Analysis)
	assert.Empty(t, result.Updates)
	assert.Empty(t, inv.users)
	assert.Zero(t, learner.AdjustmentStats("ghost").TotalAdjustments)
}

func TestFeedbackLearner_MalformedVector(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{name: "empty", vector: []float32{}},
		{name: "nan", vector: []float32{1, float32(math.NaN())}},
		{name: "inf", vector: []float32{float32(math.Inf(1)), 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeEmbeddingStore{
				getFn: func(_ context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
					return &models.Embedding{UserID: userID, Kind: kind, Vector: tt.vector, Version: 1}, nil
				},
				storeFn: func(context.Context, *models.Embedding, int64) (int64, error) {
					t.Fatal("malformed vector must not be stored")

					return 0, nil
				},
			}

			learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: config.DefaultLearningConfig()})

			result := learner.ProcessFeedback(context.Background(), models.LearnRequest{UserID: "u1", FeedbackText: "bad"})
			assert.False(t, result.Success)
			assert.Contains(t, result.Message, embeddings.ErrMalformedVector.Error())
		})
	}
}

func TestFeedbackLearner_StoreFailure(t *testing.T) {
	store := &fakeEmbeddingStore{
		getFn: func(_ context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
			return &models.Embedding{UserID: userID, Kind: kind, Vector: []float32{1, 1}, Version: 4}, nil
		},
		storeFn: func(context.Context, *models.Embedding, int64) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}

	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: config.DefaultLearningConfig()})

	result := learner.ProcessFeedback(context.Background(), models.LearnRequest{UserID: "u1", FeedbackText: "great"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "connection reset")
}

func TestFeedbackLearner_RetriesVersionConflict(t *testing.T) {
	var gets, stores int

	store := &fakeEmbeddingStore{
		getFn: func(_ context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
			gets++

			return &models.Embedding{UserID: userID, Kind: kind, Vector: []float32{3, 4}, Version: int64(gets)}, nil
		},
		storeFn: func(_ context.Context, _ *models.Embedding, expected int64) (int64, error) {
			stores++
			if stores < 3 {
				return 0, apperrors.NewConflictError("changed")
			}

			assert.Equal(t, int64(3), expected)

			return expected + 1, nil
		},
	}

	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: config.DefaultLearningConfig()})

	result := learner.ProcessFeedback(context.Background(), models.LearnRequest{UserID: "u1", FeedbackText: "great"})
	require.True(t, result.Success, result.Message)
	assert.Equal(t, 3, gets)
	assert.Equal(t, 3, stores)
}

func TestFeedbackLearner_GivesUpAfterMaxAttempts(t *testing.T) {
	var stores int

	store := &fakeEmbeddingStore{
		getFn: func(_ context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
			return &models.Embedding{UserID: userID, Kind: kind, Vector: []float32{3, 4}, Version: 1}, nil
		},
		storeFn: func(context.Context, *models.Embedding, int64) (int64, error) {
			stores++

			return 0, apperrors.NewConflictError("changed")
		},
	}

	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: config.DefaultLearningConfig()})

	result := learner.ProcessFeedback(context.Background(), models.LearnRequest{UserID: "u1", FeedbackText: "great"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "after 3 attempts")
	assert.Equal(t, 3, stores)
}

func TestFeedbackLearner_ConcurrentFeedbackIsNotLost(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindRequirements, []float32{3, 4})

	cfg := config.DefaultLearningConfig()
	cfg.MaxAttempts = 1

	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Config: cfg})

	const workers = 10

	var wg sync.WaitGroup

	results := make([]models.LearningResult, workers)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = learner.ProcessFeedback(ctx, models.LearnRequest{UserID: "u1", FeedbackText: "excellent"})
		}()
	}

	wg.Wait()

	for _, r := range results {
		assert.True(t, r.Success, r.Message)
	}

	emb, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), emb.Version)
	assert.InDelta(t, 5.0, embeddings.Norm(emb.Vector), 1e-4)
}

func TestFeedbackLearner_AdjustmentHistoryAndStats(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindRequirements, []float32{1, 1})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.DefaultLearningConfig()
	cfg.MaxHistory = 2

	learner := NewFeedbackLearner(FeedbackLearnerParams{
		Embeddings: store,
		Config:     cfg,
		Now:        func() time.Time { return now },
	})

	for _, text := range []string{"perfect", "terrible", "excellent"} {
		require.True(t, learner.ProcessFeedback(ctx, models.LearnRequest{UserID: "u1", FeedbackText: text, FeedbackType: "chat"}).Success)
	}

	history := learner.AdjustmentHistory("u1")
	require.Len(t, history, 2)
	assert.Equal(t, models.SentimentVeryNegative, history[0].Sentiment)
	assert.Equal(t, "chat", history[1].FeedbackType)

	stats := learner.AdjustmentStats("u1")
	assert.Equal(t, 2, stats.TotalAdjustments)
	assert.Equal(t, 1, stats.PositiveAdjustments)
	assert.Equal(t, 1, stats.NegativeAdjustments)
	require.NotNil(t, stats.LastAdjustment)
	assert.Equal(t, now, stats.LastAdjustment.Timestamp)
	assert.InDelta(t, (history[0].AdjustmentFactor+history[1].AdjustmentFactor-2)/2, stats.AvgFactorDelta, 1e-12)
}

func TestFeedbackLearner_BothLeavesVectorsUntouchedWhenOneIsMalformed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindRequirements, []float32{1, 2, 2})
	seedEmbedding(t, store, "u1", models.KindOfferings, []float32{1, float32(math.NaN()), 2})

	cfg := config.DefaultLearningConfig()
	cfg.TargetPortion = config.TargetBoth

	inv := &recordingInvalidator{}
	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Cache: inv, Config: cfg})

	result := learner.ProcessFeedback(ctx, models.LearnRequest{UserID: "u1", FeedbackText: terribleIndustryFeedback})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, embeddings.ErrMalformedVector.Error())
	assert.Empty(t, result.Updates)
	assert.Empty(t, inv.users)

	req, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
	require.NoError(t, err)
	assert.Equal(t, int64(1), req.Version)
	assert.False(t, req.Metadata.FeedbackAdjusted)
}

func TestFeedbackLearner_PartialStoreStillInvalidates(t *testing.T) {
	var stored []models.EmbeddingKind

	store := &fakeEmbeddingStore{
		getFn: func(_ context.Context, userID string, kind models.EmbeddingKind) (*models.Embedding, error) {
			return &models.Embedding{UserID: userID, Kind: kind, Vector: []float32{3, 4}, Version: 1}, nil
		},
		storeFn: func(_ context.Context, emb *models.Embedding, expected int64) (int64, error) {
			if emb.Kind == models.KindOfferings {
				return 0, errors.New("connection reset")
			}

			stored = append(stored, emb.Kind)

			return expected + 1, nil
		},
	}

	cfg := config.DefaultLearningConfig()
	cfg.TargetPortion = config.TargetBoth

	inv := &recordingInvalidator{}
	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Cache: inv, Config: cfg})

	result := learner.ProcessFeedback(context.Background(), models.LearnRequest{UserID: "u1", FeedbackText: "great"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "connection reset")
	assert.Equal(t, []models.EmbeddingKind{models.KindRequirements}, stored)

	require.Len(t, result.Updates, 1)
	assert.Equal(t, models.KindRequirements, result.Updates[0].Kind)
	assert.Equal(t, []string{"u1"}, inv.users)
	assert.False(t, result.CacheInvalidationFailed)
}

type failingInvalidator struct {
	calls int
}

func (f *failingInvalidator) InvalidateCache(context.Context, string) bool {
	f.calls++

	return false
}

func TestFeedbackLearner_ReportsFailedInvalidation(t *testing.T) {
	store := repository.NewMemoryEmbeddings()
	seedEmbedding(t, store, "u1", models.KindRequirements, []float32{3, 4})

	inv := &failingInvalidator{}
	learner := NewFeedbackLearner(FeedbackLearnerParams{Embeddings: store, Cache: inv, Config: config.DefaultLearningConfig()})

	result := learner.ProcessFeedback(context.Background(), models.LearnRequest{UserID: "u1", FeedbackText: "great"})
	require.True(t, result.Success, result.Message)
	assert.True(t, result.CacheInvalidationFailed)
	assert.Equal(t, 2, inv.calls)
}
