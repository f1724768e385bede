package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reciprocity/matchloop/internal/apperrors"
	"github.com/reciprocity/matchloop/internal/models"
)

func TestMemoryEmbeddings_VersionedStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEmbeddings()

	_, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	v, err := store.StoreEmbedding(ctx, &models.Embedding{
		UserID: "u1", Kind: models.KindRequirements, Vector: []float32{1, 2, 2},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	t.Run("insert over existing row conflicts", func(t *testing.T) {
		_, err := store.StoreEmbedding(ctx, &models.Embedding{
			UserID: "u1", Kind: models.KindRequirements, Vector: []float32{0, 0, 1},
		}, 0)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("update with current version succeeds", func(t *testing.T) {
		emb, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
		require.NoError(t, err)

		emb.Vector = []float32{2, 1, 2}
		v, err := store.StoreEmbedding(ctx, emb, emb.Version)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
	})

	t.Run("update with stale version conflicts", func(t *testing.T) {
		_, err := store.StoreEmbedding(ctx, &models.Embedding{
			UserID: "u1", Kind: models.KindRequirements, Vector: []float32{9},
		}, 1)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("returned vector is a copy", func(t *testing.T) {
		emb, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
		require.NoError(t, err)

		emb.Vector[0] = 100

		again, err := store.GetEmbedding(ctx, "u1", models.KindRequirements)
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 1, 2}, again.Vector)
	})
}

func TestMemoryFeedback_Queries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFeedback()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		rec := models.NewMatchRating("u1", "m1", i+1, nil, nil, nil, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.Append(ctx, &rec))
	}

	other := models.NewMatchRating("u2", "m1", 3, nil, nil, nil, base.Add(10*time.Hour))
	require.NoError(t, store.Append(ctx, &other))

	t.Run("ListByUser keeps the most recent in order", func(t *testing.T) {
		recs, err := store.ListByUser(ctx, "u1", 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, 4, *recs[0].Rating)
		assert.Equal(t, 5, *recs[1].Rating)
	})

	t.Run("ListSince is inclusive", func(t *testing.T) {
		recs, err := store.ListSince(ctx, base.Add(4*time.Hour))
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("ListForMatch filters both ids", func(t *testing.T) {
		recs, err := store.ListForMatch(ctx, "u2", "m1")
		require.NoError(t, err)
		assert.Len(t, recs, 1)

		recs, err = store.ListForMatch(ctx, "u2", "nobody")
		require.NoError(t, err)
		assert.Empty(t, recs)
		assert.NotNil(t, recs)
	})
}

func TestMemoryDimensionWeights(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDimensionWeights()

	w, err := store.GetWeight(ctx, "stage")
	require.NoError(t, err)
	assert.Nil(t, w)

	now := time.Now()
	require.NoError(t, store.SaveWeight(ctx, &models.DimensionWeight{Dimension: "stage", Weight: 1.1, UpdatedAt: now}))
	require.NoError(t, store.SaveWeight(ctx, &models.DimensionWeight{Dimension: "geography", Weight: 0.9, UpdatedAt: now}))

	all, err := store.ListWeights(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "geography", all[0].Dimension)

	w, err = store.GetWeight(ctx, "stage")
	require.NoError(t, err)
	assert.InDelta(t, 1.1, w.Weight, 1e-9)
}

func TestMemoryEmbeddings_NearestUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEmbeddings()

	put := func(user string, kind models.EmbeddingKind, vec []float32) {
		_, err := store.StoreEmbedding(ctx, &models.Embedding{UserID: user, Kind: kind, Vector: vec}, 0)
		require.NoError(t, err)
	}

	put("me", models.KindRequirements, []float32{1, 0})
	put("me", models.KindOfferings, []float32{1, 0})
	put("close", models.KindOfferings, []float32{1, 0.1})
	put("mid", models.KindOfferings, []float32{1, 1})
	put("far", models.KindOfferings, []float32{0, 1})
	put("req-only", models.KindRequirements, []float32{1, 0})

	got, err := store.NearestUsers(ctx, "me", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "close", got[0].UserID)
	assert.Equal(t, "mid", got[1].UserID)
	assert.Greater(t, got[0].Score, got[1].Score)

	limited, err := store.NearestUsers(ctx, "me", 1, 0)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "close", limited[0].UserID)

	none, err := store.NearestUsers(ctx, "nobody", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
