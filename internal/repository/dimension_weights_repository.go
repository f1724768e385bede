package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reciprocity/matchloop/internal/models"
)

// DimensionWeightsRepository handles data access for the dimension_weights table.
type DimensionWeightsRepository struct {
	db *pgxpool.Pool
}

// NewDimensionWeightsRepository creates a new dimension weights repository.
func NewDimensionWeightsRepository(db *pgxpool.Pool) *DimensionWeightsRepository {
	return &DimensionWeightsRepository{db: db}
}

// GetWeight returns the weight row for dimension, or nil when none has been stored yet.
func (r *DimensionWeightsRepository) GetWeight(ctx context.Context, dimension string) (*models.DimensionWeight, error) {
	var w models.DimensionWeight

	err := r.db.QueryRow(ctx, `
		SELECT dimension, weight, updated_at, last_applied_at
		FROM dimension_weights WHERE dimension = $1`, dimension,
	).Scan(&w.Dimension, &w.Weight, &w.UpdatedAt, &w.LastAppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // absent weight means default weight
		}

		return nil, fmt.Errorf("get dimension weight: %w", err)
	}

	return &w, nil
}

// ListWeights returns all stored weights ordered by dimension.
func (r *DimensionWeightsRepository) ListWeights(ctx context.Context) ([]models.DimensionWeight, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dimension, weight, updated_at, last_applied_at
		FROM dimension_weights ORDER BY dimension`)
	if err != nil {
		return nil, fmt.Errorf("list dimension weights: %w", err)
	}

	weights, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.DimensionWeight])
	if err != nil {
		return nil, fmt.Errorf("scan dimension weights: %w", err)
	}

	return weights, nil
}

// SaveWeight upserts w.
func (r *DimensionWeightsRepository) SaveWeight(ctx context.Context, w *models.DimensionWeight) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO dimension_weights (dimension, weight, updated_at, last_applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (dimension)
		DO UPDATE SET weight = EXCLUDED.weight, updated_at = EXCLUDED.updated_at,
			last_applied_at = EXCLUDED.last_applied_at`,
		w.Dimension, w.Weight, w.UpdatedAt, w.LastAppliedAt,
	)
	if err != nil {
		return fmt.Errorf("save dimension weight: %w", err)
	}

	return nil
}
