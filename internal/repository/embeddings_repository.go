package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/reciprocity/matchloop/internal/apperrors"
	"github.com/reciprocity/matchloop/internal/models"
	"github.com/reciprocity/matchloop/pkg/embeddings"
)

// EmbeddingsRepository handles data access for the user_embeddings table.
type EmbeddingsRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingsRepository creates a new embeddings repository.
func NewEmbeddingsRepository(db *pgxpool.Pool) *EmbeddingsRepository {
	return &EmbeddingsRepository{db: db}
}

// GetEmbedding returns the stored embedding for (userID, kind).
// Returns an apperrors.NotFoundError when the user has no vector of that kind.
func (r *EmbeddingsRepository) GetEmbedding(
	ctx context.Context, userID string, kind models.EmbeddingKind,
) (*models.Embedding, error) {
	var (
		emb models.Embedding
		vec pgvector.Vector
	)

	err := r.db.QueryRow(ctx, `
		SELECT user_id, kind, embedding, metadata, version, updated_at
		FROM user_embeddings
		WHERE user_id = $1 AND kind = $2`,
		userID, string(kind),
	).Scan(&emb.UserID, &emb.Kind, &vec, &emb.Metadata, &emb.Version, &emb.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("embedding", fmt.Sprintf("no %s embedding for user %s", kind, userID))
		}

		var scanErr pgx.ScanArgError
		if errors.As(err, &scanErr) {
			return nil, fmt.Errorf("get embedding: %w: %w", embeddings.ErrMalformedVector, err)
		}

		return nil, fmt.Errorf("get embedding: %w", err)
	}

	emb.Vector = vec.Slice()

	if err := embeddings.Validate(emb.Vector); err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}

	return &emb, nil
}

// StoreEmbedding replaces the vector for (emb.UserID, emb.Kind) if its version is still
// expectedVersion, and returns the new version. expectedVersion 0 inserts a new row.
// A concurrent writer that got there first yields an apperrors.ConflictError.
func (r *EmbeddingsRepository) StoreEmbedding(
	ctx context.Context, emb *models.Embedding, expectedVersion int64,
) (int64, error) {
	vec := pgvector.NewVector(emb.Vector)
	now := time.Now().UTC()

	var (
		newVersion int64
		err        error
	)

	if expectedVersion == 0 {
		err = r.db.QueryRow(ctx, `
			INSERT INTO user_embeddings (user_id, kind, embedding, metadata, version, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5)
			ON CONFLICT (user_id, kind) DO NOTHING
			RETURNING version`,
			emb.UserID, string(emb.Kind), vec, emb.Metadata, now,
		).Scan(&newVersion)
	} else {
		err = r.db.QueryRow(ctx, `
			UPDATE user_embeddings
			SET embedding = $3, metadata = $4, version = version + 1, updated_at = $5
			WHERE user_id = $1 AND kind = $2 AND version = $6
			RETURNING version`,
			emb.UserID, string(emb.Kind), vec, emb.Metadata, now, expectedVersion,
		).Scan(&newVersion)
	}

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NewConflictError(
				fmt.Sprintf("%s embedding for user %s changed since version %d", emb.Kind, emb.UserID, expectedVersion))
		}

		return 0, fmt.Errorf("store embedding: %w", err)
	}

	return newVersion, nil
}

// NearestUsers returns other users whose offerings vector is closest to userID's requirements
// vector. Scores are cosine similarity (1 - cosine distance); rows below minScore are dropped.
func (r *EmbeddingsRepository) NearestUsers(
	ctx context.Context, userID string, limit int, minScore float64,
) ([]models.MatchCandidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT o.user_id, (1 - (o.embedding <=> q.embedding)) AS score
		FROM user_embeddings q
		INNER JOIN user_embeddings o ON o.kind = 'offerings' AND o.user_id <> q.user_id
		WHERE q.user_id = $1 AND q.kind = 'requirements'
		  AND (1 - (o.embedding <=> q.embedding)) >= $2
		ORDER BY o.embedding <=> q.embedding
		LIMIT $3`, userID, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest users: %w", err)
	}
	defer rows.Close()

	results := []models.MatchCandidate{}

	for rows.Next() {
		var c models.MatchCandidate
		if err := rows.Scan(&c.UserID, &c.Score); err != nil {
			return nil, fmt.Errorf("scan match candidate: %w", err)
		}

		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest users: %w", err)
	}

	return results, nil
}
