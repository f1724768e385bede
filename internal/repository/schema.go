// Package repository provides Postgres and in-memory storage for embeddings,
// feedback records and dimension weights.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL creates the tables used by this service. Statements are idempotent.
// The embedding column has no fixed dimension so persona models can change without a migration.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS user_embeddings (
	user_id    TEXT        NOT NULL,
	kind       TEXT        NOT NULL CHECK (kind IN ('requirements', 'offerings')),
	embedding  vector      NOT NULL,
	metadata   JSONB       NOT NULL DEFAULT '{}'::jsonb,
	version    BIGINT      NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, kind)
);

CREATE TABLE IF NOT EXISTS match_feedback (
	id                UUID PRIMARY KEY,
	user_id           TEXT        NOT NULL,
	match_user_id     TEXT        NOT NULL DEFAULT '',
	feedback_type     TEXT        NOT NULL,
	rating            SMALLINT,
	outcome           TEXT,
	dimension_ratings JSONB,
	free_text         TEXT,
	match_tier        TEXT,
	match_score       DOUBLE PRECISION,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_match_feedback_user_created ON match_feedback (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_match_feedback_created ON match_feedback (created_at);

CREATE TABLE IF NOT EXISTS dimension_weights (
	dimension       TEXT PRIMARY KEY,
	weight          DOUBLE PRECISION NOT NULL,
	updated_at      TIMESTAMPTZ      NOT NULL,
	last_applied_at TIMESTAMPTZ
);
`

// EnsureSchema creates the service tables when they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	return nil
}
