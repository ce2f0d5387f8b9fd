// Package postgres provides a PostgreSQL-backed [history.Store].
//
// Class probabilities are stored in a pgvector column so that past
// recommendations with a similar distribution can be found with an HNSW
// cosine-distance index. The pgvector extension must be available in the
// target database; [Migrate] installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, rec)
//	recent, _ := store.Recent(ctx, history.Query{Limit: 10})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/stresslens/pkg/types"
)

// ddlRecommendations returns the DDL with the probability vector dimension
// substituted. The dimension is the number of known stress labels and is
// baked into the column type at schema creation time.
func ddlRecommendations(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS recommendations (
    id                     TEXT              PRIMARY KEY,
    chunk_id               TEXT              NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ       NOT NULL DEFAULT now(),
    label                  TEXT              NOT NULL,
    language               TEXT              NOT NULL,
    tier                   TEXT              NOT NULL,
    model_quality          DOUBLE PRECISION  NOT NULL,
    prediction_confidence  DOUBLE PRECISION  NOT NULL,
    combined_confidence    DOUBLE PRECISION  NOT NULL,
    prefix                 TEXT              NOT NULL DEFAULT '',
    remedies               TEXT[]            NOT NULL,
    additional_info        JSONB             NOT NULL DEFAULT '{}',
    probabilities          vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_recommendations_created_at
    ON recommendations (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_recommendations_label_language
    ON recommendations (label, language);

CREATE INDEX IF NOT EXISTS idx_recommendations_probabilities
    ON recommendations USING hnsw (probabilities vector_cosine_ops);
`, dimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlRecommendations(len(types.Labels))); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
