package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/stresslens/internal/history"
	"github.com/MrWong99/stresslens/internal/stress"
	"github.com/MrWong99/stresslens/pkg/types"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is a PostgreSQL-backed [history.Store]. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool to the database at dsn, registers
// pgvector types on every connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks database connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append implements [history.Store].
func (s *Store) Append(ctx context.Context, rec stress.Recommendation) error {
	const q = `
		INSERT INTO recommendations
		    (id, chunk_id, created_at, label, language, tier,
		     model_quality, prediction_confidence, combined_confidence,
		     prefix, remedies, additional_info, probabilities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	info := rec.AdditionalInfo
	if info == nil {
		info = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.ChunkID,
		rec.Timestamp,
		string(rec.Label),
		string(rec.Language),
		string(rec.Tier),
		rec.ModelQuality,
		rec.PredictionConfidence,
		rec.CombinedConfidence,
		rec.Prefix,
		rec.Remedies,
		info,
		pgvector.NewVector(history.ProbabilityVector(rec.Probabilities)),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return history.ErrDuplicateID
		}
		return fmt.Errorf("history store: append: %w", err)
	}
	return nil
}

const selectColumns = `
		SELECT id, chunk_id, created_at, label, language, tier,
		       model_quality, prediction_confidence, combined_confidence,
		       prefix, remedies, additional_info, probabilities`

// Recent implements [history.Store].
func (s *Store) Recent(ctx context.Context, q history.Query) ([]stress.Recommendation, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if q.Label != "" {
		conditions = append(conditions, "label = "+next(string(q.Label)))
	}
	if q.Language != "" {
		conditions = append(conditions, "language = "+next(string(q.Language)))
	}
	if q.Tier != "" {
		conditions = append(conditions, "tier = "+next(string(q.Tier)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}
	limitArg := next(q.EffectiveLimit())

	query := fmt.Sprintf(`%s
		FROM   recommendations
		%s
		ORDER  BY created_at DESC, id
		LIMIT  %s`, selectColumns, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stress.Recommendation, error) {
		return scanRecommendation(row)
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if recs == nil {
		recs = []stress.Recommendation{}
	}
	return recs, nil
}

// Similar implements [history.Store]. Results are ordered by ascending
// cosine distance.
func (s *Store) Similar(ctx context.Context, probs map[types.Label]float64, k int) ([]history.Match, error) {
	if k <= 0 {
		k = history.DefaultLimit
	}
	query := fmt.Sprintf(`%s,
		       probabilities <=> $1 AS distance
		FROM   recommendations
		WHERE  probabilities IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`, selectColumns)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(history.ProbabilityVector(probs)), k)
	if err != nil {
		return nil, fmt.Errorf("history store: similar: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Match, error) {
		var m history.Match
		rec, err := scanRecommendation(row, &m.Distance)
		m.Recommendation = rec
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if matches == nil {
		matches = []history.Match{}
	}
	return matches, nil
}

// Close implements [history.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecommendation(row pgx.Row, extra ...any) (stress.Recommendation, error) {
	var (
		rec                   stress.Recommendation
		label, language, tier string
		info                  map[string]any
		vec                   pgvector.Vector
	)
	dest := append([]any{
		&rec.ID,
		&rec.ChunkID,
		&rec.Timestamp,
		&label,
		&language,
		&tier,
		&rec.ModelQuality,
		&rec.PredictionConfidence,
		&rec.CombinedConfidence,
		&rec.Prefix,
		&rec.Remedies,
		&info,
		&vec,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return stress.Recommendation{}, err
	}
	rec.Label = types.Label(label)
	rec.Language = types.Language(language)
	rec.Tier = stress.Tier(tier)
	rec.AdditionalInfo = normalizeInfo(info)
	rec.Probabilities = history.ProbabilityMap(vec.Slice())
	return rec, nil
}

// normalizeInfo restores []string values that JSON decoding turned into
// []any.
func normalizeInfo(info map[string]any) map[string]any {
	if len(info) == 0 {
		return nil
	}
	for k, v := range info {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		strs := make([]string, 0, len(list))
		for _, x := range list {
			if s, ok := x.(string); ok {
				strs = append(strs, s)
			}
		}
		info[k] = strs
	}
	return info
}
