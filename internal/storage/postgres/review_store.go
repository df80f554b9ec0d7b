// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curator/metadata-resolver/internal/resolver"
	"github.com/curator/metadata-resolver/internal/review"
)

// ReviewStoreConfig controls the Postgres connection pool for review records.
type ReviewStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// ReviewStore persists review records in Postgres.
type ReviewStore struct {
	pool pgxPool
}

// NewReviewStore creates a Postgres-backed ReviewStore using the provided config.
func NewReviewStore(ctx context.Context, cfg ReviewStoreConfig) (*ReviewStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ReviewStore{pool: pool}, nil
}

// NewReviewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReviewStoreWithPool(pool pgxPool) (*ReviewStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ReviewStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ReviewStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Insert stores a new review record.
func (s *ReviewStore) Insert(ctx context.Context, rec review.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := `
INSERT INTO review_records (
	id,
	url,
	domain,
	title,
	published_date,
	confidence,
	method,
	needs_review,
	notes,
	priority,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`

	var published *time.Time
	if !rec.PublishedDate.IsZero() {
		published = &rec.PublishedDate
	}
	args := []any{
		rec.ID,
		rec.URL,
		rec.Domain,
		rec.Title,
		published,
		rec.Confidence,
		string(rec.Method),
		rec.NeedsReview,
		rec.Notes,
		string(rec.Priority),
		rec.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert review record: %w", err)
	}
	return nil
}

// ListPending returns standing review items ordered by priority then age.
// limit <= 0 returns everything.
func (s *ReviewStore) ListPending(ctx context.Context, limit int) ([]review.Record, error) {
	query := `
SELECT id, url, domain, title, published_date, confidence, method, needs_review, notes, priority, created_at
FROM review_records
WHERE needs_review
ORDER BY
	CASE priority
		WHEN 'critical' THEN 0
		WHEN 'high' THEN 1
		WHEN 'standard' THEN 2
		ELSE 3
	END,
	created_at ASC`
	args := []any{}
	if limit > 0 {
		query += `
LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending reviews: %w", err)
	}
	defer rows.Close()

	var records []review.Record
	for rows.Next() {
		var (
			rec       review.Record
			published *time.Time
			method    string
			priority  string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.URL,
			&rec.Domain,
			&rec.Title,
			&published,
			&rec.Confidence,
			&method,
			&rec.NeedsReview,
			&rec.Notes,
			&priority,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review record: %w", err)
		}
		if published != nil {
			rec.PublishedDate = *published
		}
		rec.Method = resolver.Method(method)
		rec.Priority = review.Priority(priority)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review records: %w", err)
	}
	return records, nil
}

// MarkReviewed clears the review flag and optionally overrides the published
// date with the human-supplied correction.
func (s *ReviewStore) MarkReviewed(ctx context.Context, id, reviewer string, correctedDate *time.Time) error {
	if id == "" {
		return fmt.Errorf("record id is required")
	}
	if reviewer == "" {
		return fmt.Errorf("reviewer is required")
	}
	query := `
UPDATE review_records
SET needs_review = FALSE,
	reviewed_by = $1,
	reviewed_at = NOW(),
	corrected_date = $2,
	published_date = COALESCE($2, published_date)
WHERE id = $3`
	tag, err := s.pool.Exec(ctx, query, reviewer, correctedDate, id)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review record %s not found", id)
	}
	return nil
}
