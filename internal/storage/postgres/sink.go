// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/growthsignal/leadscout/internal/leadgen"
)

// SinkConfig controls the Postgres connection pool used for run output.
type SinkConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool used here; pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Sink persists lead sets and error records into Postgres. One batch row is
// written per push so an intentionally empty lead set is distinguishable
// from a run that never produced output.
type Sink struct {
	pool pool
}

// NewSink creates a Postgres-backed Sink using the provided config.
func NewSink(ctx context.Context, cfg SinkConfig) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Sink{pool: p}, nil
}

// NewSinkWithPool constructs a Sink from an existing pool (primarily for testing).
func NewSinkWithPool(p pool) (*Sink, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Sink{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const insertBatchSQL = `
INSERT INTO lead_batches (run_id, lead_count, pushed_at)
VALUES ($1, $2, $3)`

const insertLeadSQL = `
INSERT INTO leads (
	run_id,
	position,
	name,
	sector,
	keyword,
	city,
	phone,
	email,
	website,
	address,
	rating,
	review_count,
	maps_url,
	category,
	search_query
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)`

// PushLeads writes the batch marker and one row per lead, in order.
func (s *Sink) PushLeads(ctx context.Context, runID string, leads []leadgen.Lead) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if _, err := s.pool.Exec(ctx, insertBatchSQL, runID, len(leads), time.Now().UTC()); err != nil {
		return fmt.Errorf("insert lead batch: %w", err)
	}
	for i, lead := range leads {
		args := []any{
			runID,
			i,
			lead.Name,
			lead.Sector,
			lead.Keyword,
			lead.City,
			lead.Phone,
			lead.Email,
			lead.Website,
			lead.Address,
			lead.Rating,
			lead.ReviewCount,
			lead.MapsURL,
			lead.Category,
			lead.SearchQuery,
		}
		if _, err := s.pool.Exec(ctx, insertLeadSQL, args...); err != nil {
			return fmt.Errorf("insert lead %d: %w", i, err)
		}
	}
	return nil
}

const insertErrorSQL = `
INSERT INTO run_errors (run_id, stage, message, occurred_at)
VALUES ($1, $2, $3, $4)`

// PushError writes the structured error record for a failed run.
func (s *Sink) PushError(ctx context.Context, runErr leadgen.RunError) error {
	if runErr.RunID == "" {
		return errors.New("run id is required")
	}
	_, err := s.pool.Exec(ctx, insertErrorSQL,
		runErr.RunID, runErr.Stage, runErr.Message, runErr.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert run error: %w", err)
	}
	return nil
}

const selectBatchSQL = `
SELECT lead_count FROM lead_batches WHERE run_id = $1`

const selectLeadsSQL = `
SELECT name, sector, keyword, city, phone, email, website, address,
	rating, review_count, maps_url, category, search_query
FROM leads WHERE run_id = $1 ORDER BY position`

// Leads returns the pushed lead set for a run, preserving push order.
func (s *Sink) Leads(ctx context.Context, runID string) ([]leadgen.Lead, bool, error) {
	batchRows, err := s.pool.Query(ctx, selectBatchSQL, runID)
	if err != nil {
		return nil, false, fmt.Errorf("query lead batch: %w", err)
	}
	var count int
	found := false
	for batchRows.Next() {
		if err := batchRows.Scan(&count); err != nil {
			batchRows.Close()
			return nil, false, fmt.Errorf("scan lead batch: %w", err)
		}
		found = true
	}
	batchRows.Close()
	if err := batchRows.Err(); err != nil {
		return nil, false, fmt.Errorf("read lead batch: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	rows, err := s.pool.Query(ctx, selectLeadsSQL, runID)
	if err != nil {
		return nil, false, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := make([]leadgen.Lead, 0, count)
	for rows.Next() {
		var l leadgen.Lead
		if err := rows.Scan(
			&l.Name, &l.Sector, &l.Keyword, &l.City, &l.Phone, &l.Email,
			&l.Website, &l.Address, &l.Rating, &l.ReviewCount, &l.MapsURL,
			&l.Category, &l.SearchQuery,
		); err != nil {
			return nil, false, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("read leads: %w", err)
	}
	return leads, true, nil
}

const selectErrorSQL = `
SELECT stage, message, occurred_at FROM run_errors WHERE run_id = $1`

// Error returns the pushed error record for a run, if any.
func (s *Sink) Error(ctx context.Context, runID string) (leadgen.RunError, bool, error) {
	rows, err := s.pool.Query(ctx, selectErrorSQL, runID)
	if err != nil {
		return leadgen.RunError{}, false, fmt.Errorf("query run error: %w", err)
	}
	defer rows.Close()

	runErr := leadgen.RunError{RunID: runID}
	found := false
	for rows.Next() {
		if err := rows.Scan(&runErr.Stage, &runErr.Message, &runErr.OccurredAt); err != nil {
			return leadgen.RunError{}, false, fmt.Errorf("scan run error: %w", err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return leadgen.RunError{}, false, fmt.Errorf("read run error: %w", err)
	}
	if !found {
		return leadgen.RunError{}, false, nil
	}
	return runErr, true, nil
}
