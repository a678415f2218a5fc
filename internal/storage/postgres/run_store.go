// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcadehq/listing-harvester/internal/store"
)

type runQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore implements the store.RunRepository interface using Postgres.
type RunStore struct {
	pool runQuerier
}

// NewRunStore creates a new RunStore.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool runQuerier) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts or updates a run's start time.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO harvest_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE harvest_runs.status <> EXCLUDED.status;
	`
	_, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// UpsertSourceResult records or replaces the tally for one source in a run.
func (s *RunStore) UpsertSourceResult(ctx context.Context, res store.SourceResult) error {
	query := `
		INSERT INTO source_stats (run_id, source, outcome, records, skipped, duration_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, source) DO UPDATE
		SET outcome = EXCLUDED.outcome,
			records = EXCLUDED.records,
			skipped = EXCLUDED.skipped,
			duration_ms = EXCLUDED.duration_ms,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		res.RunID,
		res.Source,
		res.Outcome,
		res.Records,
		res.Skipped,
		res.DurationMs,
		res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source result: %w", err)
	}
	return nil
}

// UpsertFetchStats updates the fetch statistics for a given site within a run.
func (s *RunStore) UpsertFetchStats(
	ctx context.Context,
	runID uuid.UUID,
	site string,
	deltaFetches,
	deltaBytes int64,
	outcome string,
	at time.Time,
) error {
	var query string
	switch outcome {
	case "success":
		query = `UPDATE site_stats SET fetches = fetches + $1,
			bytes_total = bytes_total + $2,
			success = success + $1,
			last_update = $3
			WHERE run_id = $4 AND site = $5;`
	case "blocked":
		query = `UPDATE site_stats SET fetches = fetches + $1,
			bytes_total = bytes_total + $2,
			blocked = blocked + $1,
			last_update = $3
			WHERE run_id = $4 AND site = $5;`
	case "transport_error":
		query = `UPDATE site_stats SET fetches = fetches + $1,
			bytes_total = bytes_total + $2,
			transport_errors = transport_errors + $1,
			last_update = $3
			WHERE run_id = $4 AND site = $5;`
	case "timeout":
		query = `UPDATE site_stats SET fetches = fetches + $1,
			bytes_total = bytes_total + $2,
			timeouts = timeouts + $1,
			last_update = $3
			WHERE run_id = $4 AND site = $5;`
	default:
		return fmt.Errorf("unknown fetch outcome: %s", outcome)
	}

	res, err := s.pool.Exec(ctx, query, deltaFetches, deltaBytes, at, runID, site)
	if err != nil {
		return fmt.Errorf("failed to update fetch stats: %w", err)
	}
	if res.RowsAffected() == 0 {
		var success, blocked, transportErrors, timeouts int64
		switch outcome {
		case "success":
			success = deltaFetches
		case "blocked":
			blocked = deltaFetches
		case "transport_error":
			transportErrors = deltaFetches
		case "timeout":
			timeouts = deltaFetches
		}

		query = `
			INSERT INTO site_stats (run_id, site, last_update, fetches, bytes_total, success, blocked, transport_errors, timeouts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, site) DO NOTHING;
		`
		_, err = s.pool.Exec(
			ctx,
			query,
			runID,
			site,
			at,
			deltaFetches,
			deltaBytes,
			success,
			blocked,
			transportErrors,
			timeouts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fetch stats: %w", err)
		}
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM harvest_runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves a list of runs, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM harvest_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListRunSources retrieves per-source tallies for a given run.
func (s *RunStore) ListRunSources(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.SourceResult, error) {
	query := `
		SELECT run_id, source, outcome, records, skipped, duration_ms, updated_at
		FROM source_stats
		WHERE run_id = $1
		ORDER BY source
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run sources: %w", err)
	}
	defer rows.Close()

	var results []store.SourceResult
	for rows.Next() {
		var res store.SourceResult
		err := rows.Scan(
			&res.RunID,
			&res.Source,
			&res.Outcome,
			&res.Records,
			&res.Skipped,
			&res.DurationMs,
			&res.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source result row: %w", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ListRunSites retrieves aggregated fetch statistics for a given run.
func (s *RunStore) ListRunSites(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.FetchStats, error) {
	query := `
		SELECT run_id, site, last_update, fetches, bytes_total, success, blocked, transport_errors, timeouts
		FROM site_stats
		WHERE run_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run sites: %w", err)
	}
	defer rows.Close()

	var stats []store.FetchStats
	for rows.Next() {
		var stat store.FetchStats
		err := rows.Scan(
			&stat.RunID,
			&stat.Site,
			&stat.LastUpdate,
			&stat.Fetches,
			&stat.BytesTotal,
			&stat.Success,
			&stat.Blocked,
			&stat.TransportErrors,
			&stat.Timeouts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fetch stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
