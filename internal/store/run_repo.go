package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one harvest invocation for API responses.
type Run struct {
	// ID is the run identifier shared with progress events.
	ID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// SourceResult captures the final tally for one source within a run.
type SourceResult struct {
	// RunID is the owning run.
	RunID uuid.UUID
	// Source is the configured source name.
	Source string
	// Outcome is completed/timed-out/failed.
	Outcome string
	// Records counts accepted records.
	Records int64
	// Skipped counts records dropped during validation.
	Skipped int64
	// DurationMs is the wall-clock runtime of the source.
	DurationMs int64
	// UpdatedAt captures when the row was last written.
	UpdatedAt time.Time
}

// FetchStats aggregates fetch outcomes per (run, site).
type FetchStats struct {
	// RunID is the owning run.
	RunID uuid.UUID
	// Site is the normalized host label (e.g., example.com).
	Site string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Fetches counts all attempts for the site.
	Fetches int64
	// BytesTotal accumulates response bytes.
	BytesTotal int64
	// Per-outcome counts for diagnostics.
	Success         int64
	Blocked         int64
	TransportErrors int64
	Timeouts        int64
}

// RunRepository persists incremental harvest progress.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) the started_at timestamp.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertSourceResult records or replaces the tally for (run, source).
	UpsertSourceResult(ctx context.Context, res SourceResult) error
	// UpsertFetchStats applies fetch/byte deltas per (run, site, outcome).
	UpsertFetchStats(
		ctx context.Context,
		runID uuid.UUID,
		site string,
		deltaFetches int64,
		deltaBytes int64,
		outcome string,
		at time.Time,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSources returns per-source tallies for one run.
	ListRunSources(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SourceResult, error)
	// ListRunSites returns aggregated fetch stats for one run.
	ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]FetchStats, error)
}
