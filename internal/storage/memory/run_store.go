package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcadehq/listing-harvester/internal/store"
)

// RunStore provides an in-memory store.RunRepository for development and the
// default stats provider when no database is configured.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]store.Run
	sources map[uuid.UUID]map[string]store.SourceResult
	sites   map[uuid.UUID]map[string]store.FetchStats
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:    make(map[uuid.UUID]store.Run),
		sources: make(map[uuid.UUID]map[string]store.SourceResult),
		sites:   make(map[uuid.UUID]map[string]store.FetchStats),
	}
}

// StartRun records the run as running. Repeat calls keep the original start time.
func (s *RunStore) StartRun(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runID]; ok {
		run.Status = store.RunRunning
		s.runs[runID] = run
		return nil
	}
	s.runs[runID] = store.Run{
		ID:        runID,
		StartedAt: startedAt,
		Status:    store.RunRunning,
	}
	return nil
}

// CompleteRun marks the run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// UpsertSourceResult replaces the tally for (run, source).
func (s *RunStore) UpsertSourceResult(_ context.Context, res store.SourceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource := s.sources[res.RunID]
	if bySource == nil {
		bySource = make(map[string]store.SourceResult)
		s.sources[res.RunID] = bySource
	}
	bySource[res.Source] = res
	return nil
}

// UpsertFetchStats applies fetch/byte deltas to the (run, site) aggregate.
func (s *RunStore) UpsertFetchStats(
	_ context.Context,
	runID uuid.UUID,
	site string,
	deltaFetches,
	deltaBytes int64,
	outcome string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySite := s.sites[runID]
	if bySite == nil {
		bySite = make(map[string]store.FetchStats)
		s.sites[runID] = bySite
	}
	stat := bySite[site]
	stat.RunID = runID
	stat.Site = site
	stat.Fetches += deltaFetches
	stat.BytesTotal += deltaBytes
	switch outcome {
	case "success":
		stat.Success += deltaFetches
	case "blocked":
		stat.Blocked += deltaFetches
	case "transport_error":
		stat.TransportErrors += deltaFetches
	case "timeout":
		stat.Timeouts += deltaFetches
	default:
		return fmt.Errorf("unknown fetch outcome: %s", outcome)
	}
	if at.After(stat.LastUpdate) {
		stat.LastUpdate = at
	}
	bySite[site] = stat
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs sorted newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunSources returns per-source tallies sorted by source name.
func (s *RunStore) ListRunSources(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.SourceResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bySource := s.sources[runID]
	results := make([]store.SourceResult, 0, len(bySource))
	for _, res := range bySource {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Source < results[j].Source
	})
	return page(results, limit, offset), nil
}

// ListRunSites returns per-site aggregates, most recently updated first.
func (s *RunStore) ListRunSites(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.FetchStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bySite := s.sites[runID]
	stats := make([]store.FetchStats, 0, len(bySite))
	for _, stat := range bySite {
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].LastUpdate.After(stats[j].LastUpdate)
	})
	return page(stats, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
