package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arcadehq/listing-harvester/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	rs := NewRunStore()
	ctx := context.Background()
	runID := uuid.New()
	started := time.Now().UTC()

	if err := rs.StartRun(ctx, runID, started); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if err := rs.StartRun(ctx, runID, started.Add(time.Hour)); err != nil {
		t.Fatalf("repeat StartRun() error = %v", err)
	}
	run, err := rs.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if !run.StartedAt.Equal(started) {
		t.Fatalf("expected original start time to survive, got %v", run.StartedAt)
	}

	if err := rs.UpsertSourceResult(ctx, store.SourceResult{
		RunID:   runID,
		Source:  "arcade-index",
		Outcome: "completed",
		Records: 12,
	}); err != nil {
		t.Fatalf("UpsertSourceResult() error = %v", err)
	}
	if err := rs.UpsertFetchStats(ctx, runID, "games.example", 3, 900, "success", started.Add(time.Second)); err != nil {
		t.Fatalf("UpsertFetchStats() error = %v", err)
	}
	if err := rs.UpsertFetchStats(ctx, runID, "games.example", 1, 0, "timeout", started.Add(2*time.Second)); err != nil {
		t.Fatalf("UpsertFetchStats() timeout error = %v", err)
	}

	finished := started.Add(time.Minute)
	if err := rs.CompleteRun(ctx, runID, finished, store.RunSuccess, nil); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}

	run, err = rs.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun() after complete error = %v", err)
	}
	if run.Status != store.RunSuccess || run.FinishedAt == nil {
		t.Fatalf("expected finished run, got %+v", run)
	}

	sources, err := rs.ListRunSources(ctx, runID, 10, 0)
	if err != nil || len(sources) != 1 || sources[0].Records != 12 {
		t.Fatalf("ListRunSources() unexpected result: %v err=%v", sources, err)
	}

	sites, err := rs.ListRunSites(ctx, runID, 10, 0)
	if err != nil || len(sites) != 1 {
		t.Fatalf("ListRunSites() unexpected result: %v err=%v", sites, err)
	}
	stat := sites[0]
	if stat.Fetches != 4 || stat.Success != 3 || stat.Timeouts != 1 || stat.BytesTotal != 900 {
		t.Fatalf("unexpected aggregate %+v", stat)
	}
}

func TestRunStoreListRunsFiltersAndPages(t *testing.T) {
	t.Parallel()

	rs := NewRunStore()
	ctx := context.Background()
	base := time.Now().UTC()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		if err := rs.StartRun(ctx, ids[i], base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
	}
	if err := rs.CompleteRun(ctx, ids[0], base.Add(time.Hour), store.RunError, nil); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}

	running := store.RunRunning
	runs, err := rs.ListRuns(ctx, &running, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 running runs, got %d", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Fatal("expected newest-first ordering")
	}

	all, err := rs.ListRuns(ctx, nil, 2, 1)
	if err != nil {
		t.Fatalf("ListRuns() paged error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected limit to apply after offset, got %d", len(all))
	}
}

func TestRunStoreNotFound(t *testing.T) {
	t.Parallel()

	rs := NewRunStore()
	if _, err := rs.GetRun(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := rs.CompleteRun(context.Background(), uuid.New(), time.Now(), store.RunSuccess, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on complete, got %v", err)
	}
}

func TestRunStoreRejectsUnknownOutcome(t *testing.T) {
	t.Parallel()

	rs := NewRunStore()
	err := rs.UpsertFetchStats(context.Background(), uuid.New(), "games.example", 1, 0, "banana", time.Now())
	if err == nil {
		t.Fatal("expected unknown outcome error")
	}
}
