// Package orchestrator runs registered sources across a bounded worker
// pool, isolates their failures, and merges their output.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/harvest"
	"github.com/arcadehq/listing-harvester/internal/queue/memory"
	"github.com/arcadehq/listing-harvester/internal/telemetry"
)

// Config controls the orchestrator pool.
type Config struct {
	Workers       int
	SourceTimeout time.Duration
}

// Results carries the merged output of one run. Records follow source
// registration order, sub-ordered by each source's own discovery order,
// so runs are reproducible given the same source content.
type Results struct {
	Records []harvest.GameRecord
	Stats   map[string]harvest.SourceStats
}

// Orchestrator schedules sources onto workers and collects records.
type Orchestrator struct {
	cfg    Config
	engine harvest.FetchEngine
	clock  harvest.Clock
	logger *zap.Logger

	mu      sync.Mutex
	sources []harvest.Source
}

// New constructs an Orchestrator.
func New(cfg Config, engine harvest.FetchEngine, clock harvest.Clock, logger *zap.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		engine: engine,
		clock:  clock,
		logger: logger,
	}
}

// Register adds a source to the run. Registration order fixes the merge
// order of the final record collection.
func (o *Orchestrator) Register(src harvest.Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources = append(o.sources, src)
}

// Sources returns the registered sources in registration order.
func (o *Orchestrator) Sources() []harvest.Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]harvest.Source, len(o.sources))
	copy(out, o.sources)
	return out
}

// Run executes every registered source and returns the merged records
// with per-source statistics. One source failing, panicking, or timing
// out never affects its siblings. On cancellation Run still returns
// everything collected so far alongside the context error.
func (o *Orchestrator) Run(ctx context.Context) (Results, error) {
	sources := o.Sources()
	results := Results{Stats: make(map[string]harvest.SourceStats, len(sources))}
	if len(sources) == 0 {
		return results, nil
	}

	queue := memory.NewQueue(len(sources))
	collectors := make([]*collector, len(sources))
	stats := make([]harvest.SourceStats, len(sources))
	for i, src := range sources {
		collectors[i] = newCollector(o.clock)
		stats[i] = harvest.SourceStats{Outcome: harvest.SourceFailed, Err: "never scheduled"}
		if err := queue.Enqueue(ctx, harvest.QueueItem{Index: i, Source: src}); err != nil {
			queue.Close()
			return results, fmt.Errorf("enqueue %s: %w", src.Name(), err)
		}
	}
	queue.Close()

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.workLoop(ctx, queue, collectors, stats)
		}()
	}
	wg.Wait()

	for i, src := range sources {
		collectors[i].seal()
		records, skipped := collectors[i].snapshot()
		st := stats[i]
		st.Count = len(records)
		st.Skipped = skipped
		results.Records = append(results.Records, records...)
		results.Stats[src.Name()] = st
		telemetry.AddRecords(src.Name(), len(records))
	}
	return results, ctx.Err()
}

func (o *Orchestrator) workLoop(ctx context.Context, queue harvest.Queue, collectors []*collector, stats []harvest.SourceStats) {
	for {
		item, err := queue.Dequeue(ctx)
		if err != nil {
			return
		}
		telemetry.IncActiveWorkers()
		stats[item.Index] = o.runSource(ctx, item, collectors[item.Index])
		telemetry.DecActiveWorkers()
	}
}

// runSource executes one source under its own deadline. The source body
// runs on a separate goroutine so a stuck source is abandoned at the
// deadline instead of blocking its worker slot; its collector is sealed
// at that moment so late emissions are rejected.
func (o *Orchestrator) runSource(ctx context.Context, item harvest.QueueItem, col *collector) harvest.SourceStats {
	name := item.Source.Name()
	o.logger.Info("source started", zap.String("source", name))
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("source panicked: %v", r)
			}
		}()
		done <- item.Source.Run(jobCtx, o.engine, col.emit)
	}()

	var st harvest.SourceStats
	select {
	case err := <-done:
		st = classify(err)
	case <-jobCtx.Done():
		col.seal()
		st = classify(jobCtx.Err())
	}
	col.seal()
	st.DurationMs = time.Since(start).Milliseconds()

	records, skipped := col.snapshot()
	telemetry.ObserveSourceRun(string(st.Outcome))
	o.logger.Info("source finished",
		zap.String("source", name),
		zap.String("outcome", string(st.Outcome)),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
		zap.Duration("duration", time.Since(start)),
	)
	if st.Err != "" {
		o.logger.Warn("source did not complete", zap.String("source", name), zap.String("error", st.Err))
	}
	return st
}

func classify(err error) harvest.SourceStats {
	switch {
	case err == nil:
		return harvest.SourceStats{Outcome: harvest.SourceCompleted}
	case errors.Is(err, context.DeadlineExceeded):
		return harvest.SourceStats{Outcome: harvest.SourceTimedOut, Err: "deadline exceeded"}
	case errors.Is(err, context.Canceled):
		return harvest.SourceStats{Outcome: harvest.SourceFailed, Err: "run canceled"}
	default:
		return harvest.SourceStats{Outcome: harvest.SourceFailed, Err: err.Error()}
	}
}
