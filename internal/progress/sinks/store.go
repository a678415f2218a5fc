package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/progress"
	"github.com/arcadehq/listing-harvester/internal/store"
)

// StoreSink persists progress deltas via a store.RunRepository. Run and source
// milestones are written directly; per-site fetch counters are collapsed per
// batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards milestones and collapsed fetch deltas to the repository. It
// respects ctx deadlines and returns any repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*fetchDelta)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StageSourceDone:
			if err := s.handleSourceDone(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StageFetchDone:
			recordFetchDelta(stats, runID, evt)
		}
	}

	for key, delta := range stats {
		if delta.fetches == 0 && delta.bytes == 0 {
			continue
		}
		if err := s.repo.UpsertFetchStats(
			ctx,
			key.runID,
			key.site,
			delta.fetches,
			delta.bytes,
			key.outcome,
			delta.at,
		); err != nil {
			return fmt.Errorf("upsert fetch stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.StartRun(ctx, runID, evt.TS); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	case progress.StageRunDone:
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageRunError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunError, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleSourceDone(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	if evt.Source == "" {
		return nil
	}
	err := s.repo.UpsertSourceResult(ctx, store.SourceResult{
		RunID:      runID,
		Source:     evt.Source,
		Outcome:    evt.Outcome,
		Records:    evt.Records,
		Skipped:    evt.Skipped,
		DurationMs: evt.Dur.Milliseconds(),
		UpdatedAt:  evt.TS,
	})
	if err != nil {
		return fmt.Errorf("upsert source result: %w", err)
	}
	return nil
}

func recordFetchDelta(stats map[statsKey]*fetchDelta, runID uuid.UUID, evt progress.Event) {
	if evt.Site == "" {
		return
	}
	key := statsKey{
		runID:   runID,
		site:    evt.Site,
		outcome: evt.Outcome,
	}
	stat := stats[key]
	if stat == nil {
		stat = &fetchDelta{}
		stats[key] = stat
	}
	stat.fetches++
	stat.bytes += evt.Bytes
	if evt.TS.After(stat.at) || stat.at.IsZero() {
		stat.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	runID   uuid.UUID
	site    string
	outcome string
}

type fetchDelta struct {
	fetches int64
	bytes   int64
	at      time.Time
}
