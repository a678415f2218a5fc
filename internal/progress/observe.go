package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// ObserveSource wraps src so that every Run emits SOURCE_START and SOURCE_DONE
// events to em, with an ITEM_FOUND event per kept record, tallying accepted
// and skipped records along the way. The wrapped source is otherwise
// transparent to the orchestrator.
func ObserveSource(src harvest.Source, em Emitter, runID uuid.UUID) harvest.Source {
	return &observedSource{inner: src, em: em, runID: UUIDToBytes(runID)}
}

type observedSource struct {
	inner harvest.Source
	em    Emitter
	runID [16]byte
}

func (s *observedSource) Name() string { return s.inner.Name() }

func (s *observedSource) Run(ctx context.Context, eng harvest.FetchEngine, emit harvest.EmitFunc) error {
	start := time.Now()
	s.em.Emit(Event{
		RunID:  s.runID,
		TS:     start.UTC(),
		Stage:  StageSourceStart,
		Source: s.inner.Name(),
	})

	// Mirror the collector's accounting: accepted emits split into kept and
	// skipped by the same normalize-then-validate rule.
	var records, skipped int64
	counted := func(rec harvest.GameRecord) bool {
		ok := emit(rec)
		if ok {
			if rec.Normalize(time.Now()).Valid() {
				records++
				s.em.Emit(Event{
					RunID:  s.runID,
					TS:     time.Now().UTC(),
					Stage:  StageItemFound,
					Source: s.inner.Name(),
					URL:    rec.SourceURL,
				})
			} else {
				skipped++
			}
		}
		return ok
	}

	err := s.inner.Run(ctx, eng, counted)

	evt := Event{
		RunID:   s.runID,
		TS:      time.Now().UTC(),
		Stage:   StageSourceDone,
		Source:  s.inner.Name(),
		Outcome: string(sourceOutcome(err)),
		Records: records,
		Skipped: skipped,
		Dur:     time.Since(start),
	}
	if err != nil {
		evt.Note = err.Error()
	}
	s.em.Emit(evt)
	return err
}

func sourceOutcome(err error) harvest.SourceOutcome {
	switch {
	case err == nil:
		return harvest.SourceCompleted
	case errors.Is(err, context.DeadlineExceeded):
		return harvest.SourceTimedOut
	default:
		return harvest.SourceFailed
	}
}

// ObserveEngine wraps eng so every fetch emits a FETCH_DONE event carrying the
// site, outcome, and response size.
func ObserveEngine(eng harvest.FetchEngine, em Emitter, runID uuid.UUID) harvest.FetchEngine {
	return &observedEngine{inner: eng, em: em, runID: UUIDToBytes(runID)}
}

type observedEngine struct {
	inner harvest.FetchEngine
	em    Emitter
	runID [16]byte
}

func (e *observedEngine) Fetch(ctx context.Context, req harvest.Request) harvest.Outcome {
	out := e.inner.Fetch(ctx, req)
	e.em.Emit(Event{
		RunID:   e.runID,
		TS:      time.Now().UTC(),
		Stage:   StageFetchDone,
		Site:    harvest.HostOf(req.URL),
		URL:     req.URL,
		Outcome: string(out.Kind),
		Bytes:   int64(len(out.Body)),
		Dur:     out.Duration,
	})
	return out
}
