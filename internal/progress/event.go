// Package progress defines the event structures emitted during a harvest run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceDone  Stage = "SOURCE_DONE"
	StageFetchDone   Stage = "FETCH_DONE"
	StageItemFound   Stage = "ITEM_FOUND"
)

// Event captures a single milestone of harvest progress.
type Event struct {
	// RunID identifies the harvest run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle, source, or fetch milestone occurred.
	Stage Stage
	// Source names the configured source for SOURCE_* events.
	Source string
	// Site scopes fetch events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// Outcome carries the fetch outcome (success, blocked, ...) for
	// FETCH_DONE and the source outcome (completed, timed-out, failed)
	// for SOURCE_DONE.
	Outcome string
	// Records counts accepted records for SOURCE_DONE events.
	Records int64
	// Skipped counts records dropped during validation.
	Skipped int64
	// Bytes carries the response size for the fetch.
	Bytes int64
	// Dur captures execution latency for fetches, sources, and runs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceStart:
		if e.Source == "" {
			return errors.New("source start requires source")
		}
	case StageSourceDone:
		if e.Source == "" {
			return errors.New("source done requires source")
		}
		if e.Outcome == "" {
			return errors.New("source done requires outcome")
		}
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.Outcome == "" {
			return errors.New("fetch done requires outcome")
		}
	case StageItemFound:
		if e.Source == "" {
			return errors.New("item found requires source")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
