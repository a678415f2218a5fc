package harvest

import (
	"context"
	"io"
	"time"
)

// FetchEngine performs one retrieval attempt and classifies the result.
// Implementations never return Go errors across this boundary; failures are
// encoded in the Outcome kind.
type FetchEngine interface {
	Fetch(ctx context.Context, req Request) Outcome
}

// EmitFunc flushes one record to the orchestrator. It returns false once the
// owning collector is sealed (deadline passed or run canceled); sources should
// stop producing when that happens.
type EmitFunc func(rec GameRecord) bool

// Source is the capability contract a site extractor implements. Run emits
// records as it discovers them so partial output survives a timeout.
type Source interface {
	Name() string
	Run(ctx context.Context, eng FetchEngine, emit EmitFunc) error
}

// IdentityPool hands out egress identities. Select never fails; an empty
// pool yields a direct identity.
type IdentityPool interface {
	Select() Identity
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// CatalogStore persists final deduplicated records.
type CatalogStore interface {
	StoreBatch(ctx context.Context, runID string, records []GameRecord) error
	Close()
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for source jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for archive keys and integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
