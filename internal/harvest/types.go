// Package harvest defines core types shared across subsystems.
package harvest

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects the retrieval path for one fetch attempt.
type Strategy string

// Fetch strategies, ordered roughly by cost.
const (
	StrategyPlain    Strategy = "plain"
	StrategyRendered Strategy = "rendered"
	StrategyBypass   Strategy = "bypass"
)

// ParseStrategy maps a config string onto a Strategy value.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyPlain:
		return StrategyPlain, nil
	case StrategyRendered:
		return StrategyRendered, nil
	case StrategyBypass:
		return StrategyBypass, nil
	default:
		return "", fmt.Errorf("unknown fetch strategy %q", raw)
	}
}

// Identity is one egress identity: a user agent plus an optional proxy route.
// Pool-owned and immutable after loading.
type Identity struct {
	UserAgent string
	ProxyURL  string
	Label     string
}

// Direct reports whether the identity routes straight to the target.
func (id Identity) Direct() bool {
	return id.ProxyURL == ""
}

// Request captures everything needed for one retrieval attempt.
type Request struct {
	URL      string
	Strategy Strategy
	Timeout  time.Duration
}

// OutcomeKind tags the result of one retrieval attempt.
type OutcomeKind string

// Outcome kinds. Callers must branch on the kind; only Success carries
// usable content.
const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeBlocked        OutcomeKind = "blocked"
	OutcomeTransportError OutcomeKind = "transport_error"
	OutcomeTimeout        OutcomeKind = "timeout"
)

// Outcome is the tagged result of one fetch. A Blocked outcome means an
// anti-automation defense answered, even if the transport reported 200.
type Outcome struct {
	Kind        OutcomeKind
	URL         string
	FinalURL    string
	StatusCode  int
	Body        []byte
	Identity    Identity
	BlockReason string
	Err         error
	Duration    time.Duration
}

// OK reports whether the outcome carries usable content.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Record length caps applied during normalization.
const (
	maxNameLen        = 300
	maxDescriptionLen = 1000
)

// GameRecord is one normalized listing entry. Records are created by a
// source during a single run and never mutated afterwards.
type GameRecord struct {
	Name           string    `json:"name"`
	SourceURL      string    `json:"source_url"`
	SourceName     string    `json:"source_name"`
	EmbedReference string    `json:"embed_reference,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category,omitempty"`
	Tags           []string  `json:"tags"`
	CollectedAt    time.Time `json:"date_scraped"`
}

// Normalize trims and caps the free-text fields, guarantees a non-nil tag
// slice, and stamps CollectedAt when unset. It returns the cleaned copy.
func (g GameRecord) Normalize(now time.Time) GameRecord {
	g.Name = truncate(strings.TrimSpace(g.Name), maxNameLen)
	g.SourceURL = strings.TrimSpace(g.SourceURL)
	g.Description = truncate(strings.TrimSpace(g.Description), maxDescriptionLen)
	g.Category = strings.TrimSpace(g.Category)
	if g.Tags == nil {
		g.Tags = []string{}
	}
	if g.CollectedAt.IsZero() {
		g.CollectedAt = now.UTC()
	}
	return g
}

// Valid reports whether the record can be retained. Name and SourceURL must
// never both be empty.
func (g GameRecord) Valid() bool {
	return g.Name != "" || g.SourceURL != ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// SourceOutcome classifies how a source's run ended.
type SourceOutcome string

// Source run outcomes recorded in per-source statistics.
const (
	SourceCompleted SourceOutcome = "completed"
	SourceTimedOut  SourceOutcome = "timed-out"
	SourceFailed    SourceOutcome = "failed"
)

// SourceStats captures what one source contributed to a run. Finalized when
// the source's worker slot frees and read-only afterwards.
type SourceStats struct {
	Count      int           `json:"count"`
	Skipped    int           `json:"skipped,omitempty"`
	Outcome    SourceOutcome `json:"outcome"`
	DurationMs int64         `json:"duration_ms"`
	Err        string        `json:"error,omitempty"`
}

// QueueItem wraps one registered source ready to run. Index preserves
// registration order for the deterministic merge.
type QueueItem struct {
	Index  int
	Source Source
}
