package orchestrator

import (
	"sync"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// collector accumulates one source's records. Each source owns exactly
// one collector, so emission never contends across sources. Sealing
// rejects late emissions from abandoned or finished sources.
type collector struct {
	clock harvest.Clock

	mu      sync.Mutex
	sealed  bool
	records []harvest.GameRecord
	skipped int
}

func newCollector(clock harvest.Clock) *collector {
	return &collector{clock: clock}
}

// emit normalizes and stores one record. Invalid records count as
// skipped. Returns false once the collector is sealed; sources should
// stop producing when that happens.
func (c *collector) emit(rec harvest.GameRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return false
	}
	rec = rec.Normalize(c.clock.Now())
	if !rec.Valid() {
		c.skipped++
		return true
	}
	c.records = append(c.records, rec)
	return true
}

func (c *collector) seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// snapshot returns the records and skip count. Call after seal; the
// returned slice is no longer written to.
func (c *collector) snapshot() ([]harvest.GameRecord, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, c.skipped
}
