package rendered

import (
	"context"
	"errors"

	"github.com/arcadehq/listing-harvester/internal/fetch"
	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// Noop stands in for the browser fetcher when rendering is disabled.
// Every call fails so the engine reports the page as unfetchable
// rather than silently downgrading the strategy.
type Noop struct{}

// NewNoop creates a disabled rendered fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Get always fails.
func (Noop) Get(context.Context, string, harvest.Identity) (fetch.Result, error) {
	return fetch.Result{}, errors.New("rendered fetcher not configured")
}
