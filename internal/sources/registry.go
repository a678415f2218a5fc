// Package sources builds the extraction jobs that the orchestrator runs.
// Each source fetches its configured pages through the engine and emits
// normalized records; parsing stays site-local and disposable.
package sources

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/config"
	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// Build assembles the enabled sources in configured order. The order is
// what fixes the merge order of the final catalog, so it is explicit
// config rather than map iteration.
func Build(cfg config.SourcesConfig, logger *zap.Logger) ([]harvest.Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]harvest.Source, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		site, ok := cfg.Sites[name]
		if !ok {
			return nil, fmt.Errorf("source %q listed in order but not defined", name)
		}
		if !site.Enabled {
			logger.Info("source disabled", zap.String("source", name))
			continue
		}
		if site.MaxGames == 0 {
			site.MaxGames = cfg.MaxGamesDefault
		}

		raw := site.Strategy
		if raw == "" {
			raw = string(harvest.StrategyPlain)
		}
		strategy, err := harvest.ParseStrategy(raw)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}

		switch site.Kind {
		case "feed":
			out = append(out, NewFeed(name, site, strategy, logger))
		default:
			out = append(out, NewListing(name, site, strategy, logger))
		}
	}
	return out, nil
}
