package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/config"
	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// Feed extracts records from a JSON listing endpoint. Unlike Listing it
// has a single document to work from, so an unusable response fails the
// source instead of being skipped.
type Feed struct {
	name     string
	site     config.SiteConfig
	strategy harvest.Strategy
	logger   *zap.Logger
}

// NewFeed creates a JSON feed source.
func NewFeed(name string, site config.SiteConfig, strategy harvest.Strategy, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{name: name, site: site, strategy: strategy, logger: logger}
}

// Name identifies the source in statistics and the merge order.
func (s *Feed) Name() string { return s.name }

// Run fetches the feed once and emits every mapped item.
func (s *Feed) Run(ctx context.Context, eng harvest.FetchEngine, emit harvest.EmitFunc) error {
	outcome := eng.Fetch(ctx, harvest.Request{URL: s.site.URL, Strategy: s.strategy})
	if !outcome.OK() {
		if outcome.Err != nil {
			return fmt.Errorf("feed fetch %s: %w", outcome.Kind, outcome.Err)
		}
		return fmt.Errorf("feed fetch %s: %s", outcome.Kind, outcome.BlockReason)
	}

	var payload any
	if err := json.Unmarshal(outcome.Body, &payload); err != nil {
		return fmt.Errorf("decode feed: %w", err)
	}
	items, err := itemsAt(payload, s.site.Feed.ItemsKey)
	if err != nil {
		return err
	}

	base := s.site.Feed.BaseURL
	if base == "" {
		base = outcome.FinalURL
	}

	count := 0
	for _, raw := range items {
		if s.site.MaxGames > 0 && count >= s.site.MaxGames {
			break
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			// Malformed entry: emit an empty record so it shows up in
			// the skip count instead of vanishing.
			if !emit(harvest.GameRecord{SourceName: s.name}) {
				return ctx.Err()
			}
			count++
			continue
		}
		if !emit(s.record(base, obj)) {
			return ctx.Err()
		}
		count++
	}
	return nil
}

func (s *Feed) record(base string, obj map[string]any) harvest.GameRecord {
	f := s.site.Feed
	rec := harvest.GameRecord{
		SourceName:  s.name,
		Category:    s.site.Category,
		Name:        stringAt(obj, f.NameKey),
		Description: stringAt(obj, f.DescKey),
	}
	if f.CategoryKey != "" {
		if cat := stringAt(obj, f.CategoryKey); cat != "" {
			rec.Category = cat
		}
	}
	if raw := stringAt(obj, f.URLKey); raw != "" {
		if abs, err := harvest.AbsoluteURL(base, raw); err == nil {
			rec.SourceURL = abs
		}
	}
	if raw := stringAt(obj, f.ThumbKey); raw != "" {
		if abs, err := harvest.AbsoluteURL(base, raw); err == nil {
			rec.ThumbnailURL = abs
		}
	}
	// Embed values may be markup snippets, not URLs; keep them verbatim.
	rec.EmbedReference = stringAt(obj, f.EmbedKey)
	return rec
}

// itemsAt walks a dot-separated key path down to the items array.
func itemsAt(payload any, path string) ([]any, error) {
	node := payload
	if path != "" {
		for _, key := range strings.Split(path, ".") {
			obj, ok := node.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("feed items key %q: %q is not an object", path, key)
			}
			node, ok = obj[key]
			if !ok {
				return nil, fmt.Errorf("feed items key %q: %q not found", path, key)
			}
		}
	}
	items, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("feed items key %q does not point at an array", path)
	}
	return items, nil
}

func stringAt(obj map[string]any, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
