package sources

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/config"
	"github.com/arcadehq/listing-harvester/internal/fetch"
	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// Listing extracts records from HTML listing pages using configured
// CSS selectors. An unusable page is skipped, not fatal: the remaining
// pages still contribute records.
type Listing struct {
	name     string
	site     config.SiteConfig
	strategy harvest.Strategy
	logger   *zap.Logger
}

// NewListing creates a selector-driven listing source.
func NewListing(name string, site config.SiteConfig, strategy harvest.Strategy, logger *zap.Logger) *Listing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listing{name: name, site: site, strategy: strategy, logger: logger}
}

// Name identifies the source in statistics and the merge order.
func (s *Listing) Name() string { return s.name }

// Run fetches every configured page and emits what the selectors find.
func (s *Listing) Run(ctx context.Context, eng harvest.FetchEngine, emit harvest.EmitFunc) error {
	pages := s.site.Pages
	if len(pages) == 0 {
		pages = []string{s.site.URL}
	}

	emitted := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		budget := -1
		if s.site.MaxGames > 0 {
			budget = s.site.MaxGames - emitted
			if budget <= 0 {
				break
			}
		}

		outcome := s.fetchPage(ctx, eng, page)
		if !outcome.OK() {
			s.logger.Warn("page unusable",
				zap.String("source", s.name),
				zap.String("url", page),
				zap.String("outcome", string(outcome.Kind)),
				zap.String("reason", outcome.BlockReason),
				zap.Error(outcome.Err),
			)
			continue
		}

		count, sealed := s.extract(outcome, emit, budget)
		emitted += count
		if sealed {
			return ctx.Err()
		}
	}
	return nil
}

// fetchPage runs the configured strategy and escalates a plain fetch to
// the browser when the body looks like an unrendered script shell. The
// plain body still wins if rendering fails.
func (s *Listing) fetchPage(ctx context.Context, eng harvest.FetchEngine, page string) harvest.Outcome {
	outcome := eng.Fetch(ctx, harvest.Request{URL: page, Strategy: s.strategy})
	if s.strategy != harvest.StrategyPlain || !outcome.OK() {
		return outcome
	}
	if !fetch.NeedsRender(outcome.Body) {
		return outcome
	}

	s.logger.Info("escalating to rendered fetch",
		zap.String("source", s.name),
		zap.String("url", page),
	)
	rendered := eng.Fetch(ctx, harvest.Request{URL: page, Strategy: harvest.StrategyRendered})
	if rendered.OK() {
		return rendered
	}
	return outcome
}

func (s *Listing) extract(outcome harvest.Outcome, emit harvest.EmitFunc, budget int) (int, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(outcome.Body))
	if err != nil {
		s.logger.Warn("listing parse failed", zap.String("source", s.name), zap.Error(err))
		return 0, false
	}
	base := outcome.FinalURL
	if base == "" {
		base = outcome.URL
	}

	emitted := 0
	sealed := false
	doc.Find(s.site.Selectors.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if budget >= 0 && emitted >= budget {
			return false
		}
		if !emit(s.record(base, item)) {
			sealed = true
			return false
		}
		emitted++
		return true
	})
	return emitted, sealed
}

// record maps one matched item onto a GameRecord. Empty name/link
// selectors fall back to the item node itself, so a bare anchor tile
// needs no per-field selectors.
func (s *Listing) record(base string, item *goquery.Selection) harvest.GameRecord {
	sel := s.site.Selectors
	rec := harvest.GameRecord{
		SourceName: s.name,
		Category:   s.site.Category,
	}

	if sel.Name == "" {
		rec.Name = strings.TrimSpace(item.Text())
	} else {
		rec.Name = textOf(item, sel.Name)
	}

	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}
	if href := attrOf(item, sel.Link, linkAttr); href != "" {
		if abs, err := harvest.AbsoluteURL(base, href); err == nil {
			rec.SourceURL = abs
		}
	}

	thumbAttr := sel.ThumbAttr
	if thumbAttr == "" {
		thumbAttr = "src"
	}
	if sel.Thumbnail != "" {
		if src := attrOf(item, sel.Thumbnail, thumbAttr); src != "" {
			if abs, err := harvest.AbsoluteURL(base, src); err == nil {
				rec.ThumbnailURL = abs
			}
		}
	}

	if sel.Embed != "" {
		if sel.EmbedAttr != "" {
			rec.EmbedReference = attrOf(item, sel.Embed, sel.EmbedAttr)
		} else if markup, err := goquery.OuterHtml(item.Find(sel.Embed).First()); err == nil {
			rec.EmbedReference = strings.TrimSpace(markup)
		}
	}

	rec.Description = textOf(item, sel.Description)
	return rec
}

func textOf(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(item.Find(selector).First().Text())
}

// attrOf reads attr from the first node matching selector, or from the
// item itself when the selector is empty.
func attrOf(item *goquery.Selection, selector, attr string) string {
	node := item
	if selector != "" {
		node = item.Find(selector).First()
	}
	return strings.TrimSpace(node.AttrOr(attr, ""))
}
