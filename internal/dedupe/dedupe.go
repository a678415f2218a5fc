// Package dedupe collapses records that describe the same listing.
package dedupe

import (
	"strings"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

type key struct {
	name string
	url  string
}

// Records removes duplicates from the merged collection. Two records
// are duplicates when their lowercased names and their exact source
// URLs both match; no fuzzy matching. The first occurrence in merge
// order wins and relative order is preserved, so the operation is
// idempotent.
func Records(records []harvest.GameRecord) []harvest.GameRecord {
	seen := make(map[key]struct{}, len(records))
	out := make([]harvest.GameRecord, 0, len(records))
	for _, rec := range records {
		k := key{name: strings.ToLower(rec.Name), url: rec.SourceURL}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}
