// Package report aggregates run output into summaries and export files.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// SampleSize fixes how many records the human-readable summary shows.
const SampleSize = 10

// Summary is the aggregated view of one run. Read-only over its inputs.
type Summary struct {
	Total       int
	WithEmbed   int
	Duplicates  int
	Sources     map[string]harvest.SourceStats
	Order       []string
	Sample      []harvest.GameRecord
	GeneratedAt time.Time
}

// Summarize builds the run summary. order fixes how sources appear in
// the rendered output; pass nil to sort them by name.
func Summarize(
	records []harvest.GameRecord,
	stats map[string]harvest.SourceStats,
	order []string,
	duplicates int,
	now time.Time,
) Summary {
	s := Summary{
		Total:       len(records),
		Duplicates:  duplicates,
		Sources:     stats,
		Order:       order,
		GeneratedAt: now.UTC(),
	}
	for _, rec := range records {
		if rec.EmbedReference != "" {
			s.WithEmbed++
		}
	}
	sample := len(records)
	if sample > SampleSize {
		sample = SampleSize
	}
	s.Sample = records[:sample]

	if len(s.Order) == 0 {
		for name := range stats {
			s.Order = append(s.Order, name)
		}
		sort.Strings(s.Order)
	}
	return s
}

// Render formats the summary for terminal output.
func (s Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Collected %d games", s.Total)
	if s.Duplicates > 0 {
		fmt.Fprintf(&b, " (%d duplicates removed)", s.Duplicates)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "With embed reference: %d\n", s.WithEmbed)

	if len(s.Order) > 0 {
		b.WriteString("Per source:\n")
		for _, name := range s.Order {
			st, ok := s.Sources[name]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %-24s %4d records  %-9s  %6.1fs",
				name, st.Count, st.Outcome, float64(st.DurationMs)/1000)
			if st.Skipped > 0 {
				fmt.Fprintf(&b, "  (%d skipped)", st.Skipped)
			}
			if st.Err != "" {
				fmt.Fprintf(&b, "  %s", st.Err)
			}
			b.WriteString("\n")
		}
	}

	if len(s.Sample) > 0 {
		fmt.Fprintf(&b, "Sample (first %d):\n", len(s.Sample))
		for _, rec := range s.Sample {
			fmt.Fprintf(&b, "  - %s (%s)\n", rec.Name, rec.SourceURL)
		}
	}
	return b.String()
}
