package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

type metadata struct {
	TotalGames int                            `json:"total_games"`
	ScrapedAt  time.Time                      `json:"scraped_at"`
	Sources    map[string]harvest.SourceStats `json:"sources"`
}

type document struct {
	Metadata metadata             `json:"metadata"`
	Games    []harvest.GameRecord `json:"games"`
}

// WriteJSON persists the catalog document. The shape is stable:
// a metadata object with total_games, scraped_at, and the per-source
// stats map, followed by the games array.
func WriteJSON(path string, records []harvest.GameRecord, stats map[string]harvest.SourceStats, now time.Time) error {
	doc := document{
		Metadata: metadata{
			TotalGames: len(records),
			ScrapedAt:  now.UTC(),
			Sources:    stats,
		},
		Games: prepare(records, now),
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating output dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}

// WriteCSV exports a flat spreadsheet-friendly view of the catalog.
func WriteCSV(path string, records []harvest.GameRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating output dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"name", "url", "source", "has_embed"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Name,
			rec.SourceURL,
			rec.SourceName,
			strconv.FormatBool(rec.EmbedReference != ""),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// prepare guarantees the serialized invariants: tags marshal as an
// empty array rather than null and every record carries a timestamp.
func prepare(records []harvest.GameRecord, now time.Time) []harvest.GameRecord {
	out := make([]harvest.GameRecord, len(records))
	for i, rec := range records {
		if rec.Tags == nil {
			rec.Tags = []string{}
		}
		if rec.CollectedAt.IsZero() {
			rec.CollectedAt = now.UTC()
		}
		out[i] = rec
	}
	return out
}
