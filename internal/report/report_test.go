package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

func sampleRecords(n int) []harvest.GameRecord {
	records := make([]harvest.GameRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := harvest.GameRecord{
			Name:       "Game " + string(rune('A'+i)),
			SourceURL:  "http://games.example/" + string(rune('a'+i)),
			SourceName: "arcade-index",
		}
		if i%2 == 0 {
			rec.EmbedReference = "<iframe src=\"http://games.example/embed\"></iframe>"
		}
		records = append(records, rec)
	}
	return records
}

func TestSummarizeCounts(t *testing.T) {
	t.Parallel()

	records := sampleRecords(12)
	stats := map[string]harvest.SourceStats{
		"arcade-index": {Count: 12, Outcome: harvest.SourceCompleted, DurationMs: 3200},
	}
	s := Summarize(records, stats, []string{"arcade-index"}, 3, time.Now())

	if s.Total != 12 {
		t.Fatalf("expected total 12, got %d", s.Total)
	}
	if s.WithEmbed != 6 {
		t.Fatalf("expected 6 with embeds, got %d", s.WithEmbed)
	}
	if s.Duplicates != 3 {
		t.Fatalf("expected 3 duplicates, got %d", s.Duplicates)
	}
	if len(s.Sample) != SampleSize {
		t.Fatalf("expected sample capped at %d, got %d", SampleSize, len(s.Sample))
	}
}

func TestSummarizeSortsUnorderedSources(t *testing.T) {
	t.Parallel()

	stats := map[string]harvest.SourceStats{
		"zeta":  {Outcome: harvest.SourceCompleted},
		"alpha": {Outcome: harvest.SourceCompleted},
	}
	s := Summarize(nil, stats, nil, 0, time.Now())
	if len(s.Order) != 2 || s.Order[0] != "alpha" || s.Order[1] != "zeta" {
		t.Fatalf("expected sorted source order, got %v", s.Order)
	}
}

func TestRenderMentionsFailures(t *testing.T) {
	t.Parallel()

	stats := map[string]harvest.SourceStats{
		"flaky": {Count: 2, Skipped: 1, Outcome: harvest.SourceTimedOut, DurationMs: 60000, Err: "deadline exceeded"},
	}
	s := Summarize(sampleRecords(2), stats, []string{"flaky"}, 0, time.Now())
	out := s.Render()

	for _, want := range []string{"Collected 2 games", "flaky", "timed-out", "deadline exceeded", "(1 skipped)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSONShape(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out", "games.json")
	records := []harvest.GameRecord{
		{Name: "Solo", SourceURL: "http://games.example/solo", SourceName: "arcade-index"},
	}
	stats := map[string]harvest.SourceStats{
		"arcade-index": {Count: 1, Outcome: harvest.SourceCompleted, DurationMs: 100},
	}
	if err := WriteJSON(path, records, stats, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc struct {
		Metadata struct {
			TotalGames int            `json:"total_games"`
			ScrapedAt  time.Time      `json:"scraped_at"`
			Sources    map[string]any `json:"sources"`
		} `json:"metadata"`
		Games []map[string]any `json:"games"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if doc.Metadata.TotalGames != 1 || len(doc.Games) != 1 {
		t.Fatalf("unexpected document: %s", raw)
	}
	if _, ok := doc.Metadata.Sources["arcade-index"]; !ok {
		t.Fatalf("missing source stats: %s", raw)
	}
	tags, ok := doc.Games[0]["tags"].([]any)
	if !ok || tags == nil {
		t.Fatalf("tags must serialize as an array: %s", raw)
	}
	if _, ok := doc.Games[0]["date_scraped"]; !ok {
		t.Fatalf("missing date_scraped: %s", raw)
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "games.csv")
	records := []harvest.GameRecord{
		{Name: "With Embed", SourceURL: "http://g/1", SourceName: "a", EmbedReference: "<iframe/>"},
		{Name: "Without", SourceURL: "http://g/2", SourceName: "b"},
	}
	if err := WriteCSV(path, records); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus two rows, got %d lines", len(lines))
	}
	if lines[0] != "name,url,source,has_embed" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.HasSuffix(lines[1], "true") || !strings.HasSuffix(lines[2], "false") {
		t.Fatalf("embed flags wrong: %v", lines[1:])
	}
}
