package dedupe

import (
	"testing"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

func rec(name, url string) harvest.GameRecord {
	return harvest.GameRecord{Name: name, SourceURL: url}
}

func TestRecordsFirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	// Two sources reporting the same listing with different casing.
	merged := []harvest.GameRecord{
		rec("Foo", "http://x/1"),
		rec("foo", "http://x/1"),
		rec("Bar", "http://x/2"),
	}
	got := Records(merged)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Name != "Foo" || got[0].SourceURL != "http://x/1" {
		t.Fatalf("first occurrence did not win: %+v", got[0])
	}
	if got[1].Name != "Bar" {
		t.Fatalf("order not preserved: %+v", got)
	}
}

func TestRecordsKeyIsNamePlusURL(t *testing.T) {
	t.Parallel()

	merged := []harvest.GameRecord{
		rec("Snake", "http://a/snake"),
		rec("Snake", "http://b/snake"), // same name, different URL: kept
		rec("Tetris", "http://a/snake"),
	}
	got := Records(merged)
	if len(got) != 3 {
		t.Fatalf("name or URL alone must not collapse records, got %d", len(got))
	}
}

func TestRecordsIdempotent(t *testing.T) {
	t.Parallel()

	merged := []harvest.GameRecord{
		rec("Foo", "http://x/1"),
		rec("FOO", "http://x/1"),
		rec("Bar", "http://x/2"),
		rec("Bar", "http://x/2"),
	}
	once := Records(merged)
	twice := Records(once)
	if len(once) != len(twice) {
		t.Fatalf("dedupe not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Name != twice[i].Name || once[i].SourceURL != twice[i].SourceURL {
			t.Fatalf("record %d changed on second pass: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestRecordsEmptyInput(t *testing.T) {
	t.Parallel()

	if got := Records(nil); len(got) != 0 {
		t.Fatalf("expected empty output, got %+v", got)
	}
}
