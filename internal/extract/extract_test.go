// internal/extract/extract_test.go
package extract

import (
	"testing"
	"time"

	"github.com/valpere/GigScrapexter/internal/registry"
	"github.com/valpere/GigScrapexter/pkg/types"
)

func testExtractor() *Extractor {
	return NewAt(testNow, nil)
}

func findEvent(events []*types.Event, title string) *types.Event {
	for _, ev := range events {
		if ev.Title == title {
			return ev
		}
	}
	return nil
}

func TestExtractBySelectors(t *testing.T) {
	html := `<html><body>
		<div class="schedule-item">
			<span class="date">6/10(火)</span>
			<h3 class="title">Guitar Wolf one-man</h3>
			<span class="time">OPEN 18:30 / START 19:00</span>
			<span class="artist">Guitar Wolf</span>
		</div>
		<div class="schedule-item">
			<span class="date">6/12(木)</span>
			<h3 class="title">Shonen Knife</h3>
		</div>
	</body></html>`

	sel := registry.SelectorSet{
		Events:     ".schedule-item",
		Title:      ".title",
		Date:       ".date",
		Time:       ".time",
		Performers: ".artist",
	}

	events := testExtractor().Extract(html, "Antiknock", "https://example.com/schedule", []registry.SelectorSet{sel})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	ev := findEvent(events, "Guitar Wolf one-man")
	if ev == nil {
		t.Fatal("Guitar Wolf event not found")
	}
	if ev.Date.Format("2006-01-02") != "2025-06-10" {
		t.Errorf("wrong date: %v", ev.Date)
	}
	if ev.OpenTime != "18:30" || ev.StartTime != "19:00" {
		t.Errorf("wrong times: %q / %q", ev.OpenTime, ev.StartTime)
	}
	if ev.Artists != "Guitar Wolf" {
		t.Errorf("wrong artists: %q", ev.Artists)
	}
	if ev.Venue != "Antiknock" {
		t.Errorf("wrong venue: %q", ev.Venue)
	}
}

func TestExtractByTextScan(t *testing.T) {
	html := `<html><body>
		<p>6月10日(火) eastern youth 企画 OPEN 18:00</p>
		<p>This is a long paragraph about the venue history with no dates in it at all.</p>
	</body></html>`

	events := testExtractor().Extract(html, "Shelter", "https://example.com", nil)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Date.Format("01-02") != "06-10" {
		t.Errorf("wrong date: %v", events[0].Date)
	}
}

func TestExtractByTables(t *testing.T) {
	html := `<html><body><table>
		<tr><td>6/10</td><td>MONO / envy</td><td>adv ¥3500</td></tr>
		<tr><td>venue info</td><td>access map</td></tr>
	</table></body></html>`

	events := testExtractor().Extract(html, "Fever", "https://example.com", nil)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Title != "MONO / envy" {
		t.Errorf("wrong title: %q", events[0].Title)
	}
}

func TestExtractJSONLDPreferred(t *testing.T) {
	html := `<html><body>
		<p>6/10 Boris live</p>
		<script type="application/ld+json">
		{"@type": "MusicEvent", "name": "Boris live", "startDate": "2025-06-10",
		 "performer": [{"name": "Boris"}, {"name": "Merzbow"}]}
		</script>
	</body></html>`

	events := testExtractor().Extract(html, "Earthdom", "https://example.com", nil)

	ev := findEvent(events, "Boris live")
	if ev == nil {
		t.Fatalf("JSON-LD event not found in %+v", events)
	}
	if ev.Method != "jsonld" {
		t.Errorf("structured data should win the merge, got method %q", ev.Method)
	}
	if ev.Artists != "Boris / Merzbow" {
		t.Errorf("wrong performers: %q", ev.Artists)
	}
}

func TestExtractDeduplicates(t *testing.T) {
	// The same show reachable by selector and text scan must appear
	// once.
	html := `<html><body>
		<div class="item"><p>6/10 Number Girl</p></div>
	</body></html>`

	sel := registry.SelectorSet{Events: ".item"}
	events := testExtractor().Extract(html, "Quattro", "https://example.com", []registry.SelectorSet{sel})

	count := 0
	for _, ev := range events {
		if ev.Title == "Number Girl" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected 1 Number Girl event after dedup, got %d", count)
	}
}

func TestFilterValid(t *testing.T) {
	now := testNow
	mk := func(title string, date time.Time) *types.Event {
		return &types.Event{Title: title, Date: date}
	}

	events := []*types.Event{
		mk("Guitar Wolf", now.AddDate(0, 0, 7)),
		mk("stale show", now.AddDate(0, -3, 0)),
		mk("far future", now.AddDate(2, 0, 0)),
		mk("設営日", now.AddDate(0, 0, 3)),
		mk("ab", now.AddDate(0, 0, 3)),
		mk("https://example.com/x", now.AddDate(0, 0, 3)),
		mk("¥3000 18:30", now.AddDate(0, 0, 3)),
		{Title: "no date"},
	}

	kept := FilterValid(events, now)
	if len(kept) != 1 {
		t.Fatalf("expected only 1 valid event, got %d: %+v", len(kept), kept)
	}
	if kept[0].Title != "Guitar Wolf" {
		t.Errorf("wrong survivor: %q", kept[0].Title)
	}
}

func TestValidTitleKeepsRealShows(t *testing.T) {
	// Skip terms only match whole titles, not substrings of real
	// show names.
	if !validTitle("News of the World tour") {
		t.Error("substring of a skip term rejected a real title")
	}
	if validTitle("news") {
		t.Error("bare navigation label accepted")
	}
}
