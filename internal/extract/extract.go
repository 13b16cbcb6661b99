// internal/extract/extract.go

// Package extract turns fetched HTML into candidate events. Several
// strategies run over every page and their results are merged, so a
// site only needs to be readable by one of them.
package extract

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/GigScrapexter/internal/registry"
	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// Text-scan bounds: anything shorter is noise, anything longer is a
// paragraph of prose rather than a schedule row.
const (
	textScanMinLen = 5
	textScanMaxLen = 500
)

// textScanSelector lists the elements worth scanning for inline
// date-bearing schedule text.
const textScanSelector = "div, span, p, td, li, h1, h2, h3, h4, h5, h6, a, section, article"

// linkMarkers identify hrefs that point at schedule detail pages.
var linkMarkers = []string{"event", "schedule", "live"}

// Extractor converts page HTML into events.
type Extractor struct {
	parser *DateParser
	logger utils.Logger
}

// New creates an extractor.
func New(logger utils.Logger) *Extractor {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Extractor{
		parser: NewDateParser(),
		logger: logger.WithField("component", "extract"),
	}
}

// NewAt creates an extractor with a fixed reference time for year
// inference. Used in tests.
func NewAt(ref time.Time, logger utils.Logger) *Extractor {
	e := New(logger)
	e.parser = NewDateParserAt(ref)
	return e
}

// Extract runs every strategy over the page and merges the results,
// deduplicating on (title, date, venue). Structured JSON-LD data wins
// over heuristic results for the same event.
func (x *Extractor) Extract(html, venue, sourceURL string, selectors []registry.SelectorSet) []*types.Event {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		x.logger.Warnf("unparseable HTML from %s: %v", sourceURL, err)
		return nil
	}

	merged := make(map[string]*types.Event)
	absorb := func(events []*types.Event, preferred bool) {
		for _, ev := range events {
			ev.Venue = venue
			ev.SourceURL = sourceURL
			key := ev.Key()
			if _, exists := merged[key]; !exists || preferred {
				merged[key] = ev
			}
		}
	}

	for _, sel := range selectors {
		absorb(x.extractBySelectors(doc, sel), false)
	}
	absorb(x.extractByTextScan(doc), false)
	absorb(x.extractByTables(doc), false)
	absorb(x.extractByLinks(doc), false)
	absorb(x.extractJSONLD(doc), true)

	out := make([]*types.Event, 0, len(merged))
	for _, ev := range merged {
		out = append(out, ev)
	}
	x.logger.Debugf("extracted %d unique events from %s", len(out), sourceURL)
	return out
}

// extractBySelectors applies a configured selector set to the page.
func (x *Extractor) extractBySelectors(doc *goquery.Document, sel registry.SelectorSet) []*types.Event {
	if sel.Events == "" {
		return nil
	}

	var events []*types.Event
	doc.Find(sel.Events).Each(func(_ int, container *goquery.Selection) {
		text := normalizeSpace(container.Text())
		if text == "" {
			return
		}

		dateText := text
		if sel.Date != "" {
			if t := normalizeSpace(container.Find(sel.Date).First().Text()); t != "" {
				dateText = t
			}
		}
		date, ok := x.parser.Parse(dateText)
		if !ok {
			return
		}

		title := ""
		if sel.Title != "" {
			title = normalizeSpace(container.Find(sel.Title).First().Text())
		}
		if title == "" {
			title = StripDateTime(text)
		}

		ev := &types.Event{
			Title:   title,
			Date:    date,
			RawText: text,
			Method:  "selectors",
		}

		timeText := text
		if sel.Time != "" {
			if t := normalizeSpace(container.Find(sel.Time).First().Text()); t != "" {
				timeText = t
			}
		}
		ev.OpenTime, ev.StartTime = ExtractTimes(timeText)

		if sel.Performers != "" {
			var acts []string
			container.Find(sel.Performers).Each(func(_ int, s *goquery.Selection) {
				if t := normalizeSpace(s.Text()); t != "" {
					acts = append(acts, t)
				}
			})
			ev.Artists = strings.Join(acts, " / ")
		}
		if sel.Price != "" {
			ev.PriceText = normalizeSpace(container.Find(sel.Price).First().Text())
		}

		events = append(events, ev)
	})
	return events
}

// extractByTextScan walks content elements looking for short
// date-bearing text runs. It catches schedules rendered as flat
// markup with no useful structure at all.
func (x *Extractor) extractByTextScan(doc *goquery.Document) []*types.Event {
	var events []*types.Event
	doc.Find(textScanSelector).Each(func(_ int, s *goquery.Selection) {
		// Only leaf-ish nodes: skip containers whose text is mostly
		// their children's.
		if s.Children().Length() > 3 {
			return
		}
		text := normalizeSpace(s.Text())
		if len(text) < textScanMinLen || len(text) > textScanMaxLen {
			return
		}
		date, ok := x.parser.Parse(text)
		if !ok {
			return
		}
		title := StripDateTime(text)
		if title == "" {
			return
		}
		open, start := ExtractTimes(text)
		events = append(events, &types.Event{
			Title:     title,
			Date:      date,
			OpenTime:  open,
			StartTime: start,
			RawText:   text,
			Method:    "text_scan",
		})
	})
	return events
}

// extractByTables reads schedule tables: one cell carries the date,
// the longest remaining cell is taken as the title.
func (x *Extractor) extractByTables(doc *goquery.Document) []*types.Event {
	var events []*types.Event
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		var date *struct{ t string }
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			text := normalizeSpace(cell.Text())
			if text == "" {
				return
			}
			if date == nil && ContainsDate(text) {
				date = &struct{ t string }{text}
				return
			}
			cells = append(cells, text)
		})
		if date == nil || len(cells) == 0 {
			return
		}
		parsed, ok := x.parser.Parse(date.t)
		if !ok {
			return
		}

		title := ""
		for _, c := range cells {
			if len(c) > len(title) {
				title = c
			}
		}
		open, start := ExtractTimes(strings.Join(append(cells, date.t), " "))
		events = append(events, &types.Event{
			Title:     StripDateTime(title),
			Date:      parsed,
			OpenTime:  open,
			StartTime: start,
			RawText:   date.t + " " + strings.Join(cells, " "),
			Method:    "table",
		})
	})
	return events
}

// extractByLinks reads anchor text on event-ish links.
func (x *Extractor) extractByLinks(doc *goquery.Document) []*types.Event {
	var events []*types.Event
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := normalizeSpace(a.Text())
		if text == "" {
			return
		}

		relevant := ContainsDate(text)
		if !relevant {
			lower := strings.ToLower(href)
			for _, marker := range linkMarkers {
				if strings.Contains(lower, marker) {
					relevant = true
					break
				}
			}
		}
		if !relevant {
			return
		}

		date, ok := x.parser.Parse(text)
		if !ok {
			return
		}
		title := StripDateTime(text)
		if title == "" {
			return
		}
		events = append(events, &types.Event{
			Title:   title,
			Date:    date,
			RawText: text,
			Method:  "links",
		})
	})
	return events
}

// jsonLDEvent is the subset of schema.org Event this cares about.
type jsonLDEvent struct {
	Type      string          `json:"@type"`
	Name      string          `json:"name"`
	StartDate string          `json:"startDate"`
	Performer json.RawMessage `json:"performer"`
	Offers    json.RawMessage `json:"offers"`
}

// extractJSONLD reads schema.org Event blocks. Structured data is the
// most reliable source when a site bothers to publish it.
func (x *Extractor) extractJSONLD(doc *goquery.Document) []*types.Event {
	var events []*types.Event
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		for _, block := range decodeJSONLDEvents(raw) {
			if !strings.EqualFold(block.Type, "Event") &&
				!strings.EqualFold(block.Type, "MusicEvent") {
				continue
			}
			date, ok := x.parser.Parse(block.StartDate)
			if !ok {
				continue
			}
			events = append(events, &types.Event{
				Title:   normalizeSpace(block.Name),
				Date:    date,
				Artists: strings.Join(jsonLDPerformers(block.Performer), " / "),
				Method:  "jsonld",
			})
		}
	})
	return events
}

// decodeJSONLDEvents handles the three shapes sites publish: a single
// object, a top-level array, and an @graph wrapper.
func decodeJSONLDEvents(raw string) []jsonLDEvent {
	var single jsonLDEvent
	if err := json.Unmarshal([]byte(raw), &single); err == nil && single.Type != "" {
		return []jsonLDEvent{single}
	}

	var list []jsonLDEvent
	if err := json.Unmarshal([]byte(raw), &list); err == nil && len(list) > 0 {
		return list
	}

	var graph struct {
		Graph []jsonLDEvent `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(raw), &graph); err == nil {
		return graph.Graph
	}
	return nil
}

// jsonLDPerformers flattens the performer field, which may be one
// object or a list.
func jsonLDPerformers(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	type performer struct {
		Name string `json:"name"`
	}

	var one performer
	if err := json.Unmarshal(raw, &one); err == nil && one.Name != "" {
		return []string{one.Name}
	}

	var many []performer
	if err := json.Unmarshal(raw, &many); err == nil {
		var names []string
		for _, p := range many {
			if p.Name != "" {
				names = append(names, p.Name)
			}
		}
		return names
	}
	return nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
