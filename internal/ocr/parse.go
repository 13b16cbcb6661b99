// internal/ocr/parse.go
package ocr

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valpere/GigScrapexter/internal/extract"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// ValidWindow bounds dates accepted from OCR text. Recognition noise
// produces plausible-looking numbers; a date outside the announced
// booking horizon is almost certainly one of them.
const ValidWindow = 6 * 30 * 24 * time.Hour

// ocrJunkLine rejects lines that are venue boilerplate rather than
// schedule rows.
var ocrJunkLine = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^https?://|www\.`),
	regexp.MustCompile(`(?i)©|copyright|all rights`),
	regexp.MustCompile(`^[\d\s()\-+]{8,}$`), // phone numbers
	regexp.MustCompile(`(?i)^(open|start|adv|door|前売|当日)\s*[:：]?\s*[\d:¥,円\s/]+$`),
}

// titlePrefixes are schedule-section labels that leak into the line
// before the act name.
var titlePrefixes = []string{"schedule", "event", "live", "concert", "スケジュール", "ライブ"}

// ParseScheduleText converts raw OCR output into events: each
// date-bearing line becomes one event whose title is the line minus
// its date and time tokens, pulling in the previous line when the
// residue is too short to be a title.
func ParseScheduleText(text, venue, sourceURL string, now time.Time) []*types.Event {
	parser := extract.NewDateParserAt(now)
	lines := strings.Split(text, "\n")

	var events []*types.Event
	var prevLine string

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || junkLine(line) {
			continue
		}

		date, ok := parser.Parse(line)
		if !ok {
			prevLine = line
			continue
		}
		if !dateInWindow(date, now) {
			prevLine = line
			continue
		}

		title := extract.StripDateTime(line)
		title = stripTitlePrefixes(title)
		if utf8.RuneCountInString(title) < 3 && prevLine != "" && !junkLine(prevLine) {
			// Flyers often put the date on its own line under the
			// act name.
			title = stripTitlePrefixes(strings.TrimSpace(prevLine))
		}
		if utf8.RuneCountInString(title) < 3 {
			prevLine = line
			continue
		}

		open, start := extract.ExtractTimes(line)
		events = append(events, &types.Event{
			Title:     title,
			Date:      date,
			OpenTime:  open,
			StartTime: start,
			Venue:     venue,
			SourceURL: sourceURL,
			RawText:   line,
			Method:    "ocr",
		})
		prevLine = line
	}
	return events
}

// dateInWindow accepts dates from today through the valid window.
func dateInWindow(date, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !date.Before(today) && date.Sub(today) <= ValidWindow
}

func junkLine(line string) bool {
	for _, re := range ocrJunkLine {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// stripTitlePrefixes removes section labels from the front of a
// candidate title.
func stripTitlePrefixes(title string) string {
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(title)
		for _, prefix := range titlePrefixes {
			if strings.HasPrefix(lower, prefix) {
				title = strings.TrimSpace(strings.TrimLeft(title[len(prefix):], " :：・-"))
				changed = true
				break
			}
		}
	}
	return title
}
