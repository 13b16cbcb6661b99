// internal/extract/filter.go
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valpere/GigScrapexter/pkg/types"
)

// Date window for acceptable events. Listings further back than a
// month are stale archive pages; further out than a year they are
// almost always parse errors.
const (
	FilterPastWindow   = 30 * 24 * time.Hour
	FilterFutureWindow = 365 * 24 * time.Hour
	filterMinTitleLen  = 3
)

// skipTerms mark entries that are on the schedule page but are not
// shows: venue maintenance days, closures, navigation labels.
var skipTerms = []string{
	"設営", "撤去", "リハーサル", "休館", "定休", "貸切",
	"setup", "teardown", "closed", "holiday",
	"menu", "access", "contact", "about", "top", "home", "news",
	"schedule", "information", "ご予約", "アクセス", "お問い合わせ",
}

// junkPatterns reject titles that are URLs, bare prices or times, or
// symbol soup left over from markup stripping.
var junkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://`),
	regexp.MustCompile(`^[\d\s:：/¥,円-]+$`),
	regexp.MustCompile(`^[[:punct:]\s]+$`),
	regexp.MustCompile(`^(©|copyright|all rights reserved)`),
}

// FilterValid drops events that cannot be real upcoming shows:
// missing or out-of-window dates, junk titles, and non-show schedule
// entries. The reference time anchors the date window.
func FilterValid(events []*types.Event, now time.Time) []*types.Event {
	earliest := now.Add(-FilterPastWindow)
	latest := now.Add(FilterFutureWindow)

	var out []*types.Event
	for _, ev := range events {
		if ev == nil || ev.Date.IsZero() {
			continue
		}
		if ev.Date.Before(earliest) || ev.Date.After(latest) {
			continue
		}
		if !validTitle(ev.Title) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// validTitle rejects short, junk, and non-show titles.
func validTitle(title string) bool {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < filterMinTitleLen {
		return false
	}

	lower := strings.ToLower(title)
	for _, term := range skipTerms {
		// Whole-title matches only: a show named "News of the World
		// tour" must survive the "news" skip term.
		if lower == term {
			return false
		}
	}
	for _, term := range []string{"設営", "撤去", "休館", "定休", "貸切", "closed"} {
		if strings.Contains(lower, term) {
			return false
		}
	}

	for _, re := range junkPatterns {
		if re.MatchString(lower) {
			return false
		}
	}
	return true
}
