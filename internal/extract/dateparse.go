// internal/extract/dateparse.go
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// Date patterns, tried in order of decreasing specificity. Matching
// against narrowed text means full-width digits (２０２５年 etc.) and
// separators parse the same as ASCII.
var (
	// 2025-06-10, 2025/6/10, 2025.6.10, 2025年6月10日
	reYearMonthDay = regexp.MustCompile(`(\d{4})\s*[年/\-.]\s*(\d{1,2})\s*[月/\-.]\s*(\d{1,2})\s*日?`)

	// 20250610
	reCompact = regexp.MustCompile(`\b(20\d{2})(\d{2})(\d{2})\b`)

	// 10/6/2025, 10-6-2025
	reDayMonthYear = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\b`)

	// 6月10日
	reMonthDayKanji = regexp.MustCompile(`(\d{1,2})\s*月\s*(\d{1,2})\s*日?`)

	// 6/10, 6-10, optionally with a weekday note: 6/10(火), 6/10 (tue)
	reMonthDay = regexp.MustCompile(`\b(\d{1,2})\s*[/\-]\s*(\d{1,2})\b(\s*[(（][月火水木金土日祝a-zA-Z]{1,3}[)）])?`)

	// standalone weekday notes left behind after date removal
	reWeekdayNote = regexp.MustCompile(`[(（][月火水木金土日祝a-zA-Z]{1,3}[)）]`)

	// 18:30 style clock times, with optional open/start labels
	reClockTime = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	reOpenTime  = regexp.MustCompile(`(?i)open\s*[:：]?\s*(\d{1,2}:\d{2})|開場\s*[:：]?\s*(\d{1,2}:\d{2})`)
	reStartTime = regexp.MustCompile(`(?i)start\s*[:：]?\s*(\d{1,2}:\d{2})|開演\s*[:：]?\s*(\d{1,2}:\d{2})`)
)

// DateParser extracts event dates from free-form schedule text. The
// reference time anchors year inference for month/day-only dates.
type DateParser struct {
	now func() time.Time
}

// NewDateParser creates a parser anchored to the current time.
func NewDateParser() *DateParser {
	return &DateParser{now: time.Now}
}

// NewDateParserAt creates a parser with a fixed reference time.
func NewDateParserAt(ref time.Time) *DateParser {
	return &DateParser{now: func() time.Time { return ref }}
}

// Parse returns the first date found in text. The boolean reports
// whether any date was found.
func (p *DateParser) Parse(text string) (time.Time, bool) {
	dates := p.parseAll(text, true)
	if len(dates) == 0 {
		return time.Time{}, false
	}
	return dates[0], true
}

// ParseAll returns every date found in text, in order of appearance
// within each pattern tier.
func (p *DateParser) ParseAll(text string) []time.Time {
	return p.parseAll(text, false)
}

func (p *DateParser) parseAll(text string, firstOnly bool) []time.Time {
	// Full-width digits and punctuation are common on Japanese venue
	// sites; narrow once so every pattern sees ASCII.
	text = width.Narrow.String(text)

	var out []time.Time
	add := func(t time.Time, ok bool) bool {
		if !ok {
			return false
		}
		out = append(out, t)
		return firstOnly
	}

	for _, m := range reYearMonthDay.FindAllStringSubmatch(text, -1) {
		if add(makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))) {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, m := range reCompact.FindAllStringSubmatch(text, -1) {
		if add(makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))) {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, m := range reDayMonthYear.FindAllStringSubmatch(text, -1) {
		day, month := atoi(m[1]), atoi(m[2])
		// Swap when the nominal month cannot be one.
		if month > 12 && day <= 12 {
			day, month = month, day
		}
		if add(makeDate(atoi(m[3]), month, day)) {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, m := range reMonthDayKanji.FindAllStringSubmatch(text, -1) {
		if add(p.makeRollingDate(atoi(m[1]), atoi(m[2]))) {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, m := range reMonthDay.FindAllStringSubmatch(text, -1) {
		// Two bare numbers are ambiguous; the venue sites this targets
		// write month first, so that is the policy here. An impossible
		// month rejects the match rather than guessing day-first.
		if add(p.makeRollingDate(atoi(m[1]), atoi(m[2]))) {
			return out
		}
	}

	return out
}

// makeRollingDate builds a date in the current year, rolling forward
// to the next year when the date has already passed. Schedules only
// announce future shows, so "1/15" seen in December means January of
// next year.
func (p *DateParser) makeRollingDate(month, day int) (time.Time, bool) {
	now := p.now()
	date, ok := makeDate(now.Year(), month, day)
	if !ok {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		date = date.AddDate(1, 0, 0)
	}
	return date, true
}

// makeDate validates the components and rejects dates that do not
// round-trip, such as June 31st.
func makeDate(year, month, day int) (time.Time, bool) {
	if year < 2000 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Month() != time.Month(month) || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// ContainsDate reports whether text holds anything the parser would
// accept as a date. Used by extraction strategies to pick out
// date-bearing elements cheaply.
func ContainsDate(text string) bool {
	text = width.Narrow.String(text)
	return reYearMonthDay.MatchString(text) ||
		reCompact.MatchString(text) ||
		reDayMonthYear.MatchString(text) ||
		reMonthDayKanji.MatchString(text) ||
		reMonthDay.MatchString(text)
}

// StripDateTime removes date and clock-time tokens from a line,
// leaving the residue that is usually the event title.
func StripDateTime(text string) string {
	text = width.Narrow.String(text)
	for _, re := range []*regexp.Regexp{
		reYearMonthDay, reCompact, reDayMonthYear, reMonthDayKanji, reMonthDay,
		reWeekdayNote, reOpenTime, reStartTime, reClockTime,
	} {
		text = re.ReplaceAllString(text, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}

// ExtractTimes pulls labeled open and start times from text. When
// only unlabeled clock times appear, the first is taken as open and
// the second as start, matching how venue schedules order them.
func ExtractTimes(text string) (open, start string) {
	text = width.Narrow.String(text)

	if m := reOpenTime.FindStringSubmatch(text); m != nil {
		open = firstNonEmpty(m[1:])
	}
	if m := reStartTime.FindStringSubmatch(text); m != nil {
		start = firstNonEmpty(m[1:])
	}
	if open != "" || start != "" {
		return open, start
	}

	times := reClockTime.FindAllString(text, 2)
	if len(times) > 0 {
		open = times[0]
	}
	if len(times) > 1 {
		start = times[1]
	}
	return open, start
}

func firstNonEmpty(parts []string) string {
	for _, p := range parts {
		if p != "" {
			return p
		}
	}
	return ""
}
