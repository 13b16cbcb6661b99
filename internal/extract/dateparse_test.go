// internal/extract/dateparse_test.go
package extract

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestParseDateFormats(t *testing.T) {
	p := NewDateParserAt(testNow)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"iso", "2025-06-10", "2025-06-10"},
		{"slash with year", "2025/6/10", "2025-06-10"},
		{"dotted", "2025.6.10 live info", "2025-06-10"},
		{"kanji full", "2025年6月10日", "2025-06-10"},
		{"kanji month day", "6月10日(火)", "2025-06-10"},
		{"compact", "schedule 20250610 updated", "2025-06-10"},
		{"month day slash", "6/10", "2025-06-10"},
		{"month day with weekday", "6/10(火) OPEN 18:30", "2025-06-10"},
		{"day month year", "10/6/2025", "2025-06-10"},
		{"full width digits", "２０２５年６月１０日", "2025-06-10"},
		{"embedded in text", "次回ライブは6月10日です", "2025-06-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Parse(tt.text)
			if !ok {
				t.Fatalf("Parse(%q) found no date", tt.text)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.text, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestParseDateRollsToNextYear(t *testing.T) {
	// Reference date is June 1st; a "1/15" listing must mean next
	// January, not last January.
	p := NewDateParserAt(testNow)

	got, ok := p.Parse("1/15")
	if !ok {
		t.Fatal("expected a date")
	}
	if got.Year() != 2026 {
		t.Errorf("passed month/day should roll to next year, got %v", got)
	}

	got, ok = p.Parse("12月24日")
	if !ok {
		t.Fatal("expected a date")
	}
	if got.Year() != 2025 {
		t.Errorf("future month/day should stay in current year, got %v", got)
	}
}

func TestParseDateRejectsInvalid(t *testing.T) {
	p := NewDateParserAt(testNow)

	for _, text := range []string{
		"no dates here",
		"2025-13-01",
		"2025/6/31",
		"チケット代 3000円",
	} {
		if d, ok := p.Parse(text); ok {
			t.Errorf("Parse(%q) unexpectedly returned %v", text, d)
		}
	}
}

func TestParseAmbiguousPairIsMonthFirst(t *testing.T) {
	p := NewDateParserAt(testNow)

	got, ok := p.Parse("7/8")
	if !ok {
		t.Fatal("expected a date")
	}
	if got.Month() != time.July || got.Day() != 8 {
		t.Errorf("7/8 should parse month-first as July 8, got %v", got)
	}
}

func TestContainsDate(t *testing.T) {
	if !ContainsDate("live on 6月10日!") {
		t.Error("kanji date not detected")
	}
	if ContainsDate("open the door") {
		t.Error("false positive on plain text")
	}
}

func TestStripDateTime(t *testing.T) {
	got := StripDateTime("6/10(火) THE BAND live OPEN 18:30 START 19:00")
	if got != "THE BAND live" {
		t.Errorf("StripDateTime = %q", got)
	}
}

func TestExtractTimes(t *testing.T) {
	tests := []struct {
		text      string
		wantOpen  string
		wantStart string
	}{
		{"OPEN 18:30 / START 19:00", "18:30", "19:00"},
		{"開場 18:00 開演 18:30", "18:00", "18:30"},
		{"18:30 / 19:00", "18:30", "19:00"},
		{"doors at night", "", ""},
	}

	for _, tt := range tests {
		open, start := ExtractTimes(tt.text)
		if open != tt.wantOpen || start != tt.wantStart {
			t.Errorf("ExtractTimes(%q) = (%q, %q), want (%q, %q)",
				tt.text, open, start, tt.wantOpen, tt.wantStart)
		}
	}
}
