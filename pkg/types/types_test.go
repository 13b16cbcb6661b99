// pkg/types/types_test.go
package types

import (
	"strings"
	"testing"
	"time"
)

func TestStrategyIsValid(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		isValid  bool
	}{
		{"lightweight first", StrategyLightweightFirst, true},
		{"browser only", StrategyBrowserOnly, true},
		{"protection bypass", StrategyProtectionBypass, true},
		{"enhanced navigation", StrategyEnhancedNavigation, true},
		{"auto detect", StrategyAutoDetect, true},
		{"unknown", Strategy("headless_maybe"), false},
		{"empty", Strategy(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.strategy.IsValid(); got != tt.isValid {
				t.Errorf("Strategy.IsValid() = %v, want %v", got, tt.isValid)
			}
		})
	}
}

func TestEventKey(t *testing.T) {
	date := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.Local)

	a := &Event{Title: "Guitar Wolf Night", Date: date, Venue: "Antiknock"}
	b := &Event{Title: "  GUITAR WOLF NIGHT ", Date: date, Venue: "antiknock"}
	if a.Key() != b.Key() {
		t.Errorf("keys differ for equivalent events: %q vs %q", a.Key(), b.Key())
	}

	c := &Event{Title: "Guitar Wolf Night", Date: date.AddDate(0, 0, 1), Venue: "Antiknock"}
	if a.Key() == c.Key() {
		t.Error("different dates share a key")
	}
}

func TestValidationStatusPersistable(t *testing.T) {
	tests := []struct {
		status ValidationStatus
		want   bool
	}{
		{StatusVerified, true},
		{StatusTrusted, true},
		{StatusCaution, true},
		{StatusUnverified, true},
		{StatusRejected, false},
		{ValidationStatus(""), false},
	}
	for _, tt := range tests {
		if got := tt.status.Persistable(); got != tt.want {
			t.Errorf("%q.Persistable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRunSummaryString(t *testing.T) {
	summary := &RunSummary{
		Mode:             "weekly",
		TargetsPlanned:   10,
		TargetsCompleted: 8,
		TargetsFailed:    1,
		TargetsSkipped:   1,
		EventsFound:      42,
		EventsSaved:      39,
		Duration:         95 * time.Second,
	}

	s := summary.String()
	for _, want := range []string{"weekly", "8/10", "failed=1", "skipped=1", "events=42", "saved=39"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary %q missing %q", s, want)
		}
	}
}
