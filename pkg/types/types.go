// pkg/types/types.go
package types

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how a target is fetched and navigated.
type Strategy string

const (
	StrategyLightweightFirst   Strategy = "lightweight_first"
	StrategyBrowserOnly        Strategy = "browser_only"
	StrategyProtectionBypass   Strategy = "protection_bypass"
	StrategyEnhancedNavigation Strategy = "enhanced_navigation"
	StrategyAutoDetect         Strategy = "auto_detect"
)

// ValidStrategies returns all valid strategy values.
func ValidStrategies() []Strategy {
	return []Strategy{
		StrategyLightweightFirst, StrategyBrowserOnly,
		StrategyProtectionBypass, StrategyEnhancedNavigation,
		StrategyAutoDetect,
	}
}

// IsValid checks if the strategy is a valid value.
func (s Strategy) IsValid() bool {
	for _, valid := range ValidStrategies() {
		if s == valid {
			return true
		}
	}
	return false
}

// ComplexityTier classifies how much machinery a site needs before
// its schedule is readable.
type ComplexityTier string

const (
	TierSimple      ComplexityTier = "simple"
	TierModerate    ComplexityTier = "moderate"
	TierComplex     ComplexityTier = "complex"
	TierVeryComplex ComplexityTier = "very_complex"
	TierUnknown     ComplexityTier = "unknown"
)

// SpecialHandling tags short-circuit the normal fetch pipeline.
type SpecialHandling string

const (
	HandlingNone          SpecialHandling = ""
	HandlingSocialMedia   SpecialHandling = "social_media_redirect"
	HandlingImageSchedule SpecialHandling = "image_schedule"
)

// Event is a single schedule entry extracted from a target site,
// before validation and persistence.
type Event struct {
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	OpenTime   string    `json:"open_time,omitempty"`
	StartTime  string    `json:"start_time,omitempty"`
	Venue      string    `json:"venue"`
	Performers []string  `json:"performers,omitempty"`
	Artists    string    `json:"artists,omitempty"`
	PriceText  string    `json:"price_text,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	RawText    string    `json:"raw_text,omitempty"`
	// Method names the extraction path (jsonld, selectors, ocr);
	// FetchMethod names the transport that delivered the page.
	Method      string `json:"method,omitempty"`
	FetchMethod string `json:"fetch_method,omitempty"`
}

// Key returns the deduplication key for merged extraction results.
// Two events with the same title, date and venue are duplicates
// regardless of which extraction method produced them.
func (e *Event) Key() string {
	return strings.ToLower(strings.TrimSpace(e.Title)) + "|" +
		e.Date.Format("2006-01-02") + "|" +
		strings.ToLower(strings.TrimSpace(e.Venue))
}

// ValidationStatus classifies an event by overall confidence.
type ValidationStatus string

const (
	StatusVerified   ValidationStatus = "verified"
	StatusTrusted    ValidationStatus = "trusted"
	StatusCaution    ValidationStatus = "caution"
	StatusUnverified ValidationStatus = "unverified"
	StatusRejected   ValidationStatus = "rejected"
)

// Persistable reports whether an event with this status may be written
// to the external store. Rejected events never reach persistence.
func (s ValidationStatus) Persistable() bool {
	return s != StatusRejected && s != ""
}

// TargetResult summarizes the processing of one target within a run.
type TargetResult struct {
	Target       string        `json:"target"`
	Success      bool          `json:"success"`
	Skipped      bool          `json:"skipped"`
	SkipReason   string        `json:"skip_reason,omitempty"`
	EventsFound  int           `json:"events_found"`
	EventsSaved  int           `json:"events_saved"`
	Strategy     Strategy      `json:"strategy,omitempty"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// RunSummary aggregates the outcome of a full scraping run.
type RunSummary struct {
	StartedAt        time.Time      `json:"started_at"`
	Mode             string         `json:"mode"`
	TargetsPlanned   int            `json:"targets_planned"`
	TargetsCompleted int            `json:"targets_completed"`
	TargetsSkipped   int            `json:"targets_skipped"`
	TargetsFailed    int            `json:"targets_failed"`
	EventsFound      int            `json:"events_found"`
	EventsSaved      int            `json:"events_saved"`
	Duration         time.Duration  `json:"duration"`
	Results          []TargetResult `json:"results,omitempty"`
}

// String renders a one-line run report for logs.
func (rs *RunSummary) String() string {
	return fmt.Sprintf("run mode=%s targets=%d/%d failed=%d skipped=%d events=%d saved=%d duration=%v",
		rs.Mode, rs.TargetsCompleted, rs.TargetsPlanned, rs.TargetsFailed,
		rs.TargetsSkipped, rs.EventsFound, rs.EventsSaved, rs.Duration.Round(time.Second))
}
