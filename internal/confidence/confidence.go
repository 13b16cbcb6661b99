// internal/confidence/confidence.go

// Package confidence scores extracted events across seven weighted
// dimensions and classifies them into trust bands. Persistence only
// ever sees events that clear the rejection line; everything else in
// the pipeline is heuristic, so this is the gate that keeps scraper
// noise out of the database.
package confidence

import (
	"sort"
	"strings"
	"time"

	"github.com/valpere/GigScrapexter/internal/extract"
	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// Dimension weights. Location dominates because a right event at the
// wrong venue is worse than a missing price. Weights sum to 1.
const (
	WeightLocation = 0.25
	WeightActive   = 0.20
	WeightExists   = 0.20
	WeightBand     = 0.15
	WeightDate     = 0.10
	WeightTime     = 0.05
	WeightPrice    = 0.05
)

// Per-dimension risk thresholds. A dimension scoring below its
// threshold produces a named risk factor on the report.
const (
	ThresholdLocation = 0.95
	ThresholdActive   = 0.90
	ThresholdExists   = 0.85
	ThresholdBand     = 0.80
	ThresholdDate     = 0.95
	ThresholdTime     = 0.85
	ThresholdPrice    = 0.75
	ThresholdOverall  = 0.85
)

// Overall classification bands.
const (
	bandVerified   = 0.95
	bandTrusted    = 0.85
	bandCaution    = 0.70
	bandUnverified = 0.50
)

// PastDateScore caps the date dimension for events dated before
// today. A past date on a freshly scraped schedule page is almost
// always a misparse, not an archive listing.
const PastDateScore = 0.2

// Risk severity boundaries by gap below the dimension threshold.
const (
	severityLowGap    = 0.1
	severityMediumGap = 0.3
)

// Severity ranks how far below its threshold a dimension landed.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskFactor names a dimension that scored below its threshold.
type RiskFactor struct {
	Dimension string   `json:"dimension"`
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
	Gap       float64  `json:"gap"`
	Severity  Severity `json:"severity"`
}

// Report is the full confidence assessment of one event.
type Report struct {
	Overall     float64                `json:"overall"`
	Status      types.ValidationStatus `json:"status"`
	Dimensions  map[string]float64     `json:"dimensions"`
	RiskFactors []RiskFactor           `json:"risk_factors,omitempty"`
}

// VenueHistory supplies what the engine knows about a venue from
// past runs. Implemented by the store; kept as an interface so the
// engine stays storage-agnostic.
type VenueHistory interface {
	// RecentEventCount returns how many events the venue had in the
	// trailing 90 days.
	RecentEventCount(venue string) int
	// TypicalWeekdays returns the weekdays the venue usually hosts
	// shows on, or nil when unknown.
	TypicalWeekdays(venue string) []time.Weekday
}

// Context carries per-target facts the event itself does not.
type Context struct {
	VenueProven bool
	FetchedOK   bool
}

// Engine scores events.
type Engine struct {
	history VenueHistory
	logger  utils.Logger
	now     func() time.Time
}

// New creates a confidence engine. history may be nil, in which case
// venue-activity signals score neutrally.
func New(history VenueHistory, logger utils.Logger) *Engine {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Engine{
		history: history,
		logger:  logger.WithField("component", "confidence"),
		now:     time.Now,
	}
}

// Assess scores an event and classifies it.
func (e *Engine) Assess(ev *types.Event, ctx Context) *Report {
	dims := map[string]float64{
		"location": e.scoreLocation(ev, ctx),
		"active":   e.scoreActive(ev),
		"exists":   e.scoreExists(ev, ctx),
		"band":     e.scoreBand(ev),
		"date":     e.scoreDate(ev),
		"time":     e.scoreTime(ev),
		"price":    e.scorePrice(ev),
	}

	overall := dims["location"]*WeightLocation +
		dims["active"]*WeightActive +
		dims["exists"]*WeightExists +
		dims["band"]*WeightBand +
		dims["date"]*WeightDate +
		dims["time"]*WeightTime +
		dims["price"]*WeightPrice

	report := &Report{
		Overall:     overall,
		Status:      statusFor(overall),
		Dimensions:  dims,
		RiskFactors: riskFactors(dims),
	}

	e.logger.Debugf("event %q scored %.3f (%s)", ev.Title, overall, report.Status)
	return report
}

// statusFor maps an overall score to a trust band.
func statusFor(overall float64) types.ValidationStatus {
	switch {
	case overall >= bandVerified:
		return types.StatusVerified
	case overall >= bandTrusted:
		return types.StatusTrusted
	case overall >= bandCaution:
		return types.StatusCaution
	case overall >= bandUnverified:
		return types.StatusUnverified
	default:
		return types.StatusRejected
	}
}

var dimensionThresholds = map[string]float64{
	"location": ThresholdLocation,
	"active":   ThresholdActive,
	"exists":   ThresholdExists,
	"band":     ThresholdBand,
	"date":     ThresholdDate,
	"time":     ThresholdTime,
	"price":    ThresholdPrice,
}

// riskFactors lists below-threshold dimensions, worst gap first.
func riskFactors(dims map[string]float64) []RiskFactor {
	var risks []RiskFactor
	for name, score := range dims {
		threshold := dimensionThresholds[name]
		if score >= threshold {
			continue
		}
		gap := threshold - score
		severity := SeverityHigh
		switch {
		case gap <= severityLowGap:
			severity = SeverityLow
		case gap <= severityMediumGap:
			severity = SeverityMedium
		}
		risks = append(risks, RiskFactor{
			Dimension: name,
			Score:     score,
			Threshold: threshold,
			Gap:       gap,
			Severity:  severity,
		})
	}
	sort.Slice(risks, func(i, j int) bool { return risks[i].Gap > risks[j].Gap })
	return risks
}

// scoreLocation rates confidence that the event is at the venue we
// think it is. Events only ever come from a venue's own site, so a
// present venue name scores high and a proven target higher.
func (e *Engine) scoreLocation(ev *types.Event, ctx Context) float64 {
	if strings.TrimSpace(ev.Venue) == "" {
		return 0.2
	}
	if ctx.VenueProven {
		return 1.0
	}
	return 0.85
}

// scoreActive rates confidence that the venue is still operating.
func (e *Engine) scoreActive(ev *types.Event) float64 {
	score := 0.75
	if e.history != nil {
		switch count := e.history.RecentEventCount(ev.Venue); {
		case count >= 5:
			score = 1.0
		case count >= 1:
			score = 0.9
		default:
			score = 0.6
		}
	}
	if ev.Date.After(e.now()) {
		score += 0.05
	}
	return clamp(score)
}

// scoreExists rates confidence that the event is a real booking: a
// successful fetch of the venue's own site is decent evidence, and a
// named lineup is the strongest sign the listing is a show rather
// than page furniture.
func (e *Engine) scoreExists(ev *types.Event, ctx Context) float64 {
	score := 0.5
	if ctx.FetchedOK {
		score = 0.85
	}
	if ctx.VenueProven {
		score = 1.0
	}
	if strings.HasPrefix(ev.SourceURL, "https://") {
		score += 0.05
	}
	if hasNamedPerformers(ev) {
		score += 0.2
	} else {
		score -= 0.1
	}
	return clamp(score)
}

// hasNamedPerformers reports whether the lineup names anyone beyond
// the extractor's fallback entry.
func hasNamedPerformers(ev *types.Event) bool {
	for _, p := range ev.Performers {
		if p != extract.DefaultPerformer {
			return true
		}
	}
	return false
}

// scoreBand rates the lineup. A defaulted performer means the
// extractor found nothing usable.
func (e *Engine) scoreBand(ev *types.Event) float64 {
	if len(ev.Performers) == 0 {
		return 0.3
	}
	if len(ev.Performers) == 1 && ev.Performers[0] == extract.DefaultPerformer {
		return 0.45
	}
	score := 0.85
	if ev.Artists != "" {
		// Names confirmed by a dedicated artists field, not just
		// title heuristics.
		score = 0.95
	}
	if len(ev.Performers) > 1 {
		score += 0.05
	}
	return clamp(score)
}

// scoreDate rates the parsed date. Dates with an explicit year beat
// inferred ones; weekday agreement with the venue's usual pattern
// adds a little.
func (e *Engine) scoreDate(ev *types.Event) float64 {
	if ev.Date.IsZero() {
		return 0.0
	}
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if ev.Date.Before(today) {
		return PastDateScore
	}
	score := 0.85
	if strings.Contains(ev.RawText, ev.Date.Format("2006")) {
		score = 1.0
	}
	if e.history != nil {
		for _, wd := range e.history.TypicalWeekdays(ev.Venue) {
			if ev.Date.Weekday() == wd {
				score += 0.05
				break
			}
		}
	}
	until := ev.Date.Sub(now)
	if until > 6*30*24*time.Hour {
		score -= 0.2
	}
	return clamp(score)
}

// scoreTime rates open/start times; defaults are allowed downstream
// so absent times are a mild penalty, not fatal.
func (e *Engine) scoreTime(ev *types.Event) float64 {
	switch {
	case ev.OpenTime != "" && ev.StartTime != "":
		return 1.0
	case ev.OpenTime != "" || ev.StartTime != "":
		return 0.8
	default:
		return 0.5
	}
}

// scorePrice rates price information.
func (e *Engine) scorePrice(ev *types.Event) float64 {
	if strings.TrimSpace(ev.PriceText) != "" {
		return 0.95
	}
	return 0.6
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
