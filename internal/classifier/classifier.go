// internal/classifier/classifier.go

// Package classifier samples a target's landing page and scores how
// much rendering machinery the site needs before its schedule becomes
// readable. The tier drives strategy selection for auto_detect
// targets. Results are cached across runs because site architecture
// changes rarely while scraping runs happen weekly.
package classifier

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// Scoring constants. Weights favor signals that correlate with
// client-side rendering; short pages get one point back because tiny
// static pages often load a single analytics script.
const (
	ScoreIframe         = 3
	ScoreManyScripts    = 2
	ScoreSPAFramework   = 2
	ScoreAjax           = 1
	ScoreNoscriptNotice = 2
	ScoreCalendarWidget = 1
	ScoreShortContent   = -1

	ManyScriptsThreshold  = 10
	ShortContentThreshold = 5000
)

// Tier boundaries: 0-1 simple, 2-4 moderate, 5-8 complex, 9+ very complex.
const (
	tierSimpleMax   = 1
	tierModerateMax = 4
	tierComplexMax  = 8
)

// Sample fetch timeouts are tighter than normal fetches; the
// classifier only needs the initial document, not a full render.
const (
	SampleOpenTimeout = 3 * time.Second
	SampleReadTimeout = 5 * time.Second
)

const cacheDocument = "complexity"

// spaFingerprints identify client-side rendering frameworks in page
// source.
var spaFingerprints = []string{
	"react", "vue.js", "angular", "next.js", "nuxt", "__next", "ng-app", "data-reactroot",
}

// ajaxFingerprints suggest content arrives after the initial load.
var ajaxFingerprints = []string{
	"xmlhttprequest", "fetch(", "axios", "$.ajax",
}

// calendarFingerprints identify embedded calendar widgets, which
// typically render events from JavaScript data.
var calendarFingerprints = []string{
	"fullcalendar", "calendar.js", "tribe-events", "calendar-widget",
}

// Classifier assigns complexity tiers to target URLs.
type Classifier struct {
	fetcher *fetch.HTTPFetcher
	state   *statestore.Store
	logger  utils.Logger

	mu    sync.Mutex
	cache map[string]types.ComplexityTier
}

// New creates a classifier backed by the given state store. Previously
// classified URLs are loaded from the persisted cache.
func New(state *statestore.Store, logger utils.Logger) *Classifier {
	if logger == nil {
		logger = utils.NewLogger()
	}

	c := &Classifier{
		fetcher: fetch.NewHTTPFetcher(&fetch.HTTPConfig{
			OpenTimeout: SampleOpenTimeout,
			ReadTimeout: SampleReadTimeout,
		}, logger),
		state:  state,
		logger: logger.WithField("component", "classifier"),
		cache:  make(map[string]types.ComplexityTier),
	}

	if state != nil {
		if _, err := state.Load(cacheDocument, &c.cache); err != nil {
			c.logger.Warnf("loading complexity cache: %v", err)
		}
		if c.cache == nil {
			c.cache = make(map[string]types.ComplexityTier)
		}
	}
	return c
}

// Classify returns the complexity tier for a URL, fetching a sample
// of the page on a cache miss. A failed sample fetch yields
// TierUnknown, which is also cached: an unreachable site will not get
// more reachable by re-probing it every run.
func (c *Classifier) Classify(ctx context.Context, url string) types.ComplexityTier {
	c.mu.Lock()
	if tier, ok := c.cache[url]; ok {
		c.mu.Unlock()
		return tier
	}
	c.mu.Unlock()

	tier := c.probe(ctx, url)

	c.mu.Lock()
	c.cache[url] = tier
	c.mu.Unlock()
	c.flush()

	c.logger.Infof("classified %s as %s", url, tier)
	return tier
}

// Invalidate drops the cached tier for a URL so the next Classify
// re-probes it. Used when a previously working strategy starts
// failing.
func (c *Classifier) Invalidate(url string) {
	c.mu.Lock()
	delete(c.cache, url)
	c.mu.Unlock()
	c.flush()
}

func (c *Classifier) probe(ctx context.Context, url string) types.ComplexityTier {
	result, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.logger.Debugf("sample fetch for %s failed: %v", url, err)
		return types.TierUnknown
	}
	return TierForScore(Score(result.HTML))
}

func (c *Classifier) flush() {
	if c.state == nil {
		return
	}
	c.mu.Lock()
	snapshot := make(map[string]types.ComplexityTier, len(c.cache))
	for k, v := range c.cache {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if err := c.state.Save(cacheDocument, snapshot); err != nil {
		c.logger.Warnf("saving complexity cache: %v", err)
	}
}

// Score computes the raw complexity score for a page. Exported so the
// scoring rubric is testable without network access.
func Score(html string) int {
	score := 0
	lower := strings.ToLower(html)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup still gets the string-based signals.
		doc = nil
	}

	if doc != nil {
		if doc.Find("iframe").Length() > 0 {
			score += ScoreIframe
		}
		if doc.Find("script").Length() > ManyScriptsThreshold {
			score += ScoreManyScripts
		}
		noscript := strings.ToLower(doc.Find("noscript").Text())
		if strings.Contains(noscript, "javascript") || strings.Contains(noscript, "enable") {
			score += ScoreNoscriptNotice
		}
	}

	if containsAny(lower, spaFingerprints) {
		score += ScoreSPAFramework
	}
	if containsAny(lower, ajaxFingerprints) {
		score += ScoreAjax
	}
	if containsAny(lower, calendarFingerprints) {
		score += ScoreCalendarWidget
	}
	if len(html) < ShortContentThreshold {
		score += ScoreShortContent
	}

	return score
}

// TierForScore maps a raw score onto a complexity tier.
func TierForScore(score int) types.ComplexityTier {
	switch {
	case score <= tierSimpleMax:
		return types.TierSimple
	case score <= tierModerateMax:
		return types.TierModerate
	case score <= tierComplexMax:
		return types.TierComplex
	default:
		return types.TierVeryComplex
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
