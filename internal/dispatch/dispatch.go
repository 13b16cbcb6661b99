// internal/dispatch/dispatch.go

// Package dispatch routes each target to a fetching strategy. A
// target's declared strategy always wins; auto_detect consults the
// complexity classifier and maps its tier to the cheapest path that
// can render the page. Special handling markers short-circuit
// dispatch entirely: social media schedules are skipped, image
// schedules are fetched once and flagged for the OCR pipeline.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/registry"
	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

const (
	// MaxNavPages caps how many linked pages an enhanced navigation
	// walk will fetch beyond the target's own URLs.
	MaxNavPages = 8

	// Method labels recorded on results so a run report shows which
	// path produced each page.
	MethodHTTP            = "http"
	MethodBrowser         = "browser"
	MethodBrowserFallback = "browser_fallback"
	MethodBypass          = "browser_bypass"
	MethodNavigation      = "navigation"
)

// ErrSkipTarget marks a target that dispatch declines to scrape.
var ErrSkipTarget = errors.New("target skipped by special handling")

// browserFetcher is the headless browser surface dispatch needs.
type browserFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
	FetchWithBypass(ctx context.Context, url string) (*fetch.Result, error)
}

// tierClassifier resolves a URL to a complexity tier.
type tierClassifier interface {
	Classify(ctx context.Context, url string) types.ComplexityTier
}

// robotsPolicy answers whether a URL may be fetched.
type robotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Outcome is what dispatch hands to extraction: one or more fetched
// pages, the method that produced them, and whether the target's
// schedule lives in images rather than markup.
type Outcome struct {
	Pages  []*fetch.Result
	Method string
	UseOCR bool
}

// Dispatcher routes targets to fetchers.
type Dispatcher struct {
	http       fetch.Fetcher
	browser    browserFetcher
	classifier tierClassifier
	robots     robotsPolicy
	logger     utils.Logger
}

// New creates a Dispatcher. robots may be nil, in which case every
// URL is considered allowed.
func New(http fetch.Fetcher, browser browserFetcher, classifier tierClassifier, robots robotsPolicy, logger utils.Logger) *Dispatcher {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Dispatcher{
		http:       http,
		browser:    browser,
		classifier: classifier,
		robots:     robots,
		logger:     logger,
	}
}

// Fetch acquires a target's schedule pages using its resolved
// strategy.
func (d *Dispatcher) Fetch(ctx context.Context, target *registry.Target) (*Outcome, error) {
	switch target.SpecialHandling {
	case types.HandlingSocialMedia:
		// Social platforms serve login walls to headless browsers;
		// these venues are handled manually.
		d.logger.Infof("skipping %s: schedule lives on social media", target.Name)
		return nil, fmt.Errorf("%s: %w", target.Name, ErrSkipTarget)
	case types.HandlingImageSchedule:
		out, err := d.fetchBrowser(ctx, target.PrimaryURL(), false)
		if err != nil {
			return nil, err
		}
		out.UseOCR = true
		return out, nil
	}

	strategy := d.resolve(ctx, target)
	d.logger.Debugf("dispatching %s via %s", target.Name, strategy)

	switch strategy {
	case types.StrategyLightweightFirst:
		return d.fetchLightweight(ctx, target.PrimaryURL())
	case types.StrategyBrowserOnly:
		return d.fetchBrowser(ctx, target.PrimaryURL(), false)
	case types.StrategyProtectionBypass:
		return d.fetchBrowser(ctx, target.PrimaryURL(), true)
	case types.StrategyEnhancedNavigation:
		return d.fetchNavigation(ctx, target)
	default:
		return nil, fmt.Errorf("target %s: unknown strategy %q", target.Name, strategy)
	}
}

// resolve maps auto_detect to a concrete strategy from the
// classifier's tier; declared strategies pass through.
func (d *Dispatcher) resolve(ctx context.Context, target *registry.Target) types.Strategy {
	if target.Strategy != types.StrategyAutoDetect {
		return target.Strategy
	}
	switch d.classifier.Classify(ctx, target.PrimaryURL()) {
	case types.TierComplex, types.TierVeryComplex:
		return types.StrategyBrowserOnly
	default:
		// Simple, moderate, and unknown all start cheap; the
		// lightweight path falls back to the browser on its own.
		return types.StrategyLightweightFirst
	}
}

func (d *Dispatcher) allowed(ctx context.Context, url string) bool {
	return d.robots == nil || d.robots.Allowed(ctx, url)
}

// fetchLightweight tries the HTTP client first and falls back to the
// browser when the response is empty or the fetch fails. Client-side
// rendered pages return skeleton HTML to plain HTTP; that is the
// common fallback trigger.
func (d *Dispatcher) fetchLightweight(ctx context.Context, url string) (*Outcome, error) {
	if !d.allowed(ctx, url) {
		return nil, fmt.Errorf("%s: disallowed by robots.txt: %w", url, ErrSkipTarget)
	}

	result, err := d.http.Fetch(ctx, url)
	if err == nil && !result.Empty() {
		return &Outcome{Pages: []*fetch.Result{result}, Method: MethodHTTP}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		d.logger.Debugf("http fetch of %s failed (%v), falling back to browser", url, err)
	} else {
		d.logger.Debugf("http fetch of %s returned empty body, falling back to browser", url)
	}

	result, err = d.browser.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Outcome{Pages: []*fetch.Result{result}, Method: MethodBrowserFallback}, nil
}

func (d *Dispatcher) fetchBrowser(ctx context.Context, url string, bypass bool) (*Outcome, error) {
	if !d.allowed(ctx, url) {
		return nil, fmt.Errorf("%s: disallowed by robots.txt: %w", url, ErrSkipTarget)
	}

	var (
		result *fetch.Result
		err    error
		method = MethodBrowser
	)
	if bypass {
		result, err = d.browser.FetchWithBypass(ctx, url)
		method = MethodBypass
	} else {
		result, err = d.browser.Fetch(ctx, url)
	}
	if err != nil {
		return nil, err
	}
	return &Outcome{Pages: []*fetch.Result{result}, Method: method}, nil
}

// fetchNavigation walks all of the target's URLs plus schedule
// navigation discovered in each page: iframe sources and month
// pagination links. Venues that publish one page per month need this
// to see beyond the current month.
func (d *Dispatcher) fetchNavigation(ctx context.Context, target *registry.Target) (*Outcome, error) {
	seen := make(map[string]bool)
	queue := make([]string, 0, len(target.URLs))
	for _, u := range target.URLs {
		queue = append(queue, u)
		seen[u] = true
	}

	out := &Outcome{Method: MethodNavigation}
	extra := 0

	for len(queue) > 0 {
		if ctx.Err() != nil {
			break
		}
		url := queue[0]
		queue = queue[1:]

		if !d.allowed(ctx, url) {
			d.logger.Debugf("navigation skipping %s: robots.txt", url)
			continue
		}

		result, err := d.browser.Fetch(ctx, url)
		if err != nil {
			d.logger.Warnf("navigation fetch of %s failed: %v", url, err)
			continue
		}
		out.Pages = append(out.Pages, result)

		for _, link := range navigationLinks(result.HTML, result.FinalURL) {
			if seen[link] || extra >= MaxNavPages {
				continue
			}
			seen[link] = true
			extra++
			queue = append(queue, link)
		}
	}

	if len(out.Pages) == 0 {
		return nil, fmt.Errorf("target %s: no pages fetched during navigation", target.Name)
	}
	return out, nil
}

// monthLinkMarkers identify anchors that page through a schedule.
var monthLinkMarkers = []string{
	"next", "翌月", "次月", "来月", ">>", "»",
}

// navigationLinks extracts iframe sources and month pagination links
// from a schedule page, resolved against the page URL.
func navigationLinks(html, base string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if resolved := resolveAgainst(base, src); resolved != "" {
			links = append(links, resolved)
		}
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		if text == "" || !isMonthLink(text) {
			return
		}
		href, _ := sel.Attr("href")
		if resolved := resolveAgainst(base, href); resolved != "" {
			links = append(links, resolved)
		}
	})
	return links
}

func isMonthLink(text string) bool {
	for _, marker := range monthLinkMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	// "7月", "12月" style month tabs.
	if strings.HasSuffix(text, "月") && len([]rune(text)) <= 4 {
		return true
	}
	return false
}

func resolveAgainst(base, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "#") {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := b.ResolveReference(r)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
