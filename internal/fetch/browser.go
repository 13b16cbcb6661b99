// internal/fetch/browser.go
package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// Browser timing constants
const (
	DefaultBrowserTimeout = 60 * time.Second
	DefaultSettleWait     = 3 * time.Second
	BypassInitialWait     = 5 * time.Second
	BypassChallengeWait   = 10 * time.Second
)

// maskWebdriverScript hides the automation fingerprint that challenge
// pages look for first.
const maskWebdriverScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['ja-JP', 'ja', 'en-US'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
`

// challengeMarkers appear in interstitial pages served by bot
// protection while it decides whether to let the client through.
var challengeMarkers = []string{
	"just a moment",
	"checking your browser",
	"verify you are human",
	"cf-challenge",
	"challenge-platform",
}

// BrowserConfig configures the headless browser fetcher.
type BrowserConfig struct {
	Headless      bool          `yaml:"headless" json:"headless"`
	DisableImages bool          `yaml:"disable_images" json:"disable_images"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	SettleWait    time.Duration `yaml:"settle_wait" json:"settle_wait"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
}

func (c *BrowserConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultBrowserTimeout
	}
	if c.SettleWait == 0 {
		c.SettleWait = DefaultSettleWait
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgents[0]
	}
}

// BrowserFetcher renders pages in headless Chrome. A single allocator
// is shared across fetches; each fetch runs in a fresh browser context
// so one stuck page cannot poison the next target.
type BrowserFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	config      *BrowserConfig
	logger      utils.Logger
}

// NewBrowserFetcher starts the shared Chrome allocator.
func NewBrowserFetcher(config *BrowserConfig, logger utils.Logger) *BrowserFetcher {
	if config == nil {
		config = &BrowserConfig{Headless: true, DisableImages: true}
	}
	config.applyDefaults()
	if logger == nil {
		logger = utils.NewLogger()
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
		chromedp.UserAgent(config.UserAgent),
	}
	if config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserFetcher{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		config:      config,
		logger:      logger.WithField("fetcher", "browser"),
	}
}

// Fetch renders a page and returns its HTML after the settle wait.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	return f.fetch(ctx, url, false)
}

// FetchWithBypass renders a page with the automation fingerprint
// masked and longer waits, for targets behind bot protection. If a
// challenge interstitial is still up after the initial wait, it waits
// once more for the challenge to resolve.
func (f *BrowserFetcher) FetchWithBypass(ctx context.Context, url string) (*Result, error) {
	return f.fetch(ctx, url, true)
}

func (f *BrowserFetcher) fetch(ctx context.Context, url string, bypass bool) (*Result, error) {
	start := time.Now()

	browserCtx, cancel := chromedp.NewContext(f.allocCtx)
	defer cancel()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, f.config.Timeout)
	defer cancelTimeout()

	// Honor the caller's deadline if it is sooner.
	if deadline, ok := ctx.Deadline(); ok {
		var cancelCaller context.CancelFunc
		browserCtx, cancelCaller = context.WithDeadline(browserCtx, deadline)
		defer cancelCaller()
	}

	settle := f.config.SettleWait
	tasks := []chromedp.Action{}
	if bypass {
		settle = BypassInitialWait
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(maskWebdriverScript).Do(ctx)
			return err
		}))
	}
	tasks = append(tasks,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(settle),
	)

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(browserCtx, tasks...); err != nil {
		return nil, Classify(url, 0, fmt.Errorf("browser navigation: %w", err))
	}

	if bypass && looksLikeChallenge(html) {
		f.logger.Infof("challenge page detected at %s, waiting for resolution", url)
		if err := chromedp.Run(browserCtx,
			chromedp.Sleep(BypassChallengeWait),
			chromedp.OuterHTML("html", &html),
		); err != nil {
			return nil, Classify(url, 0, fmt.Errorf("challenge wait: %w", err))
		}
		if looksLikeChallenge(html) {
			return nil, &Error{Kind: KindBlocked, URL: url, Err: fmt.Errorf("challenge page did not resolve")}
		}
	}

	return &Result{
		HTML:     html,
		Status:   200,
		FinalURL: url,
		Duration: time.Since(start),
	}, nil
}

// looksLikeChallenge reports whether the HTML is a bot protection
// interstitial rather than real content.
func looksLikeChallenge(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Close shuts down the shared allocator.
func (f *BrowserFetcher) Close() error {
	if f.allocCancel != nil {
		f.allocCancel()
	}
	return nil
}
