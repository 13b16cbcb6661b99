// internal/orchestrator/orchestrator.go

// Package orchestrator runs the full scraping pipeline: it plans the
// target list for the requested mode, fans targets out to a bounded
// worker pool, and pushes each target through dispatch, extraction,
// validation and persistence. A run has a global deadline; when it
// passes, no new targets are scheduled; targets already in flight
// are allowed to finish so their events are not thrown away.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/valpere/GigScrapexter/internal/confidence"
	"github.com/valpere/GigScrapexter/internal/dispatch"
	"github.com/valpere/GigScrapexter/internal/extract"
	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/monitoring"
	"github.com/valpere/GigScrapexter/internal/registry"
	"github.com/valpere/GigScrapexter/internal/resilience"
	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/internal/store"
	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

const (
	// DefaultTargetTimeout bounds one target's whole pipeline.
	DefaultTargetTimeout = 2 * time.Minute

	// lastFailuresDoc is the state document backup mode reads.
	lastFailuresDoc = "last_failures"
)

// Dispatcher routes a target to a fetching strategy.
type Dispatcher interface {
	Fetch(ctx context.Context, target *registry.Target) (*dispatch.Outcome, error)
}

// Downloader retrieves binary resources: flyer images and PDFs.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// OCRChain turns downloaded flyer images into events.
type OCRChain interface {
	ExtractEvents(ctx context.Context, target, venue, sourceURL string, imagePaths []string) []*types.Event
}

// PDFReader extracts text from schedule PDFs, rendering pages to
// images when the PDF carries no text layer.
type PDFReader interface {
	ExtractText(path string) (string, error)
	RenderPages(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// Config controls a run
type Config struct {
	Mode          string        `yaml:"mode" json:"mode"`
	Parallelism   int           `yaml:"parallelism" json:"parallelism"`
	MaxTargets    int           `yaml:"max_targets" json:"max_targets"`
	MaxDuration   time.Duration `yaml:"max_duration" json:"max_duration"`
	TargetTimeout time.Duration `yaml:"target_timeout" json:"target_timeout"`

	// Retry controls transient-failure retries around the fetch.
	// nil uses the resilience package defaults.
	Retry *resilience.RetryConfig `yaml:"retry" json:"retry"`
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "weekly"
	}
	if c.Parallelism == 0 {
		c.Parallelism = 4
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = 2 * time.Hour
	}
	if c.TargetTimeout == 0 {
		c.TargetTimeout = DefaultTargetTimeout
	}
}

// Deps are the pipeline components the orchestrator wires together.
// Metrics, OCR, PDF and Downloader may be nil; the corresponding
// stages are skipped.
type Deps struct {
	Registry   *registry.Registry
	Dispatcher Dispatcher
	Extractor  *extract.Extractor
	Bands      *extract.BandExtractor
	Confidence *confidence.Engine
	Store      store.Store
	State      *statestore.Store
	Breaker    *resilience.CircuitBreaker
	Blacklist  *resilience.Blacklist
	Limiter    *resilience.AdaptiveRateLimiter
	Memory     *resilience.MemoryMonitor
	OCR        OCRChain
	PDF        PDFReader
	Downloader Downloader
	Metrics    *monitoring.MetricsManager
}

// Orchestrator coordinates a scraping run.
type Orchestrator struct {
	config Config
	deps   Deps
	logger utils.Logger
	now    func() time.Time
}

// New creates an Orchestrator.
func New(config *Config, deps Deps, logger utils.Logger) (*Orchestrator, error) {
	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()

	if logger == nil {
		logger = utils.NewLogger()
	}

	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("orchestrator requires a registry")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("orchestrator requires a dispatcher")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("orchestrator requires an extractor")
	case deps.Confidence == nil:
		return nil, fmt.Errorf("orchestrator requires a confidence engine")
	case deps.Store == nil:
		return nil, fmt.Errorf("orchestrator requires a store")
	}

	if deps.Bands == nil {
		deps.Bands = extract.NewBandExtractor()
	}

	return &Orchestrator{
		config: *config,
		deps:   deps,
		logger: logger.WithField("component", "orchestrator"),
		now:    time.Now,
	}, nil
}

// Run executes one scraping run and returns its summary.
func (o *Orchestrator) Run(ctx context.Context) (*types.RunSummary, error) {
	started := o.now()

	targets, err := o.plan()
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets to process in %s mode", o.config.Mode)
	}

	// Proven venues have years of history; protection machinery
	// must never lock them out.
	for _, t := range targets {
		if t.Proven {
			if o.deps.Breaker != nil {
				o.deps.Breaker.Exempt(t.Name)
			}
			if o.deps.Blacklist != nil {
				o.deps.Blacklist.Exempt(t.Name)
			}
		}
	}

	o.logger.Infof("starting %s run: %d targets, parallelism %d, deadline %s",
		o.config.Mode, len(targets), o.config.Parallelism, o.config.MaxDuration)

	runCtx, cancel := context.WithTimeout(ctx, o.config.MaxDuration)
	defer cancel()

	jobs := make(chan *registry.Target)
	results := make(chan types.TargetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < o.config.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				// Workers run on the parent context: the deadline
				// stops new targets being dispatched, it does not
				// abort one that is mid-flight.
				results <- o.processTarget(ctx, target)
				if o.deps.Memory != nil {
					o.deps.Memory.Check()
				}
				if o.deps.Metrics != nil {
					o.deps.Metrics.UpdateSystemMetrics()
				}
			}
		}()
	}

	scheduled := 0
feed:
	for _, target := range targets {
		select {
		case jobs <- target:
			scheduled++
		case <-runCtx.Done():
			o.logger.Warnf("run deadline reached, %d of %d targets scheduled", scheduled, len(targets))
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	summary := &types.RunSummary{
		StartedAt:      started,
		Mode:           o.config.Mode,
		TargetsPlanned: len(targets),
	}
	var failures []string
	for result := range results {
		summary.Results = append(summary.Results, result)
		summary.EventsFound += result.EventsFound
		summary.EventsSaved += result.EventsSaved
		switch {
		case result.Skipped:
			summary.TargetsSkipped++
		case result.Success:
			summary.TargetsCompleted++
		default:
			summary.TargetsFailed++
			failures = append(failures, result.Target)
		}
	}
	summary.Duration = o.now().Sub(started)

	o.record(summary, failures)
	o.logger.Infof("%s", summary)

	return summary, nil
}

// plan selects and orders the targets for this run's mode.
func (o *Orchestrator) plan() ([]*registry.Target, error) {
	var targets []*registry.Target

	switch o.config.Mode {
	case "test":
		targets = o.deps.Registry.Proven()
	case "backup":
		var failed []string
		if o.deps.State != nil {
			if _, err := o.deps.State.Load(lastFailuresDoc, &failed); err != nil {
				o.logger.Warnf("loading last failures: %v", err)
			}
		}
		for _, name := range failed {
			if target, ok := o.deps.Registry.Get(name); ok {
				targets = append(targets, target)
			}
		}
	default:
		targets = o.deps.Registry.All()
	}

	if o.config.MaxTargets > 0 && len(targets) > o.config.MaxTargets {
		targets = targets[:o.config.MaxTargets]
	}
	return targets, nil
}

// record persists the run's session entry and the failure list that
// the next backup run will retry.
func (o *Orchestrator) record(summary *types.RunSummary, failures []string) {
	if o.deps.Metrics != nil {
		outcome := "success"
		if summary.TargetsFailed > 0 {
			outcome = "partial"
		}
		o.deps.Metrics.RecordRun(summary.Mode, outcome, summary.Duration)
	}

	if o.deps.State == nil {
		return
	}
	entry := statestore.SessionEntry{
		StartedAt:       summary.StartedAt,
		Mode:            summary.Mode,
		TargetsPlanned:  summary.TargetsPlanned,
		TargetsComplete: summary.TargetsCompleted,
		Errors:          summary.TargetsFailed,
		EventsSaved:     summary.EventsSaved,
		DurationMinutes: summary.Duration.Minutes(),
	}
	if err := o.deps.State.AppendSession(entry); err != nil {
		o.logger.Warnf("appending session entry: %v", err)
	}
	if failures == nil {
		failures = []string{}
	}
	if err := o.deps.State.Save(lastFailuresDoc, failures); err != nil {
		o.logger.Warnf("saving failure list: %v", err)
	}
}

// skipResult builds a skipped TargetResult.
func skipResult(target *registry.Target, reason string) types.TargetResult {
	return types.TargetResult{
		Target:     target.Name,
		Skipped:    true,
		SkipReason: reason,
		Strategy:   target.Strategy,
	}
}

// processTarget runs one target through the whole pipeline.
func (o *Orchestrator) processTarget(ctx context.Context, target *registry.Target) types.TargetResult {
	started := o.now()
	logger := o.logger.WithField("target", target.Name)

	finish := func(result types.TargetResult) types.TargetResult {
		result.Duration = o.now().Sub(started)
		if o.deps.Metrics != nil {
			outcome := "failed"
			switch {
			case result.Skipped:
				outcome = "skipped"
			case result.Success:
				outcome = "success"
			}
			o.deps.Metrics.RecordTargetProcessed(outcome, result.Duration)
		}
		return result
	}

	if o.deps.Blacklist != nil {
		if reason, ok := o.deps.Blacklist.Contains(target.Name); ok {
			logger.Debugf("skipping: blacklisted (%s)", reason)
			return finish(skipResult(target, fmt.Sprintf("blacklisted: %s", reason)))
		}
	}
	if o.deps.Breaker != nil && !o.deps.Breaker.Allow(target.Name) {
		logger.Debugf("skipping: circuit open")
		return finish(skipResult(target, "circuit open"))
	}

	if o.deps.Limiter != nil {
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordRateLimitWait(target.Name, o.deps.Limiter.Delay(target.Name))
		}
		if err := o.deps.Limiter.Wait(ctx, target.Name); err != nil {
			return finish(skipResult(target, "run cancelled during rate limit wait"))
		}
	}

	targetCtx, cancel := context.WithTimeout(ctx, o.config.TargetTimeout)
	defer cancel()

	var outcome *dispatch.Outcome
	err := resilience.Do(targetCtx, o.config.Retry, func() error {
		var ferr error
		outcome, ferr = o.deps.Dispatcher.Fetch(targetCtx, target)
		return ferr
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrSkipTarget) {
			return finish(skipResult(target, err.Error()))
		}
		kind := fetch.KindOf(err)
		logger.Warnf("fetch failed (%s): %v", kind, err)
		o.recordFailure(target.Name, kind)
		return finish(types.TargetResult{
			Target:   target.Name,
			Strategy: target.Strategy,
			Error:    err.Error(),
		})
	}

	if len(outcome.Pages) > 0 {
		pageTime := outcome.Pages[0].Duration
		if o.deps.Limiter != nil && pageTime > 0 {
			o.deps.Limiter.ReportLatency(target.Name, pageTime)
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordFetch(outcome.Method, target.Name, pageTime)
		}
	}

	events := o.extractEvents(targetCtx, target, outcome)
	events = extract.FilterValid(events, o.now())

	if o.deps.Breaker != nil {
		o.deps.Breaker.RecordSuccess(target.Name)
	}
	if o.deps.Blacklist != nil {
		if len(events) == 0 {
			o.deps.Blacklist.RecordNoContent(target.Name)
		} else {
			o.deps.Blacklist.RecordSuccess(target.Name)
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.UpdateBlacklistSize(o.deps.Blacklist.Len())
		}
	}

	if len(events) == 0 {
		logger.Infof("no events found")
		return finish(types.TargetResult{
			Target:   target.Name,
			Success:  true,
			Strategy: target.Strategy,
		})
	}

	saved := 0
	for _, event := range events {
		if len(event.Performers) == 0 {
			event.Performers = o.deps.Bands.Extract(event.Title, event.Artists, event.RawText)
		}

		report := o.deps.Confidence.Assess(event, confidence.Context{
			VenueProven: target.Proven,
			FetchedOK:   true,
		})
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordEventValidated(string(report.Status))
		}
		if !report.Status.Persistable() {
			logger.Debugf("rejecting %q on %s: confidence %.2f",
				event.Title, event.Date.Format("2006-01-02"), report.Overall)
			continue
		}

		if err := o.persist(targetCtx, target, event); err != nil {
			logger.Warnf("persisting %q: %v", event.Title, err)
			continue
		}
		saved++
	}

	logger.Infof("done: %d events found, %d saved", len(events), saved)
	return finish(types.TargetResult{
		Target:      target.Name,
		Success:     true,
		Strategy:    target.Strategy,
		EventsFound: len(events),
		EventsSaved: saved,
	})
}

func (o *Orchestrator) recordFailure(target string, kind fetch.ErrorKind) {
	if o.deps.Breaker != nil {
		o.deps.Breaker.RecordFailure(target, kind)
	}
	if o.deps.Blacklist != nil {
		o.deps.Blacklist.RecordFailure(target, kind)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordFetchError(string(kind), target)
	}
}

// extractEvents pulls events from the fetched pages, deduplicated
// across pages and extraction methods.
func (o *Orchestrator) extractEvents(ctx context.Context, target *registry.Target, outcome *dispatch.Outcome) []*types.Event {
	if outcome.UseOCR {
		return o.ocrEvents(ctx, target, outcome)
	}

	selectors := o.selectorsFor(target)

	started := o.now()
	seen := make(map[string]bool)
	var events []*types.Event
	for _, page := range outcome.Pages {
		for _, event := range o.deps.Extractor.Extract(page.HTML, target.Name, page.FinalURL, selectors) {
			if seen[event.Key()] {
				continue
			}
			seen[event.Key()] = true
			event.FetchMethod = outcome.Method
			events = append(events, event)
		}
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordEventsExtracted(target.Name, outcome.Method, len(events))
		o.deps.Metrics.RecordExtractionTime(target.Name, o.now().Sub(started))
	}
	return events
}

// selectorsFor puts the target's own selectors ahead of the general
// fallback sets.
func (o *Orchestrator) selectorsFor(target *registry.Target) []registry.SelectorSet {
	general := registry.GeneralSelectors()
	if target.Selectors == (registry.SelectorSet{}) {
		return general
	}
	return append([]registry.SelectorSet{target.Selectors}, general...)
}

// persist writes one validated event through the store: venue and
// bands find-or-create, event upsert, booking rows.
func (o *Orchestrator) persist(ctx context.Context, target *registry.Target, event *types.Event) error {
	venueID, err := o.deps.Store.FindOrCreateVenue(ctx, target.Name)
	if err != nil {
		o.recordWriteError("venue")
		return fmt.Errorf("finding venue: %w", err)
	}

	eventID, created, err := o.deps.Store.UpsertEvent(ctx, venueID, event)
	if err != nil {
		o.recordWriteError("event")
		return fmt.Errorf("upserting event: %w", err)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordEventWritten(created)
	}

	for _, performer := range event.Performers {
		bandID, err := o.deps.Store.FindOrCreateBand(ctx, performer, target.GenreHint)
		if err != nil {
			o.recordWriteError("band")
			return fmt.Errorf("finding band %q: %w", performer, err)
		}
		if err := o.deps.Store.EnsureBooking(ctx, eventID, bandID); err != nil {
			o.recordWriteError("booking")
			return fmt.Errorf("booking band %q: %w", performer, err)
		}
	}
	return nil
}

func (o *Orchestrator) recordWriteError(operation string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordWriteError(operation)
	}
}
