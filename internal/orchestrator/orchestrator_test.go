// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/valpere/GigScrapexter/internal/confidence"
	"github.com/valpere/GigScrapexter/internal/dispatch"
	"github.com/valpere/GigScrapexter/internal/extract"
	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/registry"
	"github.com/valpere/GigScrapexter/internal/resilience"
	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// stubDispatcher serves canned outcomes or errors keyed by target
// name.
type stubDispatcher struct {
	outcomes map[string]*dispatch.Outcome
	errs     map[string]error
}

func (s *stubDispatcher) Fetch(ctx context.Context, target *registry.Target) (*dispatch.Outcome, error) {
	if err, ok := s.errs[target.Name]; ok {
		return nil, err
	}
	if outcome, ok := s.outcomes[target.Name]; ok {
		return outcome, nil
	}
	return nil, fmt.Errorf("no outcome for %s", target.Name)
}

// fakeStore is an in-memory store.Store for pipeline tests.
type fakeStore struct {
	mu       sync.Mutex
	venues   map[string]int64
	bands    map[string]int64
	events   map[string]int64
	bookings map[string]bool
	saved    []*types.Event
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		venues:   make(map[string]int64),
		bands:    make(map[string]int64),
		events:   make(map[string]int64),
		bookings: make(map[string]bool),
	}
}

func (f *fakeStore) id() int64 { f.nextID++; return f.nextID }

func (f *fakeStore) FindOrCreateVenue(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.venues[name]; ok {
		return id, nil
	}
	f.venues[name] = f.id()
	return f.venues[name], nil
}

func (f *fakeStore) FindOrCreateBand(ctx context.Context, name, genreHint string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.bands[name]; ok {
		return id, nil
	}
	f.bands[name] = f.id()
	return f.bands[name], nil
}

func (f *fakeStore) UpsertEvent(ctx context.Context, venueID int64, ev *types.Event) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d|%s", venueID, ev.Date.Format("2006-01-02"))
	f.saved = append(f.saved, ev)
	if id, ok := f.events[key]; ok {
		return id, false, nil
	}
	f.events[key] = f.id()
	return f.events[key], true, nil
}

func (f *fakeStore) EnsureBooking(ctx context.Context, eventID, bandID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[fmt.Sprintf("%d|%d", eventID, bandID)] = true
	return nil
}

func (f *fakeStore) RecentEventCount(venue string) int         { return 6 }
func (f *fakeStore) TypicalWeekdays(venue string) []time.Weekday { return nil }
func (f *fakeStore) Ping(ctx context.Context) error            { return nil }
func (f *fakeStore) Close() error                              { return nil }

// schedulePage builds a page with a JSON-LD event two weeks out.
func schedulePage(title string, performers ...string) string {
	date := time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	perf := ""
	for i, p := range performers {
		if i > 0 {
			perf += ","
		}
		perf += fmt.Sprintf(`{"@type":"MusicGroup","name":%q}`, p)
	}
	return fmt.Sprintf(`<html><body>
<script type="application/ld+json">
{"@type":"MusicEvent","name":%q,"startDate":%q,"performer":[%s]}
</script>
</body></html>`, title, date, perf)
}

func testTarget(name string, proven bool) *registry.Target {
	return &registry.Target{
		Name:     name,
		URLs:     []string{"https://" + name + ".example/schedule"},
		Strategy: types.StrategyLightweightFirst,
		Proven:   proven,
	}
}

func outcomeFor(target *registry.Target, html string) *dispatch.Outcome {
	return &dispatch.Outcome{
		Pages: []*fetch.Result{{
			HTML:     html,
			Status:   200,
			FinalURL: target.PrimaryURL(),
			Duration: 800 * time.Millisecond,
		}},
		Method: dispatch.MethodHTTP,
	}
}

func newTestState(t *testing.T) *statestore.Store {
	t.Helper()
	state, err := statestore.New(&statestore.Config{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("statestore.New() error = %v", err)
	}
	return state
}

func newTestOrchestrator(t *testing.T, cfg *Config, dispatcher Dispatcher, st *fakeStore, state *statestore.Store, reg *registry.Registry) *Orchestrator {
	t.Helper()
	if cfg.Retry == nil {
		cfg.Retry = &resilience.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond}
	}
	o, err := New(cfg, Deps{
		Registry:   reg,
		Dispatcher: dispatcher,
		Extractor:  extract.New(nil),
		Bands:      extract.NewBandExtractor(),
		Confidence: confidence.New(st, nil),
		Store:      st,
		State:      state,
		Breaker:    resilience.NewCircuitBreaker(nil, nil),
		Blacklist:  resilience.NewBlacklist(state, nil),
		Limiter:    resilience.NewAdaptiveRateLimiter(state, nil),
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestRunPersistsExtractedEvents(t *testing.T) {
	// "aaa-live" sorts ahead of the seed targets, so MaxTargets 1
	// plans exactly this target.
	reg := registry.New(nil)
	target := testTarget("aaa-live", true)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	dispatcher := &stubDispatcher{outcomes: map[string]*dispatch.Outcome{
		"aaa-live": outcomeFor(target, schedulePage("Cornelius / Guitar Wolf", "Cornelius", "Guitar Wolf")),
	}}
	st := newFakeStore()
	o := newTestOrchestrator(t, &Config{Mode: "weekly", MaxTargets: 1, Parallelism: 2}, dispatcher, st, newTestState(t), reg)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.TargetsCompleted != 1 || summary.TargetsFailed != 0 {
		t.Errorf("completed=%d failed=%d, want 1/0", summary.TargetsCompleted, summary.TargetsFailed)
	}
	if summary.EventsSaved != 1 {
		t.Fatalf("EventsSaved = %d, want 1", summary.EventsSaved)
	}
	if _, ok := st.venues["aaa-live"]; !ok {
		t.Error("venue row not created")
	}
	if _, ok := st.bands["Cornelius"]; !ok {
		t.Error("band Cornelius not created")
	}
	if _, ok := st.bands["Guitar Wolf"]; !ok {
		t.Error("band Guitar Wolf not created")
	}
	if len(st.bookings) != 2 {
		t.Errorf("bookings = %d, want 2", len(st.bookings))
	}
}

func TestRunRecordsFailureForBackup(t *testing.T) {
	reg := registry.New(nil)
	target := testTarget("aaa-broken", false)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	dispatcher := &stubDispatcher{errs: map[string]error{
		"aaa-broken": fetch.Classify(target.PrimaryURL(), 0, context.DeadlineExceeded),
	}}
	state := newTestState(t)
	o := newTestOrchestrator(t, &Config{Mode: "weekly", MaxTargets: 1}, dispatcher, newFakeStore(), state, reg)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TargetsFailed != 1 {
		t.Fatalf("TargetsFailed = %d, want 1", summary.TargetsFailed)
	}

	var failed []string
	if _, err := state.Load(lastFailuresDoc, &failed); err != nil {
		t.Fatalf("loading failures: %v", err)
	}
	if len(failed) != 1 || failed[0] != "aaa-broken" {
		t.Errorf("failure list = %v, want [aaa-broken]", failed)
	}
}

func TestBackupModePlansOnlyLastFailures(t *testing.T) {
	reg := registry.New(nil)
	working := testTarget("aaa-live", false)
	broken := testTarget("aab-broken", false)
	for _, target := range []*registry.Target{working, broken} {
		if err := reg.Add(target); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	state := newTestState(t)
	if err := state.Save(lastFailuresDoc, []string{"aab-broken"}); err != nil {
		t.Fatalf("seeding failures: %v", err)
	}

	dispatcher := &stubDispatcher{outcomes: map[string]*dispatch.Outcome{
		"aab-broken": outcomeFor(broken, schedulePage("Recovered Night", "Melt-Banana")),
	}}
	o := newTestOrchestrator(t, &Config{Mode: "backup"}, dispatcher, newFakeStore(), state, reg)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TargetsPlanned != 1 {
		t.Errorf("TargetsPlanned = %d, want only the failed target", summary.TargetsPlanned)
	}
	if summary.TargetsCompleted != 1 {
		t.Errorf("TargetsCompleted = %d, want 1", summary.TargetsCompleted)
	}
}

func TestRunSkipsBlacklistedTarget(t *testing.T) {
	reg := registry.New(nil)
	target := testTarget("aaa-dead", false)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	state := newTestState(t)
	blacklist := resilience.NewBlacklist(state, nil)
	for i := 0; i < resilience.BlacklistNoContentThreshold; i++ {
		blacklist.RecordNoContent("aaa-dead")
	}

	o, err := New(&Config{Mode: "weekly", MaxTargets: 1}, Deps{
		Registry:   reg,
		Dispatcher: &stubDispatcher{},
		Extractor:  extract.New(nil),
		Confidence: confidence.New(nil, nil),
		Store:      newFakeStore(),
		State:      state,
		Blacklist:  blacklist,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TargetsSkipped != 1 {
		t.Errorf("TargetsSkipped = %d, want 1", summary.TargetsSkipped)
	}
}

func TestRunSkipsSocialMediaTarget(t *testing.T) {
	reg := registry.New(nil)
	target := testTarget("aaa-insta", false)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	dispatcher := &stubDispatcher{errs: map[string]error{
		"aaa-insta": fmt.Errorf("aaa-insta: %w", dispatch.ErrSkipTarget),
	}}
	o := newTestOrchestrator(t, &Config{Mode: "weekly", MaxTargets: 1}, dispatcher, newFakeStore(), newTestState(t), reg)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TargetsSkipped != 1 || summary.TargetsFailed != 0 {
		t.Errorf("skipped=%d failed=%d, want 1/0", summary.TargetsSkipped, summary.TargetsFailed)
	}
}

func TestRunToleratesSingleQuietRun(t *testing.T) {
	reg := registry.New(nil)
	target := testTarget("aaa-empty", false)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// The page fetches fine but carries no schedule at all.
	dispatcher := &stubDispatcher{outcomes: map[string]*dispatch.Outcome{
		"aaa-empty": outcomeFor(target, "<html><body><p>under construction</p></body></html>"),
	}}
	state := newTestState(t)
	blacklist := resilience.NewBlacklist(state, nil)

	o, err := New(&Config{Mode: "weekly", MaxTargets: 1}, Deps{
		Registry:   reg,
		Dispatcher: dispatcher,
		Extractor:  extract.New(nil),
		Confidence: confidence.New(nil, nil),
		Store:      newFakeStore(),
		State:      state,
		Blacklist:  blacklist,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TargetsCompleted != 1 || summary.EventsFound != 0 {
		t.Errorf("completed=%d found=%d, want 1/0", summary.TargetsCompleted, summary.EventsFound)
	}
	// One empty week is not grounds for dropping a venue.
	if _, ok := blacklist.Contains("aaa-empty"); ok {
		t.Error("target blacklisted after a single quiet run")
	}
}

func TestRunRecoversAfterQuietWeek(t *testing.T) {
	reg := registry.New(nil)
	target := testTarget("aaa-seasonal", true)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	dispatcher := &stubDispatcher{outcomes: map[string]*dispatch.Outcome{
		"aaa-seasonal": outcomeFor(target, "<html><body><p>no shows this week</p></body></html>"),
	}}
	state := newTestState(t)
	st := newFakeStore()
	o := newTestOrchestrator(t, &Config{Mode: "weekly", MaxTargets: 1}, dispatcher, st, state, reg)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// Next week the venue has a lineup again and must still be
	// scheduled.
	dispatcher.outcomes["aaa-seasonal"] = outcomeFor(target, schedulePage("Boris / Melt-Banana", "Boris", "Melt-Banana"))

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if summary.TargetsCompleted != 1 || summary.EventsSaved != 1 {
		t.Errorf("completed=%d saved=%d, want 1/1", summary.TargetsCompleted, summary.EventsSaved)
	}
	if _, ok := st.venues["aaa-seasonal"]; !ok {
		t.Error("venue row not created on the eventful run")
	}
}

func TestRunKeepsExtractionMethodOnSavedEvents(t *testing.T) {
	reg := registry.New(nil)
	target := testTarget("aaa-live", true)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	dispatcher := &stubDispatcher{outcomes: map[string]*dispatch.Outcome{
		"aaa-live": outcomeFor(target, schedulePage("Shonen Knife", "Shonen Knife")),
	}}
	st := newFakeStore()
	o := newTestOrchestrator(t, &Config{Mode: "weekly", MaxTargets: 1}, dispatcher, st, newTestState(t), reg)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(st.saved) != 1 {
		t.Fatalf("saved %d events, want 1", len(st.saved))
	}
	// The extraction path and the transport are separate provenance:
	// neither may overwrite the other.
	ev := st.saved[0]
	if ev.Method != "jsonld" {
		t.Errorf("Method = %q, want %q", ev.Method, "jsonld")
	}
	if ev.FetchMethod != dispatch.MethodHTTP {
		t.Errorf("FetchMethod = %q, want %q", ev.FetchMethod, dispatch.MethodHTTP)
	}
}

// slowDispatcher takes longer than the run deadline and fails if the
// context is cancelled underneath it.
type slowDispatcher struct {
	delay   time.Duration
	outcome *dispatch.Outcome
}

func (s *slowDispatcher) Fetch(ctx context.Context, target *registry.Target) (*dispatch.Outcome, error) {
	select {
	case <-time.After(s.delay):
		return s.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRunDeadlineLetsInFlightTargetFinish(t *testing.T) {
	reg := registry.New(nil)
	target := testTarget("aaa-slow", true)
	if err := reg.Add(target); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	dispatcher := &slowDispatcher{
		delay:   50 * time.Millisecond,
		outcome: outcomeFor(target, schedulePage("Acid Mothers Temple", "Acid Mothers Temple")),
	}
	st := newFakeStore()
	o := newTestOrchestrator(t, &Config{
		Mode:        "weekly",
		MaxTargets:  1,
		Parallelism: 1,
		MaxDuration: 10 * time.Millisecond,
	}, dispatcher, st, newTestState(t), reg)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The deadline fires while the fetch is underway; the target
	// must still complete and its events persist.
	if summary.TargetsCompleted != 1 {
		t.Errorf("TargetsCompleted = %d, want 1", summary.TargetsCompleted)
	}
	if summary.EventsSaved != 1 {
		t.Errorf("EventsSaved = %d, want 1", summary.EventsSaved)
	}
}

func TestNewRequiresCoreDeps(t *testing.T) {
	_, err := New(nil, Deps{}, nil)
	if err == nil {
		t.Fatal("New() with empty deps should fail")
	}
}
