// internal/registry/registry.go
package registry

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

// SelectorSet holds the CSS selectors for pulling schedule data out of
// a target page. All fields are optional; empty selectors fall back to
// the general selector sets.
type SelectorSet struct {
	Events     string `yaml:"events" json:"events"`
	Title      string `yaml:"title" json:"title"`
	Date       string `yaml:"date" json:"date"`
	Time       string `yaml:"time" json:"time"`
	Performers string `yaml:"performers" json:"performers"`
	Price      string `yaml:"price" json:"price"`
}

// Target describes one venue website to scrape. Proven targets have
// hand-tuned configurations that are known to work and are exempt from
// automatic blacklisting and circuit breaking.
type Target struct {
	Name            string                `yaml:"name" json:"name"`
	URLs            []string              `yaml:"urls" json:"urls"`
	Strategy        types.Strategy        `yaml:"strategy" json:"strategy"`
	Selectors       SelectorSet           `yaml:"selectors" json:"selectors"`
	SpecialHandling types.SpecialHandling `yaml:"special_handling" json:"special_handling"`
	Proven          bool                  `yaml:"proven" json:"proven"`
	GenreHint       string                `yaml:"genre_hint" json:"genre_hint"`
}

// PrimaryURL returns the first configured URL.
func (t *Target) PrimaryURL() string {
	if len(t.URLs) == 0 {
		return ""
	}
	return t.URLs[0]
}

// targetsFile is the on-disk shape of a targets YAML document.
type targetsFile struct {
	Targets []*Target `yaml:"targets"`
}

// Registry holds the full set of scrape targets for a run: the
// built-in proven set merged with targets loaded from configuration.
// Loaded targets override seeds with the same name.
type Registry struct {
	targets map[string]*Target
	logger  utils.Logger
	mu      sync.RWMutex
}

// New creates a registry pre-populated with the proven seed targets.
func New(logger utils.Logger) *Registry {
	if logger == nil {
		logger = utils.NewLogger()
	}

	r := &Registry{
		targets: make(map[string]*Target),
		logger:  logger.WithField("component", "registry"),
	}
	for _, t := range provenTargets() {
		r.targets[t.Name] = t
	}
	return r
}

// LoadFile merges targets from a YAML file into the registry. Invalid
// targets fail the whole load so a typo cannot silently drop a venue.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading targets file: %w", err)
	}

	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing targets file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range file.Targets {
		if err := validateTarget(t); err != nil {
			return fmt.Errorf("target %d (%s): %w", i, t.Name, err)
		}
		if t.Strategy == "" {
			t.Strategy = types.StrategyAutoDetect
		}
		if existing, ok := r.targets[t.Name]; ok {
			r.logger.Debugf("target %s overrides seed definition (%d urls)", t.Name, len(existing.URLs))
		}
		r.targets[t.Name] = t
	}

	r.logger.Infof("registry loaded: %d targets", len(r.targets))
	return nil
}

// Add validates and inserts a single target, replacing any existing
// definition with the same name.
func (r *Registry) Add(t *Target) error {
	if err := validateTarget(t); err != nil {
		return err
	}
	if t.Strategy == "" {
		t.Strategy = types.StrategyAutoDetect
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.Name] = t
	return nil
}

// validateTarget checks a single target definition.
func validateTarget(t *Target) error {
	if t == nil {
		return fmt.Errorf("target is nil")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("target name is required")
	}
	if len(t.URLs) == 0 {
		return fmt.Errorf("at least one URL is required")
	}
	for _, raw := range t.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid URL %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("URL %q must be http or https", raw)
		}
	}
	if t.Strategy != "" && !t.Strategy.IsValid() {
		return fmt.Errorf("unknown strategy %q", t.Strategy)
	}
	return nil
}

// Get returns the named target.
func (r *Registry) Get(name string) (*Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[name]
	return t, ok
}

// All returns every registered target, sorted by name so that runs
// process targets in a stable order.
func (r *Registry) All() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Proven returns only the hand-tuned proven targets.
func (r *Registry) Proven() []*Target {
	var out []*Target
	for _, t := range r.All() {
		if t.Proven {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// GeneralSelectors returns the fallback selector sets tried, in order,
// when a target has no tuned selectors. Ordered from most specific
// schedule markup to generic containers.
func GeneralSelectors() []SelectorSet {
	return []SelectorSet{
		{Events: ".schedule-item, .event-item, .live-item", Title: ".title, .event-title, h3, h4", Date: ".date, .event-date, time", Time: ".time, .open-start", Performers: ".artist, .act, .performer"},
		{Events: "article, .post, .entry", Title: "h1, h2, h3, .title", Date: ".date, time, .posted-on", Time: ".time", Performers: ".artist, .lineup"},
		{Events: "table tr", Title: "td", Date: "td", Time: "td", Performers: "td"},
		{Events: "li, .item", Title: "a, strong, b", Date: ".date, span", Time: "", Performers: ""},
	}
}

// provenTargets is the seed set of venues with hand-tuned
// configurations that have produced reliable results.
func provenTargets() []*Target {
	return []*Target{
		{
			Name:     "antiknock",
			URLs:     []string{"https://antiknock.net/schedule"},
			Strategy: types.StrategyLightweightFirst,
			Selectors: SelectorSet{
				Events: ".schedule-box",
				Title:  ".schedule-title",
				Date:   ".schedule-date",
				Time:   ".schedule-openstart",
			},
			Proven:    true,
			GenreHint: "punk",
		},
		{
			Name:     "shibuya-milkyway",
			URLs:     []string{"https://www.shibuyamilkyway.com/new/SCHEDULE/"},
			Strategy: types.StrategyEnhancedNavigation,
			Selectors: SelectorSet{
				Events: ".scheduleList li",
				Title:  ".title",
				Date:   ".date",
			},
			Proven: true,
		},
		{
			Name:     "den-atsu",
			URLs:     []string{"https://den-atsu.com/schedule/"},
			Strategy: types.StrategyBrowserOnly,
			Selectors: SelectorSet{
				Events: ".schedule-post",
				Title:  ".schedule-post-title",
				Date:   ".schedule-post-date",
			},
			Proven: true,
		},
		{
			Name:     "shimokitazawa-shelter",
			URLs:     []string{"https://www.loft-prj.co.jp/SHELTER/schedule.php"},
			Strategy: types.StrategyLightweightFirst,
			Selectors: SelectorSet{
				Events: "table.sche_table tr",
				Title:  ".event_name",
				Date:   ".day",
				Time:   ".time",
			},
			Proven: true,
		},
	}
}
