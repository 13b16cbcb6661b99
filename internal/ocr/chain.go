// internal/ocr/chain.go
package ocr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/internal/utils"
	"github.com/valpere/GigScrapexter/pkg/types"
)

const preferencesDocument = "ocr_preferences"

// Venue-level defaults share the preferences document under a
// prefixed key, so a new target at a known venue starts from the
// engine that already reads that venue's flyers.
const venuePreferencePrefix = "venue:"

// Chain runs OCR engines in preference order until one produces
// parseable events. Which engine reads a given venue's flyers best is
// stable over time, so the first success is remembered and tried
// first on the next run.
type Chain struct {
	engines []Engine
	state   *statestore.Store
	logger  utils.Logger
	now     func() time.Time

	mu          sync.Mutex
	preferences map[string]string
}

// NewChain creates a chain over the given engines, restoring learned
// preferences when a store is available.
func NewChain(engines []Engine, state *statestore.Store, logger utils.Logger) *Chain {
	if logger == nil {
		logger = utils.NewLogger()
	}

	c := &Chain{
		engines:     engines,
		state:       state,
		logger:      logger.WithField("component", "ocr"),
		now:         time.Now,
		preferences: make(map[string]string),
	}

	if state != nil {
		loaded := make(map[string]string)
		if found, err := state.Load(preferencesDocument, &loaded); err != nil {
			c.logger.Warnf("loading OCR preferences: %v", err)
		} else if found {
			c.preferences = loaded
		}
	}
	return c
}

// ExtractEvents OCRs the given images for a target and parses the
// recognized text into events. Engines are tried in order — learned
// preference first, then the default order — and the first engine
// whose text yields at least one event wins and becomes the new
// preference. Engine failures fall through silently; OCR is already
// the fallback path.
func (c *Chain) ExtractEvents(ctx context.Context, target, venue, sourceURL string, imagePaths []string) []*types.Event {
	if len(imagePaths) == 0 {
		return nil
	}

	for _, engine := range c.engineOrder(target, venue) {
		var collected []*types.Event

		for _, path := range imagePaths {
			text, err := engine.Recognize(ctx, path)
			if err != nil {
				c.logger.Debugf("engine %s failed on %s: %v", engine.Name(), path, err)
				continue
			}
			collected = append(collected, ParseScheduleText(text, venue, sourceURL, c.now())...)
		}

		if len(collected) > 0 {
			c.recordPreference(target, engine.Name())
			c.recordPreference(venuePreferencePrefix+venue, engine.Name())
			c.logger.Infof("engine %s extracted %d events for %s", engine.Name(), len(collected), target)
			return dedupe(collected)
		}
	}

	c.logger.Warnf("no OCR engine produced events for %s (%d images)", target, len(imagePaths))
	return nil
}

// engineOrder returns the chain reordered for a target: the target's
// own preference first, then the venue's default engine, then the
// remaining engines in configured order.
func (c *Chain) engineOrder(target, venue string) []Engine {
	c.mu.Lock()
	front := []string{c.preferences[target], c.preferences[venuePreferencePrefix+venue]}
	c.mu.Unlock()

	ordered := make([]Engine, 0, len(c.engines))
	taken := make(map[string]bool, len(c.engines))
	for _, name := range front {
		if name == "" || taken[name] {
			continue
		}
		for _, e := range c.engines {
			if e.Name() == name {
				ordered = append(ordered, e)
				taken[name] = true
				break
			}
		}
	}
	for _, e := range c.engines {
		if !taken[e.Name()] {
			ordered = append(ordered, e)
		}
	}
	return ordered
}

// Preference returns the learned engine for a target, if any.
func (c *Chain) Preference(target string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferences[target]
}

// VenueDefault returns the engine last known to read a venue's
// flyers, if any.
func (c *Chain) VenueDefault(venue string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferences[venuePreferencePrefix+venue]
}

func (c *Chain) recordPreference(target, engine string) {
	c.mu.Lock()
	if c.preferences[target] == engine {
		c.mu.Unlock()
		return
	}
	c.preferences[target] = engine
	snapshot := make(map[string]string, len(c.preferences))
	for k, v := range c.preferences {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if c.state != nil {
		if err := c.state.Save(preferencesDocument, snapshot); err != nil {
			c.logger.Warnf("saving OCR preferences: %v", err)
		}
	}
}

// dedupe collapses events that appear in multiple images of the same
// flyer set.
func dedupe(events []*types.Event) []*types.Event {
	seen := make(map[string]bool, len(events))
	var out []*types.Event
	for _, ev := range events {
		key := strings.ToLower(ev.Title) + "|" + ev.Date.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ev)
	}
	return out
}
