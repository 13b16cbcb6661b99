// internal/resilience/blacklist.go
package resilience

import (
	"sync"
	"time"

	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/internal/utils"
)

// Blacklist thresholds. Timeouts are cheaper to forgive than repeated
// generic failures, so they trip sooner. No-content needs a streak:
// a quiet venue often just has no gigs booked this week.
const (
	BlacklistTimeoutThreshold   = 3
	BlacklistErrorThreshold     = 5
	BlacklistNoContentThreshold = 3
)

// BlacklistReason classifies why a target was blacklisted. The sets
// are disjoint: the most recent reason wins.
type BlacklistReason string

const (
	ReasonTimeout   BlacklistReason = "timeout"
	ReasonDead      BlacklistReason = "dead"
	ReasonNoContent BlacklistReason = "no_content"
)

const blacklistDocument = "blacklist"

// blacklistState is the persisted shape.
type blacklistState struct {
	Timeout   map[string]time.Time `json:"timeout"`
	Dead      map[string]time.Time `json:"dead"`
	NoContent map[string]time.Time `json:"no_content"`
	Timeouts  map[string]int       `json:"timeout_counts"`
	Errors    map[string]int       `json:"error_counts"`
	Quiet     map[string]int       `json:"no_content_counts"`
}

func newBlacklistState() *blacklistState {
	return &blacklistState{
		Timeout:   make(map[string]time.Time),
		Dead:      make(map[string]time.Time),
		NoContent: make(map[string]time.Time),
		Timeouts:  make(map[string]int),
		Errors:    make(map[string]int),
		Quiet:     make(map[string]int),
	}
}

// Blacklist keeps persistently failing targets out of future runs so
// run time is spent on sites that still produce events. Proven
// targets are never blacklisted.
type Blacklist struct {
	state  *statestore.Store
	logger utils.Logger
	exempt map[string]bool

	mu   sync.Mutex
	data *blacklistState
}

// NewBlacklist creates a blacklist, loading persisted state when a
// store is available.
func NewBlacklist(state *statestore.Store, logger utils.Logger) *Blacklist {
	if logger == nil {
		logger = utils.NewLogger()
	}

	b := &Blacklist{
		state:  state,
		logger: logger.WithField("component", "blacklist"),
		exempt: make(map[string]bool),
		data:   newBlacklistState(),
	}

	if state != nil {
		loaded := newBlacklistState()
		if found, err := state.Load(blacklistDocument, loaded); err != nil {
			b.logger.Warnf("loading blacklist: %v", err)
		} else if found {
			b.data = loaded
			// Documents written before streak tracking lack the map.
			if b.data.Quiet == nil {
				b.data.Quiet = make(map[string]int)
			}
		}
	}
	return b
}

// Exempt marks a target as immune to blacklisting.
func (b *Blacklist) Exempt(target string) {
	b.mu.Lock()
	b.exempt[target] = true
	b.mu.Unlock()
}

// Contains reports whether a target is blacklisted and under which
// reason.
func (b *Blacklist) Contains(target string) (BlacklistReason, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.data.Timeout[target]; ok {
		return ReasonTimeout, true
	}
	if _, ok := b.data.Dead[target]; ok {
		return ReasonDead, true
	}
	if _, ok := b.data.NoContent[target]; ok {
		return ReasonNoContent, true
	}
	return "", false
}

// RecordFailure counts a failure against a target and blacklists it
// once its counter crosses the threshold: timeout failures into the
// timeout set, everything else into the dead set.
func (b *Blacklist) RecordFailure(target string, kind fetch.ErrorKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exempt[target] {
		return
	}

	if kind == fetch.KindTimeout {
		b.data.Timeouts[target]++
		if b.data.Timeouts[target] >= BlacklistTimeoutThreshold {
			b.add(target, ReasonTimeout)
		}
	} else {
		b.data.Errors[target]++
		if b.data.Errors[target] >= BlacklistErrorThreshold {
			b.add(target, ReasonDead)
		}
	}
	b.flushLocked()
}

// RecordNoContent counts a run in which the target fetched fine but
// produced no events. Not blacklisted immediately: many venues simply
// have no gigs booked right now, so only a streak of quiet runs
// crossing the threshold takes the target out. Any run with events
// resets the streak.
func (b *Blacklist) RecordNoContent(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exempt[target] {
		return
	}
	b.data.Quiet[target]++
	if b.data.Quiet[target] >= BlacklistNoContentThreshold {
		b.add(target, ReasonNoContent)
	}
	b.flushLocked()
}

// RecordSuccess clears failure counters and the quiet streak for a
// target.
func (b *Blacklist) RecordSuccess(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.data.Timeouts, target)
	delete(b.data.Errors, target)
	delete(b.data.Quiet, target)
	b.flushLocked()
}

// Remove takes a target off every blacklist set, for manual
// rehabilitation after a site comes back.
func (b *Blacklist) Remove(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.data.Timeout, target)
	delete(b.data.Dead, target)
	delete(b.data.NoContent, target)
	delete(b.data.Timeouts, target)
	delete(b.data.Errors, target)
	delete(b.data.Quiet, target)
	b.flushLocked()
}

// add places a target in one set, removing it from the others so the
// sets stay disjoint. Must be called with the lock held.
func (b *Blacklist) add(target string, reason BlacklistReason) {
	delete(b.data.Timeout, target)
	delete(b.data.Dead, target)
	delete(b.data.NoContent, target)

	now := time.Now()
	switch reason {
	case ReasonTimeout:
		b.data.Timeout[target] = now
	case ReasonDead:
		b.data.Dead[target] = now
	case ReasonNoContent:
		b.data.NoContent[target] = now
	}
	b.logger.Warnf("target %s blacklisted: %s", target, reason)
}

func (b *Blacklist) flushLocked() {
	if b.state == nil {
		return
	}
	if err := b.state.Save(blacklistDocument, b.data); err != nil {
		b.logger.Warnf("saving blacklist: %v", err)
	}
}

// Len returns the total number of blacklisted targets.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data.Timeout) + len(b.data.Dead) + len(b.data.NoContent)
}
