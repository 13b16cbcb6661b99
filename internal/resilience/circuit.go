// internal/resilience/circuit.go

// Package resilience keeps a run alive when individual targets
// misbehave: per-target circuit breakers, a persistent blacklist,
// adaptive per-target rate limiting, retry with backoff, and a memory
// monitor. Proven targets are exempt from the punitive mechanisms;
// their configurations are hand-tuned and a transient failure must
// not lock them out of future runs.
package resilience

import (
	"sync"
	"time"

	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/utils"
)

// Failure thresholds per error category. Blocking trips fastest: if
// the site is actively refusing us, hammering it further only makes
// the block longer.
const (
	DefaultBlockedThreshold = 2
	DefaultTimeoutThreshold = 3
	DefaultGenericThreshold = 5
	DefaultCooldown         = 5 * time.Minute
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	BlockedThreshold int           `yaml:"blocked_threshold" json:"blocked_threshold"`
	TimeoutThreshold int           `yaml:"timeout_threshold" json:"timeout_threshold"`
	GenericThreshold int           `yaml:"generic_threshold" json:"generic_threshold"`
	Cooldown         time.Duration `yaml:"cooldown" json:"cooldown"`
}

func (c *BreakerConfig) applyDefaults() {
	if c.BlockedThreshold == 0 {
		c.BlockedThreshold = DefaultBlockedThreshold
	}
	if c.TimeoutThreshold == 0 {
		c.TimeoutThreshold = DefaultTimeoutThreshold
	}
	if c.GenericThreshold == 0 {
		c.GenericThreshold = DefaultGenericThreshold
	}
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

type targetBreaker struct {
	state    breakerState
	counts   map[fetch.ErrorKind]int
	openedAt time.Time
}

// CircuitBreaker tracks consecutive failures per target and category,
// and temporarily stops dispatching a target once a category crosses
// its threshold. After the cooldown one probe request is allowed
// through; its outcome decides whether the circuit closes again.
type CircuitBreaker struct {
	config  *BreakerConfig
	logger  utils.Logger
	exempt  map[string]bool
	nowFunc func() time.Time

	mu      sync.Mutex
	targets map[string]*targetBreaker
}

// NewCircuitBreaker creates a circuit breaker.
func NewCircuitBreaker(config *BreakerConfig, logger utils.Logger) *CircuitBreaker {
	if config == nil {
		config = &BreakerConfig{}
	}
	config.applyDefaults()
	if logger == nil {
		logger = utils.NewLogger()
	}

	return &CircuitBreaker{
		config:  config,
		logger:  logger.WithField("component", "circuit"),
		exempt:  make(map[string]bool),
		nowFunc: time.Now,
		targets: make(map[string]*targetBreaker),
	}
}

// Exempt marks a target as immune to circuit breaking.
func (cb *CircuitBreaker) Exempt(target string) {
	cb.mu.Lock()
	cb.exempt[target] = true
	cb.mu.Unlock()
}

// Allow reports whether a target may be dispatched right now.
func (cb *CircuitBreaker) Allow(target string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.exempt[target] {
		return true
	}

	tb, ok := cb.targets[target]
	if !ok {
		return true
	}

	switch tb.state {
	case stateClosed, stateHalfOpen:
		return true
	case stateOpen:
		if cb.nowFunc().Sub(tb.openedAt) >= cb.config.Cooldown {
			tb.state = stateHalfOpen
			cb.logger.Infof("circuit for %s half-open after cooldown", target)
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the circuit and clears failure counts.
func (cb *CircuitBreaker) RecordSuccess(target string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if tb, ok := cb.targets[target]; ok {
		if tb.state != stateClosed {
			cb.logger.Infof("circuit for %s closed", target)
		}
		tb.state = stateClosed
		tb.counts = make(map[fetch.ErrorKind]int)
	}
}

// RecordFailure counts a categorized failure and opens the circuit
// when the category's threshold is reached. A failed half-open probe
// re-opens immediately.
func (cb *CircuitBreaker) RecordFailure(target string, kind fetch.ErrorKind) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.exempt[target] {
		return
	}

	tb, ok := cb.targets[target]
	if !ok {
		tb = &targetBreaker{counts: make(map[fetch.ErrorKind]int)}
		cb.targets[target] = tb
	}

	if tb.state == stateHalfOpen {
		tb.state = stateOpen
		tb.openedAt = cb.nowFunc()
		cb.logger.Warnf("circuit for %s re-opened on failed probe", target)
		return
	}

	category := failureCategory(kind)
	tb.counts[category]++

	if tb.counts[category] >= cb.thresholdFor(category) {
		tb.state = stateOpen
		tb.openedAt = cb.nowFunc()
		cb.logger.Warnf("circuit for %s opened after %d %s failures",
			target, tb.counts[category], category)
	}
}

// failureCategory folds the fetch error taxonomy into the three
// breaker categories.
func failureCategory(kind fetch.ErrorKind) fetch.ErrorKind {
	switch kind {
	case fetch.KindTimeout, fetch.KindBlocked:
		return kind
	default:
		return fetch.KindNetwork
	}
}

func (cb *CircuitBreaker) thresholdFor(category fetch.ErrorKind) int {
	switch category {
	case fetch.KindBlocked:
		return cb.config.BlockedThreshold
	case fetch.KindTimeout:
		return cb.config.TimeoutThreshold
	default:
		return cb.config.GenericThreshold
	}
}

// BreakerStats reports circuit breaker state for monitoring.
type BreakerStats struct {
	Open     int `json:"open"`
	HalfOpen int `json:"half_open"`
	Tracked  int `json:"tracked"`
}

// GetStats returns a snapshot of breaker state counts.
func (cb *CircuitBreaker) GetStats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := BreakerStats{Tracked: len(cb.targets)}
	for _, tb := range cb.targets {
		switch tb.state {
		case stateOpen:
			stats.Open++
		case stateHalfOpen:
			stats.HalfOpen++
		}
	}
	return stats
}
