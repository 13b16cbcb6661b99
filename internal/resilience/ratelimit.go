// internal/resilience/ratelimit.go
package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/internal/utils"
)

// Adaptive delay constants. The delay between requests to one target
// grows with that target's observed response time: a struggling
// server gets more breathing room, a snappy one gets the floor delay.
const (
	RateBaseDelay    = 1 * time.Second
	RateMaxDelay     = 10 * time.Second
	RateLatencySlope = 0.5

	// EWMA weighting: history dominates so one slow response does
	// not triple the delay.
	RateHistoryWeight = 0.7
	RateSampleWeight  = 0.3
)

const rateDocument = "rate_history"

type targetRate struct {
	limiter *rate.Limiter
	avg     time.Duration
}

// AdaptiveRateLimiter spaces out requests per target, scaling each
// target's delay with an exponentially weighted average of its
// response times. Averages persist across runs.
type AdaptiveRateLimiter struct {
	state  *statestore.Store
	logger utils.Logger

	mu      sync.Mutex
	targets map[string]*targetRate
}

// NewAdaptiveRateLimiter creates a rate limiter, restoring persisted
// latency averages when a store is available.
func NewAdaptiveRateLimiter(state *statestore.Store, logger utils.Logger) *AdaptiveRateLimiter {
	if logger == nil {
		logger = utils.NewLogger()
	}

	rl := &AdaptiveRateLimiter{
		state:   state,
		logger:  logger.WithField("component", "ratelimit"),
		targets: make(map[string]*targetRate),
	}

	if state != nil {
		history := make(map[string]time.Duration)
		if found, err := state.Load(rateDocument, &history); err != nil {
			rl.logger.Warnf("loading rate history: %v", err)
		} else if found {
			for target, avg := range history {
				tr := &targetRate{avg: avg}
				tr.limiter = rate.NewLimiter(rate.Every(delayFor(avg)), 1)
				rl.targets[target] = tr
			}
		}
	}
	return rl
}

// Wait blocks until the target's limiter permits the next request.
func (rl *AdaptiveRateLimiter) Wait(ctx context.Context, target string) error {
	rl.mu.Lock()
	tr, ok := rl.targets[target]
	if !ok {
		tr = &targetRate{limiter: rate.NewLimiter(rate.Every(RateBaseDelay), 1)}
		rl.targets[target] = tr
	}
	limiter := tr.limiter
	rl.mu.Unlock()

	return limiter.Wait(ctx)
}

// ReportLatency feeds an observed response time into the target's
// average and adjusts its delay.
func (rl *AdaptiveRateLimiter) ReportLatency(target string, observed time.Duration) {
	rl.mu.Lock()
	tr, ok := rl.targets[target]
	if !ok {
		tr = &targetRate{limiter: rate.NewLimiter(rate.Every(RateBaseDelay), 1)}
		rl.targets[target] = tr
	}

	if tr.avg == 0 {
		tr.avg = observed
	} else {
		tr.avg = time.Duration(float64(tr.avg)*RateHistoryWeight + float64(observed)*RateSampleWeight)
	}
	delay := delayFor(tr.avg)
	tr.limiter.SetLimit(rate.Every(delay))

	snapshot := make(map[string]time.Duration, len(rl.targets))
	for name, t := range rl.targets {
		snapshot[name] = t.avg
	}
	rl.mu.Unlock()

	rl.logger.Debugf("target %s avg latency %v, delay %v", target, tr.avg, delay)

	if rl.state != nil {
		if err := rl.state.Save(rateDocument, snapshot); err != nil {
			rl.logger.Warnf("saving rate history: %v", err)
		}
	}
}

// Delay returns the current inter-request delay for a target.
func (rl *AdaptiveRateLimiter) Delay(target string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if tr, ok := rl.targets[target]; ok {
		return delayFor(tr.avg)
	}
	return RateBaseDelay
}

// delayFor maps an average response time to an inter-request delay,
// clamped between the base and max delays.
func delayFor(avg time.Duration) time.Duration {
	delay := RateBaseDelay + time.Duration(float64(avg)*RateLatencySlope)
	if delay > RateMaxDelay {
		return RateMaxDelay
	}
	if delay < RateBaseDelay {
		return RateBaseDelay
	}
	return delay
}
