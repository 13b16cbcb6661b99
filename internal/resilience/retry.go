// internal/resilience/retry.go
package resilience

import (
	"context"
	"time"

	"github.com/valpere/GigScrapexter/internal/fetch"
)

// Retry defaults. Two retries with doubling delay covers the
// transient hiccups worth retrying; anything still failing after
// that belongs to the circuit breaker.
const (
	DefaultMaxRetries   = 2
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxRetryWait = 15 * time.Second
	DefaultMultiplier   = 2.0
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxRetryWait
	}
	if c.Multiplier == 0 {
		c.Multiplier = DefaultMultiplier
	}
}

// Do runs fn, retrying transient failures with exponential backoff.
// Blocked errors are never retried: re-requesting a page that just
// refused us reads as hammering and makes the block worse.
func Do(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = &RetryConfig{}
	}
	config.applyDefaults()

	delay := config.InitialDelay
	var err error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

// retryable reports whether an error class is worth another attempt.
func retryable(err error) bool {
	switch fetch.KindOf(err) {
	case fetch.KindTimeout, fetch.KindNetwork:
		return true
	default:
		return false
	}
}
