// internal/fetch/fetch.go

// Package fetch provides the two page acquisition paths: a cheap HTTP
// client for static sites and a chromedp-driven headless browser for
// JavaScript-rendered schedules. Both return the same Result shape so
// the dispatcher can treat them interchangeably.
package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Fetcher retrieves the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Result is the outcome of a successful fetch.
type Result struct {
	HTML     string
	Status   int
	FinalURL string
	Duration time.Duration
}

// Empty reports whether the fetch produced no usable content. An
// empty body from a 200 response usually means the page is rendered
// client side and needs the browser path.
const minUsefulHTML = 100

func (r *Result) Empty() bool {
	return r == nil || len(r.HTML) < minUsefulHTML
}

// defaultUserAgents is the rotation pool. Ordinary desktop browsers
// only; nothing here identifies as a bot.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// UserAgentPool hands out user agent strings in random order.
type UserAgentPool struct {
	agents []string
	rng    *rand.Rand
	mu     sync.Mutex
}

// NewUserAgentPool creates a pool from the given agents, falling back
// to the built-in set when none are provided.
func NewUserAgentPool(agents []string) *UserAgentPool {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &UserAgentPool{
		agents: agents,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns a user agent from the pool.
func (p *UserAgentPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rng.Intn(len(p.agents))]
}
