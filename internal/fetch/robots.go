// internal/fetch/robots.go
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// DefaultRobotsCacheTTL bounds how long fetched robots rules are
// reused before re-fetching.
const DefaultRobotsCacheTTL = 30 * time.Minute

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool          `yaml:"respect" json:"respect"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	CacheTTL  time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// RobotsAgent evaluates robots.txt rules with per-host caching.
// Errors while fetching or parsing rules fail open: an unreachable
// robots.txt never blocks a target.
type RobotsAgent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	logger    utils.Logger

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewRobotsAgent constructs a robots agent.
func NewRobotsAgent(config *RobotsConfig, logger utils.Logger) *RobotsAgent {
	if config == nil {
		config = &RobotsConfig{}
	}
	if logger == nil {
		logger = utils.NewLogger()
	}

	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = DefaultRobotsCacheTTL
	}

	return &RobotsAgent{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: config.UserAgent,
		ttl:       ttl,
		respect:   config.Respect,
		logger:    logger.WithField("component", "robots"),
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether the target URL may be fetched.
func (a *RobotsAgent) Allowed(ctx context.Context, rawURL string) bool {
	if !a.respect {
		return true
	}

	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() {
		return false
	}

	rules, err := a.rules(ctx, target)
	if err != nil {
		a.logger.Debugf("robots lookup for %s failed open: %v", target.Host, err)
		return true
	}

	group := rules.FindGroup(a.userAgent)
	if group == nil {
		group = rules.FindGroup("*")
		if group == nil {
			return true
		}
	}
	return group.Test(target.Path)
}

func (a *RobotsAgent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.RLock()
	entry, ok := a.cache[host]
	a.mu.RUnlock()
	if ok && time.Since(entry.fetched) < a.ttl {
		return entry.rules, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parsing robots.txt: %w", err)
	}

	a.mu.Lock()
	a.cache[host] = robotsEntry{fetched: time.Now(), rules: data}
	a.mu.Unlock()

	return data, nil
}
