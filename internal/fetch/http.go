// internal/fetch/http.go
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// Default configuration constants
const (
	DefaultOpenTimeout  = 5 * time.Second
	DefaultReadTimeout  = 10 * time.Second
	DefaultMaxRedirects = 5
	DefaultMaxBodySize  = 10 << 20 // 10 MiB
)

// HTTPConfig configures the lightweight HTTP fetcher.
type HTTPConfig struct {
	OpenTimeout  time.Duration `yaml:"open_timeout" json:"open_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	MaxRedirects int           `yaml:"max_redirects" json:"max_redirects"`
	UserAgents   []string      `yaml:"user_agents" json:"user_agents"`
}

func (c *HTTPConfig) applyDefaults() {
	if c.OpenTimeout == 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
}

// HTTPFetcher fetches pages with a plain HTTP client. Redirects are
// followed manually so each hop can be logged and capped; several of
// the venue sites bounce through tracking redirects before reaching
// the actual schedule page.
type HTTPFetcher struct {
	client       *http.Client
	agents       *UserAgentPool
	maxRedirects int
	logger       utils.Logger
}

// NewHTTPFetcher creates an HTTP fetcher with the given configuration.
func NewHTTPFetcher(config *HTTPConfig, logger utils.Logger) *HTTPFetcher {
	if config == nil {
		config = &HTTPConfig{}
	}
	config.applyDefaults()
	if logger == nil {
		logger = utils.NewLogger()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.OpenTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   config.OpenTimeout,
		ResponseHeaderTimeout: config.ReadTimeout,
		MaxIdleConnsPerHost:   4,
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.ReadTimeout,
			// Redirects are handled in Fetch.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		agents:       NewUserAgentPool(config.UserAgents),
		maxRedirects: config.MaxRedirects,
		logger:       logger.WithField("fetcher", "http"),
	}
}

// Fetch retrieves a page, following up to MaxRedirects redirects.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()
	current := rawURL

	for hop := 0; hop <= f.maxRedirects; hop++ {
		resp, err := f.get(ctx, current)
		if err != nil {
			return nil, Classify(current, 0, err)
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			location := resp.Header.Get("Location")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if location == "" {
				return nil, Classify(current, resp.StatusCode, fmt.Errorf("redirect without location"))
			}
			next, err := resolveRedirect(current, location)
			if err != nil {
				return nil, Classify(current, resp.StatusCode, err)
			}
			f.logger.Debugf("following redirect %d -> %s", resp.StatusCode, next)
			current = next
			continue

		case http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBodySize))
			resp.Body.Close()
			if err != nil {
				return nil, Classify(current, resp.StatusCode, err)
			}
			return &Result{
				HTML:     string(body),
				Status:   resp.StatusCode,
				FinalURL: current,
				Duration: time.Since(start),
			}, nil

		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, Classify(current, resp.StatusCode, nil)
		}
	}

	return nil, Classify(rawURL, 0, fmt.Errorf("too many redirects (%d)", f.maxRedirects))
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.agents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.7,en;q=0.3")
	return f.client.Do(req)
}

// Download fetches a binary resource (image or PDF) to memory. Used
// by the OCR pipeline for schedule media.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, Classify(rawURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, Classify(rawURL, resp.StatusCode, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBodySize))
	if err != nil {
		return nil, Classify(rawURL, resp.StatusCode, err)
	}
	return data, nil
}

// resolveRedirect resolves a possibly relative Location header
// against the current URL.
func resolveRedirect(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parsing current URL: %w", err)
	}
	next, err := base.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing redirect location: %w", err)
	}
	return next.String(), nil
}
