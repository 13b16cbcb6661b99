// internal/classifier/classifier_test.go
package classifier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/pkg/types"
)

func pad(html string, n int) string {
	return html + "<!--" + strings.Repeat("x", n) + "-->"
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		html string
		want int
	}{
		{
			name: "plain static page",
			html: pad("<html><body><p>schedule</p></body></html>", 6000),
			want: 0,
		},
		{
			name: "short static page",
			html: "<html><body><p>schedule</p></body></html>",
			want: ScoreShortContent,
		},
		{
			name: "iframe embed",
			html: pad("<html><body><iframe src='/cal'></iframe></body></html>", 6000),
			want: ScoreIframe,
		},
		{
			name: "spa with many scripts",
			html: pad("<html><body data-reactroot>"+strings.Repeat("<script src='/a.js'></script>", 11)+"</body></html>", 6000),
			want: ScoreManyScripts + ScoreSPAFramework,
		},
		{
			name: "noscript warning",
			html: pad("<html><body><noscript>Please enable JavaScript</noscript></body></html>", 6000),
			want: ScoreNoscriptNotice,
		},
		{
			name: "calendar widget with ajax",
			html: pad("<html><head><script src='fullcalendar.min.js'></script><script>fetch('/events')</script></head><body></body></html>", 6000),
			want: ScoreCalendarWidget + ScoreAjax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.html); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score int
		want  types.ComplexityTier
	}{
		{-1, types.TierSimple},
		{0, types.TierSimple},
		{1, types.TierSimple},
		{2, types.TierModerate},
		{4, types.TierModerate},
		{5, types.TierComplex},
		{8, types.TierComplex},
		{9, types.TierVeryComplex},
	}

	for _, tt := range tests {
		if got := TierForScore(tt.score); got != tt.want {
			t.Errorf("TierForScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassifyCachesResult(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, pad("<html><body><p>static</p></body></html>", 6000))
	}))
	defer server.Close()

	state, err := statestore.New(&statestore.Config{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("statestore: %v", err)
	}

	c := New(state, nil)
	ctx := context.Background()

	first := c.Classify(ctx, server.URL)
	second := c.Classify(ctx, server.URL)

	if first != types.TierSimple || second != types.TierSimple {
		t.Errorf("expected simple, got %s then %s", first, second)
	}
	if hits != 1 {
		t.Errorf("expected one sample fetch, got %d", hits)
	}
}

func TestClassifyCacheSurvivesRestart(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, pad("<html><body><iframe src='/x'></iframe></body></html>", 6000))
	}))
	defer server.Close()

	dir := t.TempDir()
	state, err := statestore.New(&statestore.Config{Dir: dir}, nil)
	if err != nil {
		t.Fatalf("statestore: %v", err)
	}

	first := New(state, nil)
	tier := first.Classify(context.Background(), server.URL)
	if tier != types.TierModerate {
		t.Fatalf("expected moderate, got %s", tier)
	}

	reloaded := New(state, nil)
	if got := reloaded.Classify(context.Background(), server.URL); got != tier {
		t.Errorf("cached tier changed after reload: %s vs %s", got, tier)
	}
	if hits != 1 {
		t.Errorf("reloaded classifier should not re-probe, got %d fetches", hits)
	}
}

func TestClassifyUnreachable(t *testing.T) {
	c := New(nil, nil)
	tier := c.Classify(context.Background(), "http://127.0.0.1:1/nothing")
	if tier != types.TierUnknown {
		t.Errorf("expected unknown for unreachable target, got %s", tier)
	}
}

func TestInvalidate(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, pad("<html><body><p>static</p></body></html>", 6000))
	}))
	defer server.Close()

	c := New(nil, nil)
	ctx := context.Background()
	c.Classify(ctx, server.URL)
	c.Invalidate(server.URL)
	c.Classify(ctx, server.URL)

	if hits != 2 {
		t.Errorf("expected re-probe after Invalidate, got %d fetches", hits)
	}
}
