// internal/resilience/resilience_test.go
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/statestore"
)

func TestCircuitOpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(nil, nil)

	for i := 0; i < DefaultTimeoutThreshold; i++ {
		if !cb.Allow("slow-site") {
			t.Fatalf("circuit opened early at failure %d", i)
		}
		cb.RecordFailure("slow-site", fetch.KindTimeout)
	}

	if cb.Allow("slow-site") {
		t.Error("circuit should be open after threshold timeouts")
	}
}

func TestCircuitBlockedTripsFaster(t *testing.T) {
	cb := NewCircuitBreaker(nil, nil)

	for i := 0; i < DefaultBlockedThreshold; i++ {
		cb.RecordFailure("walled-site", fetch.KindBlocked)
	}
	if cb.Allow("walled-site") {
		t.Error("blocked failures should open the circuit at the lower threshold")
	}

	cb2 := NewCircuitBreaker(nil, nil)
	for i := 0; i < DefaultBlockedThreshold; i++ {
		cb2.RecordFailure("flaky-site", fetch.KindNetwork)
	}
	if !cb2.Allow("flaky-site") {
		t.Error("generic failures below their threshold should not open the circuit")
	}
}

func TestCircuitHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerConfig{Cooldown: time.Minute}, nil)
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	for i := 0; i < DefaultTimeoutThreshold; i++ {
		cb.RecordFailure("site", fetch.KindTimeout)
	}
	if cb.Allow("site") {
		t.Fatal("circuit should be open")
	}

	// After the cooldown one probe goes through.
	now = now.Add(2 * time.Minute)
	if !cb.Allow("site") {
		t.Fatal("circuit should be half-open after cooldown")
	}

	// A failed probe re-opens immediately.
	cb.RecordFailure("site", fetch.KindTimeout)
	if cb.Allow("site") {
		t.Error("failed probe should re-open the circuit")
	}

	// A successful probe closes it.
	now = now.Add(2 * time.Minute)
	if !cb.Allow("site") {
		t.Fatal("expected half-open again")
	}
	cb.RecordSuccess("site")
	if !cb.Allow("site") {
		t.Error("successful probe should close the circuit")
	}
}

func TestCircuitExemptNeverOpens(t *testing.T) {
	cb := NewCircuitBreaker(nil, nil)
	cb.Exempt("proven-venue")

	for i := 0; i < 20; i++ {
		cb.RecordFailure("proven-venue", fetch.KindBlocked)
	}
	if !cb.Allow("proven-venue") {
		t.Error("exempt target must never be circuit-broken")
	}
}

func TestBlacklistThresholds(t *testing.T) {
	b := NewBlacklist(nil, nil)

	for i := 0; i < BlacklistTimeoutThreshold-1; i++ {
		b.RecordFailure("slow", fetch.KindTimeout)
	}
	if _, listed := b.Contains("slow"); listed {
		t.Fatal("blacklisted before threshold")
	}
	b.RecordFailure("slow", fetch.KindTimeout)
	if reason, listed := b.Contains("slow"); !listed || reason != ReasonTimeout {
		t.Errorf("expected timeout blacklisting, got %q listed=%v", reason, listed)
	}

	for i := 0; i < BlacklistErrorThreshold; i++ {
		b.RecordFailure("broken", fetch.KindHTTPStatus)
	}
	if reason, listed := b.Contains("broken"); !listed || reason != ReasonDead {
		t.Errorf("expected dead blacklisting, got %q listed=%v", reason, listed)
	}
}

func TestBlacklistNoContentNeedsStreak(t *testing.T) {
	b := NewBlacklist(nil, nil)

	// A venue with nothing booked this week is not dead.
	for i := 0; i < BlacklistNoContentThreshold-1; i++ {
		b.RecordNoContent("quiet-venue")
		if _, listed := b.Contains("quiet-venue"); listed {
			t.Fatalf("blacklisted after %d quiet runs", i+1)
		}
	}
	b.RecordNoContent("quiet-venue")
	if reason, listed := b.Contains("quiet-venue"); !listed || reason != ReasonNoContent {
		t.Errorf("expected no_content after streak, got %q listed=%v", reason, listed)
	}
}

func TestBlacklistQuietStreakResetsOnSuccess(t *testing.T) {
	b := NewBlacklist(nil, nil)

	for i := 0; i < BlacklistNoContentThreshold-1; i++ {
		b.RecordNoContent("seasonal-venue")
	}
	// Events showed up again; the streak starts over.
	b.RecordSuccess("seasonal-venue")

	for i := 0; i < BlacklistNoContentThreshold-1; i++ {
		b.RecordNoContent("seasonal-venue")
	}
	if _, listed := b.Contains("seasonal-venue"); listed {
		t.Error("quiet streak survived an eventful run")
	}
}

func TestBlacklistSetsStayDisjoint(t *testing.T) {
	b := NewBlacklist(nil, nil)

	for i := 0; i < BlacklistNoContentThreshold; i++ {
		b.RecordNoContent("quiet-site")
	}
	if reason, _ := b.Contains("quiet-site"); reason != ReasonNoContent {
		t.Fatalf("expected no_content, got %q", reason)
	}

	for i := 0; i < BlacklistTimeoutThreshold; i++ {
		b.RecordFailure("quiet-site", fetch.KindTimeout)
	}
	if reason, _ := b.Contains("quiet-site"); reason != ReasonTimeout {
		t.Errorf("later reason should replace earlier, got %q", reason)
	}
	if b.Len() != 1 {
		t.Errorf("target should be in exactly one set, Len=%d", b.Len())
	}
}

func TestBlacklistExemptAndPersistence(t *testing.T) {
	dir := t.TempDir()
	state, err := statestore.New(&statestore.Config{Dir: dir}, nil)
	if err != nil {
		t.Fatalf("statestore: %v", err)
	}

	b := NewBlacklist(state, nil)
	b.Exempt("proven-venue")
	for i := 0; i < 10; i++ {
		b.RecordFailure("proven-venue", fetch.KindTimeout)
	}
	if _, listed := b.Contains("proven-venue"); listed {
		t.Error("exempt target must never be blacklisted")
	}

	for i := 0; i < BlacklistNoContentThreshold; i++ {
		b.RecordNoContent("empty-site")
	}

	reloaded := NewBlacklist(state, nil)
	if reason, listed := reloaded.Contains("empty-site"); !listed || reason != ReasonNoContent {
		t.Errorf("blacklist did not survive reload: %q listed=%v", reason, listed)
	}
}

func TestAdaptiveDelayGrowsWithLatency(t *testing.T) {
	rl := NewAdaptiveRateLimiter(nil, nil)

	if d := rl.Delay("fresh"); d != RateBaseDelay {
		t.Errorf("unknown target should get base delay, got %v", d)
	}

	rl.ReportLatency("slow", 10*time.Second)
	if d := rl.Delay("slow"); d <= RateBaseDelay {
		t.Errorf("slow target delay should grow, got %v", d)
	}

	for i := 0; i < 10; i++ {
		rl.ReportLatency("glacial", time.Minute)
	}
	if d := rl.Delay("glacial"); d != RateMaxDelay {
		t.Errorf("delay should clamp at max, got %v", d)
	}
}

func TestAdaptiveEWMASmoothing(t *testing.T) {
	rl := NewAdaptiveRateLimiter(nil, nil)

	rl.ReportLatency("site", time.Second)
	rl.ReportLatency("site", 4*time.Second)

	// 1s * 0.7 + 4s * 0.3 = 1.9s average.
	want := RateBaseDelay + time.Duration(float64(1900*time.Millisecond)*RateLatencySlope)
	got := rl.Delay("site")
	diff := got - want
	if diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Errorf("EWMA delay = %v, want about %v", got, want)
	}
}

func TestRetryTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), &RetryConfig{InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return &fetch.Error{Kind: fetch.KindTimeout, Err: errors.New("deadline")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryNeverRetriesBlocked(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), &RetryConfig{InitialDelay: time.Millisecond}, func() error {
		attempts++
		return &fetch.Error{Kind: fetch.KindBlocked, Err: errors.New("403")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("blocked error retried %d times", attempts-1)
	}
}

func TestMemoryMonitor(t *testing.T) {
	m := NewMemoryMonitor(1, nil) // 1 byte threshold: always over
	if got := m.Check(); got == 0 {
		t.Error("expected non-zero heap sample")
	}
	stats := m.GetStats()
	if stats.ForcedGCs == 0 {
		t.Error("expected a forced GC with a 1-byte threshold")
	}
	if stats.PeakBytes == 0 {
		t.Error("expected peak tracking")
	}
}
