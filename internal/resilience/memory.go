// internal/resilience/memory.go
package resilience

import (
	"runtime"
	"sync"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// DefaultGCThreshold is the heap size that triggers a forced GC
// between targets. Long runs through hundreds of pages accumulate
// parsed DOM garbage faster than the collector reclaims it on its
// own schedule.
const DefaultGCThreshold = 1 << 30 // 1 GiB

// MemoryMonitor watches heap usage between targets and forces
// collection when it crosses the threshold. Advisory only: it never
// aborts work.
type MemoryMonitor struct {
	threshold uint64
	logger    utils.Logger

	mu        sync.Mutex
	peak      uint64
	forcedGCs int
}

// NewMemoryMonitor creates a monitor with the given threshold in
// bytes; zero uses the default.
func NewMemoryMonitor(threshold uint64, logger utils.Logger) *MemoryMonitor {
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &MemoryMonitor{
		threshold: threshold,
		logger:    logger.WithField("component", "memory"),
	}
}

// Check samples heap usage, updates the peak, and forces a GC when
// usage exceeds the threshold. Returns the sampled heap size.
func (m *MemoryMonitor) Check() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	if stats.HeapAlloc > m.peak {
		m.peak = stats.HeapAlloc
	}
	force := stats.HeapAlloc > m.threshold
	if force {
		m.forcedGCs++
	}
	m.mu.Unlock()

	if force {
		m.logger.Warnf("heap at %d MiB exceeds threshold, forcing GC", stats.HeapAlloc>>20)
		runtime.GC()
	}
	return stats.HeapAlloc
}

// MemoryStats reports monitor observations.
type MemoryStats struct {
	PeakBytes uint64 `json:"peak_bytes"`
	ForcedGCs int    `json:"forced_gcs"`
}

// GetStats returns peak usage and forced GC count.
func (m *MemoryMonitor) GetStats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{PeakBytes: m.peak, ForcedGCs: m.forcedGCs}
}
