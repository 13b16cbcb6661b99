// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheckResult is what a registered check reports.
type HealthCheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// CheckFunc probes one component: the database, the state directory,
// the headless browser.
type CheckFunc func(ctx context.Context) HealthCheckResult

// HealthManager runs registered component checks on demand and
// serves the aggregate over HTTP.
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	started time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager(timeout time.Duration) *HealthManager {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HealthManager{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
		started: time.Now(),
	}
}

// Register adds a named component check.
func (hm *HealthManager) Register(name string, check CheckFunc) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[name] = check
}

// SystemHealth is the aggregate health report.
type SystemHealth struct {
	Status     HealthStatus                 `json:"status"`
	Timestamp  time.Time                    `json:"timestamp"`
	UptimeSecs float64                      `json:"uptime_seconds"`
	Checks     map[string]HealthCheckResult `json:"checks,omitempty"`
	System     SystemMetrics                `json:"system"`
}

// SystemMetrics provides process-level metrics
type SystemMetrics struct {
	AllocatedBytes uint64 `json:"allocated_bytes"`
	SystemBytes    uint64 `json:"system_bytes"`
	NumGC          uint32 `json:"num_gc"`
	GoroutineCount int    `json:"goroutine_count"`
}

// Check runs all registered checks and aggregates their status: any
// unhealthy component makes the system unhealthy, any degraded one
// makes it degraded.
func (hm *HealthManager) Check(ctx context.Context) SystemHealth {
	hm.mu.RLock()
	checks := make(map[string]CheckFunc, len(hm.checks))
	for name, fn := range hm.checks {
		checks[name] = fn
	}
	hm.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	results := make(map[string]HealthCheckResult, len(checks))
	overall := HealthStatusHealthy
	for name, fn := range checks {
		result := fn(ctx)
		results[name] = result
		switch result.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemHealth{
		Status:     overall,
		Timestamp:  time.Now(),
		UptimeSecs: time.Since(hm.started).Seconds(),
		Checks:     results,
		System: SystemMetrics{
			AllocatedBytes: m.Alloc,
			SystemBytes:    m.Sys,
			NumGC:          m.NumGC,
			GoroutineCount: runtime.NumGoroutine(),
		},
	}
}

// Handler serves the health report as JSON. Unhealthy reports get a
// 503 so load balancers and cron wrappers can alert on status code.
func (hm *HealthManager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := hm.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
