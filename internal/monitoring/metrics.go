// internal/monitoring/metrics.go
package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager manages Prometheus metrics for GigScrapexter
type MetricsManager struct {
	registry *prometheus.Registry

	// Fetch metrics
	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec

	// Extraction metrics
	eventsExtracted *prometheus.CounterVec
	eventsValidated *prometheus.CounterVec
	extractionTime  *prometheus.HistogramVec

	// OCR metrics
	ocrAttempts *prometheus.CounterVec
	ocrDuration *prometheus.HistogramVec

	// Resilience metrics
	circuitOpens   *prometheus.CounterVec
	blacklistSize  prometheus.Gauge
	rateLimitWaits *prometheus.HistogramVec

	// Persistence metrics
	eventsWritten *prometheus.CounterVec
	writeErrors   *prometheus.CounterVec

	// Run metrics
	targetsProcessed *prometheus.CounterVec
	targetDuration   *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram

	// System metrics
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge

	namespace string
	subsystem string
}

// MetricsConfig configuration for metrics
type MetricsConfig struct {
	Namespace     string `yaml:"namespace" json:"namespace"`
	Subsystem     string `yaml:"subsystem" json:"subsystem"`
	MetricsPath   string `yaml:"metrics_path" json:"metrics_path"`
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(config MetricsConfig) *MetricsManager {
	if config.Namespace == "" {
		config.Namespace = "gigscrapexter"
	}
	if config.Subsystem == "" {
		config.Subsystem = "scraper"
	}

	mm := &MetricsManager{
		registry:  prometheus.NewRegistry(),
		namespace: config.Namespace,
		subsystem: config.Subsystem,
	}

	mm.initializeMetrics()

	return mm
}

// initializeMetrics initializes all Prometheus metrics
func (mm *MetricsManager) initializeMetrics() {
	factory := promauto.With(mm.registry)

	// Fetch metrics
	mm.fetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "fetches_total",
			Help:      "Total number of page fetches",
		},
		[]string{"method", "target"},
	)

	mm.fetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Page fetch duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	mm.fetchErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "fetch_errors_total",
			Help:      "Total number of fetch errors by kind",
		},
		[]string{"kind", "target"},
	)

	// Extraction metrics
	mm.eventsExtracted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "events_extracted_total",
			Help:      "Total number of events extracted from pages",
		},
		[]string{"target", "method"},
	)

	mm.eventsValidated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "events_validated_total",
			Help:      "Total number of events by validation status",
		},
		[]string{"status"},
	)

	mm.extractionTime = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "extraction_duration_seconds",
			Help:      "Event extraction duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"target"},
	)

	// OCR metrics
	mm.ocrAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "ocr_attempts_total",
			Help:      "Total number of OCR engine attempts",
		},
		[]string{"engine", "outcome"},
	)

	mm.ocrDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "ocr_duration_seconds",
			Help:      "OCR engine run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 90},
		},
		[]string{"engine"},
	)

	// Resilience metrics
	mm.circuitOpens = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "circuit_opens_total",
			Help:      "Total number of circuit breaker opens",
		},
		[]string{"target", "category"},
	)

	mm.blacklistSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "blacklist_size",
			Help:      "Number of currently blacklisted targets",
		},
	)

	mm.rateLimitWaits = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "rate_limit_wait_duration_seconds",
			Help:      "Rate limit wait duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"target"},
	)

	// Persistence metrics
	mm.eventsWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "events_written_total",
			Help:      "Total number of events written to the database",
		},
		[]string{"outcome"},
	)

	mm.writeErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "write_errors_total",
			Help:      "Total number of database write errors",
		},
		[]string{"operation"},
	)

	// Run metrics
	mm.targetsProcessed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "targets_processed_total",
			Help:      "Total number of targets processed by outcome",
		},
		[]string{"outcome"},
	)

	mm.targetDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "target_duration_seconds",
			Help:      "Per-target pipeline duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	mm.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "runs_total",
			Help:      "Total number of scraping runs by mode",
		},
		[]string{"mode", "outcome"},
	)

	mm.runDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "run_duration_seconds",
			Help:      "Whole-run duration in seconds",
			Buckets:   []float64{60, 300, 600, 1800, 3600, 7200},
		},
	)

	// System metrics
	mm.memoryUsage = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "memory_usage_bytes",
			Help:      "Current heap allocation in bytes",
		},
	)

	mm.goroutineCount = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: mm.namespace,
			Subsystem: mm.subsystem,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		},
	)
}

// Fetch metrics
func (mm *MetricsManager) RecordFetch(method, target string, duration time.Duration) {
	mm.fetchesTotal.WithLabelValues(method, target).Inc()
	mm.fetchDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (mm *MetricsManager) RecordFetchError(kind, target string) {
	mm.fetchErrors.WithLabelValues(kind, target).Inc()
}

// Extraction metrics
func (mm *MetricsManager) RecordEventsExtracted(target, method string, count int) {
	mm.eventsExtracted.WithLabelValues(target, method).Add(float64(count))
}

func (mm *MetricsManager) RecordEventValidated(status string) {
	mm.eventsValidated.WithLabelValues(status).Inc()
}

func (mm *MetricsManager) RecordExtractionTime(target string, duration time.Duration) {
	mm.extractionTime.WithLabelValues(target).Observe(duration.Seconds())
}

// OCR metrics
func (mm *MetricsManager) RecordOCRAttempt(engine, outcome string, duration time.Duration) {
	mm.ocrAttempts.WithLabelValues(engine, outcome).Inc()
	mm.ocrDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// Resilience metrics
func (mm *MetricsManager) RecordCircuitOpen(target, category string) {
	mm.circuitOpens.WithLabelValues(target, category).Inc()
}

func (mm *MetricsManager) UpdateBlacklistSize(size int) {
	mm.blacklistSize.Set(float64(size))
}

func (mm *MetricsManager) RecordRateLimitWait(target string, wait time.Duration) {
	mm.rateLimitWaits.WithLabelValues(target).Observe(wait.Seconds())
}

// Persistence metrics
func (mm *MetricsManager) RecordEventWritten(created bool) {
	outcome := "existing"
	if created {
		outcome = "created"
	}
	mm.eventsWritten.WithLabelValues(outcome).Inc()
}

func (mm *MetricsManager) RecordWriteError(operation string) {
	mm.writeErrors.WithLabelValues(operation).Inc()
}

// Run metrics
func (mm *MetricsManager) RecordTargetProcessed(outcome string, duration time.Duration) {
	mm.targetsProcessed.WithLabelValues(outcome).Inc()
	mm.targetDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (mm *MetricsManager) RecordRun(mode, outcome string, duration time.Duration) {
	mm.runsTotal.WithLabelValues(mode, outcome).Inc()
	mm.runDuration.Observe(duration.Seconds())
}

// System metrics
func (mm *MetricsManager) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.memoryUsage.Set(float64(m.Alloc))
	mm.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// MetricsHandler returns an HTTP handler for the metrics endpoint
func (mm *MetricsManager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts the metrics HTTP server. When a health
// manager is given, its report is served on /health alongside the
// metrics endpoint.
func (mm *MetricsManager) StartMetricsServer(ctx context.Context, address, path string, health *HealthManager) error {
	if path == "" {
		path = "/metrics"
	}
	if address == "" {
		address = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle(path, mm.MetricsHandler())
	if health != nil {
		mux.Handle("/health", health.Handler())
	}

	server := &http.Server{
		Addr:    address,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	return server.ListenAndServe()
}
