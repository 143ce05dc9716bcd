package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/pmb-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	nimAllocations   *prometheus.CounterVec
	nimAttempts      prometheus.Histogram
	nimConflicts     *prometheus.CounterVec
	nimExhausted     *prometheus.CounterVec
	nimCapacity      *prometheus.CounterVec
	approvalDuration *prometheus.HistogramVec
	jobsProcessed    *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	allocationCount      uint64
	conflictCount        uint64
	exhaustedCount       uint64
	capacityCount        uint64
}

// NewMetricsService registers core Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	nimAllocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_nim_allocations_total",
		Help: "NIMs successfully assigned",
	}, []string{"program_code"})

	nimAttempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pmb_nim_allocation_attempts",
		Help:    "Attempts needed to assign a NIM",
		Buckets: []float64{1, 2, 3, 4, 5, 8},
	})

	nimConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_nim_conflicts_total",
		Help: "NIM uniqueness conflicts that triggered a retry",
	}, []string{"program_code"})

	nimExhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_nim_allocation_exhausted_total",
		Help: "Allocations that gave up after the retry budget",
	}, []string{"program_code"})

	nimCapacity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_nim_capacity_warnings_total",
		Help: "NIMs issued with a sequence wider than the padded width",
	}, []string{"program_code"})

	approvalDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmb_approval_duration_seconds",
		Help:    "Duration of candidate approvals by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	jobsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_jobs_processed_total",
		Help: "Background jobs by type and result",
	}, []string{"type", "result"})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		nimAllocations, nimAttempts, nimConflicts, nimExhausted, nimCapacity, approvalDuration, jobsProcessed,
		collectors.NewGoCollector(),
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		nimAllocations:   nimAllocations,
		nimAttempts:      nimAttempts,
		nimConflicts:     nimConflicts,
		nimExhausted:     nimExhausted,
		nimCapacity:      nimCapacity,
		approvalDuration: approvalDuration,
		jobsProcessed:    jobsProcessed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the private registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordNIMAllocation counts an assigned NIM and the attempts it took.
func (m *MetricsService) RecordNIMAllocation(programCode string, attempts int) {
	if m == nil {
		return
	}
	m.nimAllocations.WithLabelValues(programCode).Inc()
	m.nimAttempts.Observe(float64(attempts))
	atomic.AddUint64(&m.allocationCount, 1)
}

// RecordNIMConflict counts a uniqueness conflict that forced a retry.
func (m *MetricsService) RecordNIMConflict(programCode string) {
	if m == nil {
		return
	}
	m.nimConflicts.WithLabelValues(programCode).Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// RecordNIMExhausted counts an allocation that ran out of attempts.
func (m *MetricsService) RecordNIMExhausted(programCode string) {
	if m == nil {
		return
	}
	m.nimExhausted.WithLabelValues(programCode).Inc()
	atomic.AddUint64(&m.exhaustedCount, 1)
}

// RecordNIMCapacityWarning counts a NIM whose sequence overflowed the padded width.
func (m *MetricsService) RecordNIMCapacityWarning(programCode string) {
	if m == nil {
		return
	}
	m.nimCapacity.WithLabelValues(programCode).Inc()
	atomic.AddUint64(&m.capacityCount, 1)
}

// ObserveApproval records how long an approval took and how it ended.
func (m *MetricsService) ObserveApproval(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.approvalDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordJob counts a processed background job.
func (m *MetricsService) RecordJob(jobType string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobsProcessed.WithLabelValues(jobType, result).Inc()
}

// Snapshot returns aggregated metrics for the admin summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		NIMAllocations:           atomic.LoadUint64(&m.allocationCount),
		NIMConflicts:             atomic.LoadUint64(&m.conflictCount),
		NIMExhausted:             atomic.LoadUint64(&m.exhaustedCount),
		NIMCapacityWarnings:      atomic.LoadUint64(&m.capacityCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
