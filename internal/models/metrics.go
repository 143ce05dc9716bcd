package models

import "time"

// SystemMetrics is a point-in-time summary of the service's instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	NIMAllocations           uint64    `json:"nim_allocations"`
	NIMConflicts             uint64    `json:"nim_conflicts"`
	NIMExhausted             uint64    `json:"nim_exhausted"`
	NIMCapacityWarnings      uint64    `json:"nim_capacity_warnings"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
