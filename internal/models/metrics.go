package models

import "time"

// SystemMetrics is a JSON summary of the Prometheus counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DatasetLoads             uint64    `json:"dataset_loads"`
	DatasetLoadFailures      uint64    `json:"dataset_load_failures"`
	DatasetRecords           int64     `json:"dataset_records"`
	Comparisons              uint64    `json:"comparisons"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
