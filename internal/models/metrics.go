package models

import "time"

// SystemMetrics is a JSON summary of the Prometheus collectors.
type SystemMetrics struct {
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	CacheHits                uint64            `json:"cache_hits"`
	CacheMisses              uint64            `json:"cache_misses"`
	GradeCalculations        map[string]uint64 `json:"grade_calculations"`
	QuizAttemptsGraded       uint64            `json:"quiz_attempts_graded"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
