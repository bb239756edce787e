package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
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
	gradeCalcs      *prometheus.CounterVec
	gradeCalcTime   prometheus.Observer
	gradeOverrides  *prometheus.CounterVec
	quizGraded      *prometheus.CounterVec
	recalcJobs      *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	quizGradedCount      uint64

	calcMu     sync.Mutex
	calcCounts map[string]uint64
}

// NewMetricsService registers the HTTP, cache and grading collectors.
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

	gradeCalcs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_calculations_total",
		Help: "Course grade calculations by averaging method",
	}, []string{"method"})

	gradeCalcTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grade_calculation_duration_seconds",
		Help:    "Duration of a single course grade calculation",
		Buckets: prometheus.DefBuckets,
	})

	gradeOverrides := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_overrides_total",
		Help: "Grade overrides applied or removed",
	}, []string{"action"})

	quizGraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_attempts_graded_total",
		Help: "Quiz attempts graded by outcome",
	}, []string{"outcome"})

	recalcJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_recalculation_jobs_total",
		Help: "Course recalculation jobs by status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		gradeCalcs, gradeCalcTime, gradeOverrides, quizGraded, recalcJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		gradeCalcs:      gradeCalcs,
		gradeCalcTime:   gradeCalcTime,
		gradeOverrides:  gradeOverrides,
		quizGraded:      quizGraded,
		recalcJobs:      recalcJobs,
		calcCounts:      make(map[string]uint64),
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

// ObserveGradeCalculation counts a calculation by method and records its duration.
func (m *MetricsService) ObserveGradeCalculation(method CalculationMethod, duration time.Duration) {
	if m == nil {
		return
	}
	m.gradeCalcs.WithLabelValues(string(method)).Inc()
	m.gradeCalcTime.Observe(duration.Seconds())
	m.calcMu.Lock()
	m.calcCounts[string(method)]++
	m.calcMu.Unlock()
}

// ObserveOverride counts override changes; action is "applied" or "removed".
func (m *MetricsService) ObserveOverride(action string) {
	if m == nil {
		return
	}
	m.gradeOverrides.WithLabelValues(action).Inc()
}

// ObserveQuizGraded counts a graded attempt by pass/fail outcome.
func (m *MetricsService) ObserveQuizGraded(passed bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	m.quizGraded.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.quizGradedCount, 1)
}

// ObserveRecalculationJob counts background recalculation outcomes.
func (m *MetricsService) ObserveRecalculationJob(status string) {
	if m == nil {
		return
	}
	m.recalcJobs.WithLabelValues(status).Inc()
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
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

	m.calcMu.Lock()
	calcs := make(map[string]uint64, len(m.calcCounts))
	for k, v := range m.calcCounts {
		calcs[k] = v
	}
	m.calcMu.Unlock()

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		GradeCalculations:        calcs,
		QuizAttemptsGraded:       atomic.LoadUint64(&m.quizGradedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
