package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer,
// the Redis cache and the attendance session subsystem.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	openSessions     prometheus.Gauge
	sessionsOpened   prometheus.Counter
	checkInTotal     *prometheus.CounterVec
	sweepDuration    prometheus.Observer
	sweepFinalized   prometheus.Counter
	absentsFinalized prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	openSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_open_sessions",
		Help: "Number of attendance sessions currently open",
	})

	sessionsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_opened_total",
		Help: "Total attendance sessions opened",
	})

	checkInTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_check_ins_total",
		Help: "Total check-in attempts by method and outcome",
	}, []string{"method", "outcome"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_sweep_duration_seconds",
		Help:    "Duration of expiration sweeps",
		Buckets: prometheus.DefBuckets,
	})

	sweepFinalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_finalized_total",
		Help: "Total sessions finalized by the sweeper or an early close",
	})

	absentsFinalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_absents_finalized_total",
		Help: "Total absent records written at session finalization",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		openSessions, sessionsOpened, checkInTotal, sweepDuration, sweepFinalized, absentsFinalized, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		openSessions:     openSessions,
		sessionsOpened:   sessionsOpened,
		checkInTotal:     checkInTotal,
		sweepDuration:    sweepDuration,
		sweepFinalized:   sweepFinalized,
		absentsFinalized: absentsFinalized,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records Redis cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// SetOpenSessions tracks the number of live attendance sessions.
func (m *MetricsService) SetOpenSessions(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}

// IncSessionsOpened counts a successful session open.
func (m *MetricsService) IncSessionsOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
}

// IncCheckIn counts one check-in attempt by method and outcome.
func (m *MetricsService) IncCheckIn(method, outcome string) {
	if m == nil {
		return
	}
	m.checkInTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveSweep records one expiration sweep and how many sessions it
// finalized.
func (m *MetricsService) ObserveSweep(duration time.Duration, finalized int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	m.sweepFinalized.Add(float64(finalized))
}

// AddAbsentsFinalized counts absent records written during finalization.
func (m *MetricsService) AddAbsentsFinalized(n int) {
	if m == nil {
		return
	}
	m.absentsFinalized.Add(float64(n))
}
