package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// MetricsRegistry holds all Prometheus metrics for the service.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Simulation metrics
	SimDuration       *prometheus.HistogramVec
	ActiveSimulations prometheus.Gauge
	TotalSimulations  prometheus.Counter
	SimErrors         *prometheus.CounterVec
	CopulaFitError    prometheus.Gauge

	// Result cache metrics
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	// Guardrail loop metrics
	Breaches      *prometheus.CounterVec
	Adjustments   *prometheus.CounterVec
	OutcomeFrames prometheus.Counter
}

// NewMetricsRegistry creates the registry with all service metrics. The
// registry is instance-scoped so tests can build servers independently.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		SimDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retina_sim_duration_seconds",
				Help:    "Duration of simulation runs in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"result"},
		),

		ActiveSimulations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "retina_active_simulations",
				Help: "Number of simulations currently running",
			},
		),

		TotalSimulations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "retina_simulations_total",
				Help: "Total number of simulation requests accepted",
			},
		),

		SimErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retina_sim_errors_total",
				Help: "Total simulation failures by error type",
			},
			[]string{"error_type"},
		),

		CopulaFitError: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "retina_copula_fit_error",
				Help: "Frobenius distance between requested and achieved rank correlation for the latest run",
			},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "retina_cache_hit_ratio",
				Help: "Current result cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retina_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retina_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		Breaches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retina_guardrail_breaches_total",
				Help: "Total guardrail breaches by severity",
			},
			[]string{"severity"},
		),

		Adjustments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retina_guardrail_adjustments_total",
				Help: "Total automatic threshold adjustments by severity",
			},
			[]string{"severity"},
		),

		OutcomeFrames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "retina_outcome_frames_total",
				Help: "Total actual-outcome observations received",
			},
		),
	}

	m.registry.MustRegister(
		m.SimDuration,
		m.ActiveSimulations,
		m.TotalSimulations,
		m.SimErrors,
		m.CopulaFitError,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
		m.Breaches,
		m.Adjustments,
		m.OutcomeFrames,
	)

	return m
}

// SimTimer tracks execution time of one simulation.
type SimTimer struct {
	metrics *MetricsRegistry
	start   time.Time
}

// StartSimTimer begins timing a simulation and bumps the active gauge.
func (m *MetricsRegistry) StartSimTimer() *SimTimer {
	m.ActiveSimulations.Inc()
	m.TotalSimulations.Inc()
	return &SimTimer{metrics: m, start: time.Now()}
}

// Stop completes the timing and records the metric.
func (st *SimTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.ActiveSimulations.Dec()
	st.metrics.SimDuration.WithLabelValues(result).Observe(duration.Seconds())

	log.Debug().
		Str("result", result).
		Dur("duration", duration).
		Msg("simulation completed")
}

// RecordCacheHit records a cache hit for the specified cache type.
func (m *MetricsRegistry) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified cache type.
func (m *MetricsRegistry) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordBreach records a guardrail breach by severity.
func (m *MetricsRegistry) RecordBreach(severity string) {
	m.Breaches.WithLabelValues(severity).Inc()
}

// RecordAdjustment records an automatic threshold adjustment.
func (m *MetricsRegistry) RecordAdjustment(severity string) {
	m.Adjustments.WithLabelValues(severity).Inc()
}

// RecordSimError records a simulation failure.
func (m *MetricsRegistry) RecordSimError(errorType string) {
	m.SimErrors.WithLabelValues(errorType).Inc()
}

// updateCacheHitRatio recomputes the hit ratio gauge from the counters.
func (m *MetricsRegistry) updateCacheHitRatio() {
	hitMetric := &io_prometheus_client.Metric{}
	missMetric := &io_prometheus_client.Metric{}

	totalHits := 0.0
	totalMisses := 0.0

	for _, cacheType := range []string{"results"} {
		if hitCounter, err := m.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := hitCounter.Write(hitMetric); err == nil {
				totalHits += hitMetric.GetCounter().GetValue()
			}
		}
		if missCounter, err := m.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := missCounter.Write(missMetric); err == nil {
				totalMisses += missMetric.GetCounter().GetValue()
			}
		}
	}

	total := totalHits + totalMisses
	if total > 0 {
		m.CacheHitRatio.Set(totalHits / total)
	}
}

// Handler returns the Prometheus scrape endpoint for this registry.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
