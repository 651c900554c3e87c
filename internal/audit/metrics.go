package audit

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks gateway metrics and serves them in Prometheus text format.
// It uses a custom prometheus.Registry for isolation and testability,
// with proper histograms, HELP/TYPE annotations, and standard exposition format.
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	evaluatorDenials *prometheus.CounterVec

	directoryRequests *prometheus.CounterVec
	directoryLatency  *prometheus.HistogramVec
	breakerState      prometheus.Gauge

	configReloads    *prometheus.CounterVec
	configReloadTime prometheus.Gauge
	buildInfo        *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics collector with a custom Prometheus registry.
// All metric families are pre-registered with HELP and TYPE metadata.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_decisions_total",
			Help: "Total number of authorization decisions by policy, outcome, and code.",
		}, []string{"policy", "outcome", "code"}),

		decisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passgate_decision_duration_seconds",
			Help:    "Authorization decision duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"policy"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_cache_lookups_total",
			Help: "Cache lookups by cache name (passport, policy, decision) and result.",
		}, []string{"cache", "result"}),

		evaluatorDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_evaluator_denials_total",
			Help: "Denials by enforcement dimension.",
		}, []string{"dimension"}),

		directoryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_directory_requests_total",
			Help: "Directory API requests by operation and outcome.",
		}, []string{"operation", "outcome"}),

		directoryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passgate_directory_latency_seconds",
			Help:    "Directory API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "passgate_directory_breaker_open",
			Help: "Directory circuit breaker state (1=open, 0=closed or half-open).",
		}),

		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_config_reloads_total",
			Help: "Total number of configuration reload attempts.",
		}, []string{"result"}),

		configReloadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "passgate_config_reload_timestamp_seconds",
			Help: "Unix timestamp of the last successful configuration reload.",
		}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "passgate_build_info",
			Help: "Build information about the passgate binary. Value is always 1.",
		}, []string{"version", "go_version"}),
	}

	reg.MustRegister(
		m.decisionsTotal,
		m.decisionDuration,
		m.cacheLookups,
		m.evaluatorDenials,
		m.directoryRequests,
		m.directoryLatency,
		m.breakerState,
		m.configReloads,
		m.configReloadTime,
		m.buildInfo,
	)

	return m
}

// RecordDecision increments the decision counter. Code is empty for allows.
func (m *Metrics) RecordDecision(policyID, outcome, code string) {
	m.decisionsTotal.WithLabelValues(policyID, outcome, code).Inc()
}

// ObserveDecisionDuration records how long one decision took.
func (m *Metrics) ObserveDecisionDuration(policyID string, seconds float64) {
	m.decisionDuration.WithLabelValues(policyID).Observe(seconds)
}

// RecordCacheLookup records a hit or miss for the named cache.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordEvaluatorDenial records a denial by the named dimension.
func (m *Metrics) RecordEvaluatorDenial(dimension string) {
	m.evaluatorDenials.WithLabelValues(dimension).Inc()
}

// RecordDirectoryRequest records a directory API call outcome.
// Outcome is "ok", "not_found", "error", or "timeout".
func (m *Metrics) RecordDirectoryRequest(operation, outcome string) {
	m.directoryRequests.WithLabelValues(operation, outcome).Inc()
}

// ObserveDirectoryLatency records directory API latency in seconds.
func (m *Metrics) ObserveDirectoryLatency(operation string, seconds float64) {
	m.directoryLatency.WithLabelValues(operation).Observe(seconds)
}

// SetBreakerOpen reflects the directory circuit breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	var val float64
	if open {
		val = 1
	}
	m.breakerState.Set(val)
}

// RecordConfigReload records a configuration reload attempt.
// Pass true for a successful reload, false for a failure.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetConfigReloadTime records the timestamp of the last configuration reload.
func (m *Metrics) SetConfigReloadTime(t time.Time) {
	m.configReloadTime.Set(float64(t.Unix()))
}

// SetBuildInfo sets the build information gauge. The gauge value is always 1;
// version and Go version are exposed as labels.
func (m *Metrics) SetBuildInfo(version, goVersion string) {
	m.buildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Handler returns an HTTP handler that serves /metrics in Prometheus text format.
// The output includes proper HELP and TYPE annotations per the Prometheus exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}
}
