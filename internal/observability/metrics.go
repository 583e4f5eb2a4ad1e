package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the authorization engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	guardDecisions  *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	projectionRows  *prometheus.CounterVec
	sessionErrors   *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stratus_guard_decisions_total",
		Help: "Route guard decisions by outcome.",
	}, []string{"outcome"})
	refresh := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratus_projection_refresh_seconds",
		Help:    "Duration of permission projection refreshes.",
		Buckets: prometheus.DefBuckets,
	})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stratus_projection_rows_total",
		Help: "Role and user rows applied by projection refreshes.",
	}, []string{"entity"})
	sessionErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stratus_session_store_errors_total",
		Help: "Session store operation failures by operation.",
	}, []string{"op"})
	registry.MustRegister(decisions, refresh, rows, sessionErrs)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		guardDecisions:  decisions,
		refreshDuration: refresh,
		projectionRows:  rows,
		sessionErrors:   sessionErrs,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// IncGuardDecision counts one guard decision by outcome label.
func (m *Metrics) IncGuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(outcome).Inc()
}

// ObserveRefresh records one projection refresh duration.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
}

// AddProjectionRows counts rows applied by a refresh for one entity.
func (m *Metrics) AddProjectionRows(entity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.projectionRows.WithLabelValues(entity).Add(float64(n))
}

// IncSessionError counts one session store operation failure.
func (m *Metrics) IncSessionError(op string) {
	if m == nil {
		return
	}
	m.sessionErrors.WithLabelValues(op).Inc()
}
