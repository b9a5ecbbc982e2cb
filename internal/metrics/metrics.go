// Package metrics exposes prometheus collectors for investigations, oracle
// calls and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vigil"

// Registry owns every vigil collector. It satisfies both
// service.InvestigationObserver and oracle.Observer.
type Registry struct {
	reg *prometheus.Registry

	stepDuration   *prometheus.HistogramVec
	stepErrors     *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	driftAlerts    *prometheus.CounterVec
	active         prometheus.Gauge
	oracleCalls    *prometheus.CounterVec
	oracleDuration *prometheus.HistogramVec
	oracleAttempts prometheus.Histogram
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "step_duration_seconds",
			Help:      "Duration of each investigation step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "step_errors_total",
			Help:      "Investigation steps that returned an error.",
		}, []string{"step"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "outcomes_total",
			Help:      "Finished investigations by outcome.",
		}, []string{"outcome"}),
		driftAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_alerts_total",
			Help:      "Framework drift alerts by framework and kind.",
		}, []string{"framework", "kind"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "investigation",
			Name:      "active",
			Help:      "Investigations currently running.",
		}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Oracle calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		oracleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Oracle call latency including retries.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"purpose"}),
		oracleAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "attempts",
			Help:      "Attempts needed per oracle call.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	r.reg.MustRegister(
		r.stepDuration, r.stepErrors, r.outcomes, r.driftAlerts, r.active,
		r.oracleCalls, r.oracleDuration, r.oracleAttempts,
		r.httpRequests, r.httpDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveStep(step domain.Step, d time.Duration, err error) {
	r.stepDuration.WithLabelValues(string(step)).Observe(d.Seconds())
	if err != nil {
		r.stepErrors.WithLabelValues(string(step)).Inc()
	}
}

func (r *Registry) ObserveOutcome(outcome domain.Outcome) {
	r.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (r *Registry) ObserveDrift(alert *domain.DriftAlert) {
	if alert == nil {
		return
	}
	r.driftAlerts.WithLabelValues(string(alert.Framework), string(alert.Kind)).Inc()
}

func (r *Registry) SetActiveInvestigations(n int) {
	r.active.Set(float64(n))
}

func (r *Registry) ObserveOracleCall(purpose, outcome string, attempts int, d time.Duration) {
	r.oracleCalls.WithLabelValues(purpose, outcome).Inc()
	r.oracleDuration.WithLabelValues(purpose).Observe(d.Seconds())
	r.oracleAttempts.Observe(float64(attempts))
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(method string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}
