// Package metrics exposes the engine's Prometheus instruments.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/opensource-finance/harrier/internal/domain"
)

const namespace = "harrier"

// Metrics groups every instrument. A nil *Metrics records nothing.
type Metrics struct {
	detections         *prometheus.CounterVec
	flags              *prometheus.CounterVec
	actions            *prometheus.CounterVec
	detectorFailures   *prometheus.CounterVec
	degraded           prometheus.Counter
	riskScore          prometheus.Histogram
	duration           prometheus.Histogram
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		detections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Scored activities by risk level",
		}, []string{"risk_level"}),

		flags: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flags_total",
			Help:      "Raised fraud flags by category and severity",
		}, []string{"category", "severity"}),

		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Automatic actions selected by policy",
		}, []string{"kind"}),

		detectorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_failures_total",
			Help:      "Detector runs that returned an error or panicked",
		}, []string{"detector"}),

		degraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_detections_total",
			Help:      "Activities scored without full evidence because persistence failed",
		}),

		riskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of risk scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "End-to-end latency of one detection",
			Buckets:   prometheus.DefBuckets,
		}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breakers (0=closed, 0.5=half-open, 1=open)",
		}, []string{"breaker"}),

		breakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state transitions",
		}, []string{"breaker", "from", "to"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveResult records one finished detection.
func (m *Metrics) ObserveResult(result *domain.FraudResult, elapsed time.Duration) {
	if m == nil || result == nil {
		return
	}
	m.detections.WithLabelValues(string(result.RiskLevel)).Inc()
	m.riskScore.Observe(result.RiskScore)
	m.duration.Observe(elapsed.Seconds())
	for _, f := range result.Flags {
		m.flags.WithLabelValues(string(f.Category), string(f.Severity)).Inc()
	}
	for _, a := range result.Actions {
		m.actions.WithLabelValues(string(a.Kind)).Inc()
	}
	if result.Degraded {
		m.degraded.Inc()
	}
}

// DetectorFailed counts a failed detector run.
func (m *Metrics) DetectorFailed(detector string) {
	if m == nil {
		return
	}
	m.detectorFailures.WithLabelValues(detector).Inc()
}

// BreakerStateChanged is suitable as a gobreaker OnStateChange hook.
func (m *Metrics) BreakerStateChanged(name string, from, to gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	m.breakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "not_found"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return -1
	}
}
