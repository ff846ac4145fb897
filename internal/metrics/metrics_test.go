package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestObserveResult(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveResult(&domain.FraudResult{
		RiskLevel: domain.RiskHigh,
		RiskScore: 65,
		Degraded:  true,
		Flags: []domain.Flag{
			{Category: domain.CategoryLocation, Severity: domain.SeverityHigh},
			{Category: domain.CategoryLocation, Severity: domain.SeverityHigh},
			{Category: domain.CategoryTime, Severity: domain.SeverityMedium},
		},
		Actions: []domain.AutoAction{{Kind: domain.ActionLogIncident}, {Kind: domain.ActionAlertManager}},
	}, 15*time.Millisecond)

	if got := testutil.ToFloat64(m.detections.WithLabelValues("HIGH")); got != 1 {
		t.Errorf("expected 1 HIGH detection, got %v", got)
	}
	if got := testutil.ToFloat64(m.flags.WithLabelValues("LOCATION", "HIGH")); got != 2 {
		t.Errorf("expected 2 location flags, got %v", got)
	}
	if got := testutil.ToFloat64(m.actions.WithLabelValues("ALERT_MANAGER")); got != 1 {
		t.Errorf("expected 1 alert action, got %v", got)
	}
	if got := testutil.ToFloat64(m.degraded); got != 1 {
		t.Errorf("expected 1 degraded detection, got %v", got)
	}
}

func TestBreakerStateChanged(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BreakerStateChanged("persistence", gobreaker.StateClosed, gobreaker.StateOpen)
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("persistence")); got != 1 {
		t.Errorf("expected open state gauge 1, got %v", got)
	}

	m.BreakerStateChanged("persistence", gobreaker.StateOpen, gobreaker.StateHalfOpen)
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("persistence")); got != 0.5 {
		t.Errorf("expected half-open state gauge 0.5, got %v", got)
	}
}

func TestObserveHTTP(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveHTTP("POST", "/v1/detect", 200, time.Millisecond)
	m.ObserveHTTP("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/v1/detect", "200")); got != 1 {
		t.Errorf("expected 1 detect request, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "not_found", "404")); got != 1 {
		t.Errorf("expected 1 not_found request, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveResult(&domain.FraudResult{RiskLevel: domain.RiskLow}, time.Second)
	m.DetectorFailed("location")
	m.BreakerStateChanged("x", gobreaker.StateClosed, gobreaker.StateOpen)
	m.ObserveHTTP("GET", "/", 200, time.Second)
}
