package detectors

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/geo"
)

// Pattern flag descriptions.
const (
	DescRepetitiveCustomer = "repetitive pattern with the same customer"
	DescCollusion          = "possible collusion"
)

// Pattern thresholds.
const (
	MaxSameCustomerPerDay = 5
	MaxNearbyAgents       = 2
)

// Pattern looks for repetition with one customer and for clusters of
// agents reporting from the same place at the same time.
type Pattern struct {
	Radius float64       // meters
	Window time.Duration // either side of the event
}

// NewPattern returns a pattern detector with the default proximity window.
func NewPattern() Pattern {
	return Pattern{Radius: 100, Window: 30 * time.Minute}
}

// Name implements Detector.
func (Pattern) Name() string { return NamePattern }

// Detect implements Detector.
func (p Pattern) Detect(in *Input) ([]domain.Flag, error) {
	var flags []domain.Flag
	e := in.Event

	if e.CustomerID != "" {
		n := 1
		from := e.Timestamp.Add(-24 * time.Hour)
		for _, a := range in.priorActivities() {
			if a.CustomerID == e.CustomerID && a.Timestamp.After(from) && !a.Timestamp.After(e.Timestamp) {
				n++
			}
		}
		if n > MaxSameCustomerPerDay {
			flags = append(flags, domain.Flag{
				Category:    domain.CategoryPattern,
				Severity:    domain.SeverityMedium,
				Description: DescRepetitiveCustomer,
				Confidence:  0.5,
				Evidence: map[string]any{
					"customer_id":    e.CustomerID,
					"activities_24h": n,
				},
			})
		}
	}

	if e.Location != nil {
		agents := p.nearbyAgents(in)
		if len(agents) > MaxNearbyAgents {
			flags = append(flags, domain.Flag{
				Category:    domain.CategoryPattern,
				Severity:    domain.SeverityHigh,
				Description: DescCollusion,
				Confidence:  0.7,
				Evidence: map[string]any{
					"nearby_agents": agents,
					"radius_m":      p.Radius,
					"window_min":    p.Window.Minutes(),
				},
			})
		}
	}

	return flags, nil
}

// nearbyAgents returns the sorted distinct other agents active within the
// radius and time window.
func (p Pattern) nearbyAgents(in *Input) []string {
	e := in.Event
	seen := make(map[string]bool)
	for _, a := range in.History.Nearby {
		if a.AgentID == "" || a.AgentID == e.AgentID || a.Location == nil {
			continue
		}
		dt := a.Timestamp.Sub(e.Timestamp)
		if dt < -p.Window || dt > p.Window {
			continue
		}
		if geo.DistanceMeters(a.Location.Coordinate, e.Location.Coordinate) > p.Radius {
			continue
		}
		seen[a.AgentID] = true
	}

	agents := make([]string, 0, len(seen))
	for id := range seen {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return agents
}
