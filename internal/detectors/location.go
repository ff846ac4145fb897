package detectors

import (
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/geo"
	"github.com/opensource-finance/harrier/internal/integrity"
)

// Names of the built-in detectors.
const (
	NameLocation = "location"
	NameTime     = "time"
	NamePhoto    = "photo"
	NameBehavior = "behavior"
	NameSales    = "sales"
	NamePattern  = "pattern"
	NameCustom   = "custom"
)

// speedWindow is the history span used for the travel cross-check.
const speedWindow = 24 * time.Hour

// DescOutsideTerritory is raised when the agent reports from outside the
// assigned geofence.
const DescOutsideTerritory = "outside assigned territory"

// Location wraps the integrity checker with a 24h travel cross-check and a
// territory geofence test.
type Location struct{}

// Name implements Detector.
func (Location) Name() string { return NameLocation }

// Detect implements Detector.
func (Location) Detect(in *Input) ([]domain.Flag, error) {
	loc := in.Event.Location
	if loc == nil {
		return nil, nil
	}

	current := *loc
	current.Timestamp = in.Event.Timestamp

	prior := in.PriorLocations(speedWindow)
	flags := integrity.Check(current, prior, in.Profile.CommonLocations)

	// Repeated superhuman hops across the window make a speed flag more credible.
	fast := integrity.FastPairs(append(prior, current), integrity.SuspiciousSpeed)
	if fast >= 2 {
		for i := range flags {
			if !integrity.IsSpeedFlag(flags[i]) {
				continue
			}
			flags[i].Confidence = math.Min(1, flags[i].Confidence+0.05*float64(fast-1))
			flags[i].Evidence["fast_pairs_24h"] = fast
		}
	}

	if len(in.History.Territory) >= 3 && !geo.IsInsidePolygon(current.Coordinate, in.History.Territory) {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryLocation,
			Severity:    domain.SeverityMedium,
			Description: DescOutsideTerritory,
			Confidence:  0.5,
			Evidence: map[string]any{
				"latitude":  current.Latitude,
				"longitude": current.Longitude,
			},
		})
	}

	return flags, nil
}
