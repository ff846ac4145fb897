package profile

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/geo"
)

// Smoothing parameters for the rolling baseline.
const (
	// Alpha is the EMA weight given to a new observation.
	Alpha = 0.1

	// ClipFactor bounds an observation to [0, ClipFactor x current average]
	// before it enters the average.
	ClipFactor = 3.0

	// CommonLocationRadius merges a new position into an existing common
	// location when closer than this many meters.
	CommonLocationRadius = 100.0

	// MaxCommonLocations caps the common-location set.
	MaxCommonLocations = 50

	dayLayout = "2006-01-02"
)

// Apply folds one scored event into a copy of p and returns the copy.
// p is never modified.
func Apply(p *domain.BehaviorProfile, event *domain.ActivityEvent, level domain.RiskLevel, now time.Time) *domain.BehaviorProfile {
	next := p.Clone()

	switch event.Kind {
	case domain.KindVisitStart:
		countVisit(next, event.Timestamp)
	case domain.KindVisitEnd:
		if event.DurationSeconds != nil {
			next.AverageVisitDuration = ema(next.AverageVisitDuration, *event.DurationSeconds)
		}
	case domain.KindSale:
		if event.Amount != nil {
			next.AverageSaleAmount = ema(next.AverageSaleAmount, event.Amount.InexactFloat64())
		}
	}

	if event.Photo != nil && event.Photo.Quality != nil {
		q := *event.Photo.Quality
		if q > 100 {
			q = 100
		}
		next.AveragePhotoQuality = ema(next.AveragePhotoQuality, q)
	}

	// Only trusted positions teach the baseline where the agent normally works.
	if event.Location != nil && (level == domain.RiskLow || level == domain.RiskMedium) {
		next.CommonLocations = addCommonLocation(next.CommonLocations, event.Location.Coordinate, event.Timestamp)
	}

	if level != domain.RiskLow && level != "" {
		next.SuspiciousCount++
	}

	next.LastUpdated = now.UTC()
	return next
}

// ema blends obs into avg after winsorizing it against the current average.
func ema(avg, obs float64) float64 {
	if obs < 0 {
		obs = 0
	}
	if avg > 0 && obs > ClipFactor*avg {
		obs = ClipFactor * avg
	}
	return avg + Alpha*(obs-avg)
}

// countVisit tracks visit starts per local calendar day. A completed day is
// folded into AverageVisitsPerDay when the first visit of a later day arrives.
// Visits dated before the current bucket are ignored.
func countVisit(p *domain.BehaviorProfile, at time.Time) {
	day := at.In(p.Location()).Format(dayLayout)

	switch {
	case p.VisitsDay == "":
		p.VisitsDay = day
		p.VisitsToday = 1
	case day == p.VisitsDay:
		p.VisitsToday++
	case day > p.VisitsDay:
		if p.VisitsToday > 0 {
			p.AverageVisitsPerDay = ema(p.AverageVisitsPerDay, float64(p.VisitsToday))
		}
		p.VisitsDay = day
		p.VisitsToday = 1
	}
}

func addCommonLocation(locs []domain.CommonLocation, c domain.Coordinate, at time.Time) []domain.CommonLocation {
	best, bestDist := -1, CommonLocationRadius
	for i, l := range locs {
		if d := geo.DistanceMeters(l.Coordinate, c); d <= bestDist {
			best, bestDist = i, d
		}
	}

	if best >= 0 {
		locs[best].Frequency++
		if at.After(locs[best].LastSeen) {
			locs[best].LastSeen = at
		}
		return locs
	}

	locs = append(locs, domain.CommonLocation{Coordinate: c, Frequency: 1, LastSeen: at})
	if len(locs) <= MaxCommonLocations {
		return locs
	}

	// Evict the least visited entry, oldest first on ties.
	sort.SliceStable(locs, func(i, j int) bool {
		if locs[i].Frequency != locs[j].Frequency {
			return locs[i].Frequency > locs[j].Frequency
		}
		return locs[i].LastSeen.After(locs[j].LastSeen)
	})
	return locs[:MaxCommonLocations]
}
