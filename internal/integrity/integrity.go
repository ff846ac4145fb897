// Package integrity checks a single location sample against the agent's
// recent history for signs of spoofing.
package integrity

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/geo"
)

// Thresholds used by the checker.
const (
	MaxAccuracyMeters      = 100.0
	CriticalSpeed          = 50.0 // m/s, 180 km/h
	SuspiciousSpeed        = 30.0 // m/s, 108 km/h
	MaxDecimalPrecision    = 8
	MaxExactRepeats        = 3
	UnusualLocationMeters  = 1000.0
	MinCommonLocationsSeen = 10
)

// Confidence assigned to each rule.
const (
	confAccuracy  = 0.5
	confCritical  = 0.95
	confHigh      = 0.7
	confPrecision = 0.5
	confRepeat    = 0.7
	confUnusual   = 0.25
)

// Flag descriptions.
const (
	DescLowAccuracy       = "GPS accuracy too low"
	DescImpossibleSpeed   = "impossible travel speed"
	DescSuspiciousSpeed   = "suspicious travel speed"
	DescSuspiciousPrecise = "suspicious precision"
	DescRepeatedExact     = "repeated exact coordinates"
	DescUnusualLocation   = "unusual location for this agent"
)

// Check evaluates every location rule independently and returns zero to
// five flags. history is the agent's prior samples, not including current.
func Check(current domain.LocationSample, history []domain.LocationSample, common []domain.CommonLocation) []domain.Flag {
	var flags []domain.Flag

	if current.Accuracy > MaxAccuracyMeters {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryLocation,
			Severity:    domain.SeverityMedium,
			Description: DescLowAccuracy,
			Confidence:  confAccuracy,
			Evidence: map[string]any{
				"accuracy_m":  current.Accuracy,
				"threshold_m": MaxAccuracyMeters,
			},
		})
	}

	if f, ok := speedFlag(current, history); ok {
		flags = append(flags, f)
	}

	latDigits := geo.DecimalPrecision(current.Latitude)
	lngDigits := geo.DecimalPrecision(current.Longitude)
	if latDigits > MaxDecimalPrecision || lngDigits > MaxDecimalPrecision {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryLocation,
			Severity:    domain.SeverityMedium,
			Description: DescSuspiciousPrecise,
			Confidence:  confPrecision,
			Evidence: map[string]any{
				"latitude_digits":  latDigits,
				"longitude_digits": lngDigits,
			},
		})
	}

	repeats := 0
	for _, h := range history {
		if h.Latitude == current.Latitude && h.Longitude == current.Longitude {
			repeats++
		}
	}
	if repeats > MaxExactRepeats {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryLocation,
			Severity:    domain.SeverityHigh,
			Description: DescRepeatedExact,
			Confidence:  confRepeat,
			Evidence: map[string]any{
				"repeats": repeats,
			},
		})
	}

	if len(common) >= MinCommonLocationsSeen {
		nearest := -1.0
		for _, c := range common {
			d := geo.DistanceMeters(current.Coordinate, c.Coordinate)
			if nearest < 0 || d < nearest {
				nearest = d
			}
		}
		if nearest > UnusualLocationMeters {
			flags = append(flags, domain.Flag{
				Category:    domain.CategoryLocation,
				Severity:    domain.SeverityLow,
				Description: DescUnusualLocation,
				Confidence:  confUnusual,
				Evidence: map[string]any{
					"nearest_common_m": nearest,
					"common_locations": len(common),
				},
			})
		}
	}

	return flags
}

// PreviousSample returns the latest history sample at or before current.
// A sample sharing current's timestamp is returned as is; the speed check
// then treats the pair as undefined.
func PreviousSample(current domain.LocationSample, history []domain.LocationSample) (domain.LocationSample, bool) {
	var prev domain.LocationSample
	found := false
	for _, h := range history {
		if h.Timestamp.After(current.Timestamp) {
			continue
		}
		if !found || !h.Timestamp.Before(prev.Timestamp) {
			prev, found = h, true
		}
	}
	return prev, found
}

func speedFlag(current domain.LocationSample, history []domain.LocationSample) (domain.Flag, bool) {
	prev, ok := PreviousSample(current, history)
	if !ok {
		return domain.Flag{}, false
	}
	speed, ok := geo.SpeedMetersPerSecond(prev, current)
	if !ok || speed <= SuspiciousSpeed {
		return domain.Flag{}, false
	}

	f := domain.Flag{
		Category:    domain.CategoryLocation,
		Severity:    domain.SeverityHigh,
		Description: DescSuspiciousSpeed,
		Confidence:  confHigh,
		Evidence: map[string]any{
			"speed_mps":     speed,
			"speed_kmh":     speed * 3.6,
			"distance_m":    geo.DistanceMeters(prev.Coordinate, current.Coordinate),
			"elapsed_s":     current.Timestamp.Sub(prev.Timestamp).Seconds(),
			"previous_at":   prev.Timestamp,
			"threshold_mps": SuspiciousSpeed,
		},
	}
	if speed > CriticalSpeed {
		f.Severity = domain.SeverityCritical
		f.Description = DescImpossibleSpeed
		f.Confidence = confCritical
		f.Evidence["threshold_mps"] = CriticalSpeed
	}
	f.Description = fmt.Sprintf("%s (%.0f km/h)", f.Description, speed*3.6)
	return f, true
}

// IsSpeedFlag reports whether f was raised by the travel-speed rule.
func IsSpeedFlag(f domain.Flag) bool {
	_, ok := f.Evidence["speed_mps"]
	return f.Category == domain.CategoryLocation && ok
}

// FastPairs counts consecutive pairs in a chronological window whose implied
// speed exceeds threshold. Pairs with undefined speed are skipped.
func FastPairs(samples []domain.LocationSample, threshold float64) int {
	n := 0
	for i := 1; i < len(samples); i++ {
		if speed, ok := geo.SpeedMetersPerSecond(samples[i-1], samples[i]); ok && speed > threshold {
			n++
		}
	}
	return n
}
