// Package geo provides the pure geospatial primitives used by the detectors:
// great-circle distance, travel speed, geofence tests and route ordering.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// EarthRadiusMeters is the mean Earth radius used by the Haversine formula.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b domain.Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// SpeedMetersPerSecond returns the implied travel speed from a to b.
// ok is false when b is not strictly later than a; the speed is then
// undefined and must be excluded from anomaly checks.
func SpeedMetersPerSecond(a, b domain.LocationSample) (speed float64, ok bool) {
	elapsed := b.Timestamp.Sub(a.Timestamp).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	return DistanceMeters(a.Coordinate, b.Coordinate) / elapsed, true
}

// IsInsidePolygon reports whether p lies inside polygon using ray casting
// along the longitude axis. Polygons with fewer than three vertices contain
// nothing. A crossing counts when exactly one edge endpoint lies strictly
// above the ray, which resolves points on an edge deterministically.
func IsInsidePolygon(p domain.Coordinate, polygon []domain.Coordinate) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := polygon[i], polygon[j]
		if (vi.Latitude > p.Latitude) != (vj.Latitude > p.Latitude) {
			cross := (vj.Longitude-vi.Longitude)*(p.Latitude-vi.Latitude)/(vj.Latitude-vi.Latitude) + vi.Longitude
			if p.Longitude < cross {
				inside = !inside
			}
		}
	}
	return inside
}

// DecimalPrecision counts the digits after the decimal point in the shortest
// decimal representation that round-trips to v. Non-finite values report 0.
func DecimalPrecision(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}

// OrderByNearestNeighbor returns the indices of stops in greedy
// nearest-neighbor visiting order starting from start. Ties go to the
// lower index.
func OrderByNearestNeighbor(start domain.Coordinate, stops []domain.Coordinate) []int {
	order := make([]int, 0, len(stops))
	visited := make([]bool, len(stops))
	current := start

	for range stops {
		best := -1
		bestDist := math.Inf(1)
		for i, s := range stops {
			if visited[i] {
				continue
			}
			if d := DistanceMeters(current, s); d < bestDist {
				best, bestDist = i, d
			}
		}
		visited[best] = true
		order = append(order, best)
		current = stops[best]
	}
	return order
}

// Box is a latitude/longitude rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a rectangle guaranteed to contain every point within
// radius meters of center. Near the poles the longitude span is widened to
// the full range.
func BoundingBox(center domain.Coordinate, radius float64) Box {
	dLat := degrees(radius / EarthRadiusMeters)
	b := Box{
		MinLat: math.Max(-90, center.Latitude-dLat),
		MaxLat: math.Min(90, center.Latitude+dLat),
		MinLng: -180,
		MaxLng: 180,
	}

	cos := math.Cos(radians(center.Latitude))
	if cos > 1e-6 {
		dLng := dLat / cos
		if dLng < 180 {
			b.MinLng = center.Longitude - dLng
			b.MaxLng = center.Longitude + dLng
		}
	}
	return b
}

// Contains reports whether c lies within the box. Boxes that cross the
// antimeridian are not normalized; callers filter by exact distance after.
func (b Box) Contains(c domain.Coordinate) bool {
	return c.Latitude >= b.MinLat && c.Latitude <= b.MaxLat &&
		c.Longitude >= b.MinLng && c.Longitude <= b.MaxLng
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
