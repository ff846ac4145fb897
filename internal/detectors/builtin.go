package detectors

import "time"

// Options tunes the built-in detectors.
type Options struct {
	CollusionRadiusMeters float64
	CollusionWindow       time.Duration
}

// Builtin returns the six built-in detectors in registry order.
func Builtin(opts Options) []Detector {
	pattern := NewPattern()
	if opts.CollusionRadiusMeters > 0 {
		pattern.Radius = opts.CollusionRadiusMeters
	}
	if opts.CollusionWindow > 0 {
		pattern.Window = opts.CollusionWindow
	}

	return []Detector{
		Location{},
		Time{},
		Photo{},
		Behavior{},
		Sales{},
		pattern,
	}
}
