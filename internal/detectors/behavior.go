package detectors

import (
	"github.com/opensource-finance/harrier/internal/domain"
)

// Behavior flag descriptions.
const (
	DescVisitTooShort    = "visit duration too short"
	DescVisitTooLong     = "visit duration unusually long"
	DescDailyVolumeSpike = "daily activity volume anomaly"
)

// Behavior compares visit durations and daily volume against the baseline.
type Behavior struct{}

// Name implements Detector.
func (Behavior) Name() string { return NameBehavior }

// Detect implements Detector.
func (Behavior) Detect(in *Input) ([]domain.Flag, error) {
	var flags []domain.Flag
	p := in.Profile

	if in.Event.Kind == domain.KindVisitEnd && in.Event.DurationSeconds != nil && p.AverageVisitDuration > 0 {
		d := *in.Event.DurationSeconds
		ratio := d / p.AverageVisitDuration
		evidence := map[string]any{
			"duration_s":     d,
			"average_s":      p.AverageVisitDuration,
			"ratio_to_usual": ratio,
		}
		switch {
		case ratio < 0.3:
			flags = append(flags, domain.Flag{
				Category:    domain.CategoryBehavior,
				Severity:    domain.SeverityMedium,
				Description: DescVisitTooShort,
				Confidence:  0.5,
				Evidence:    evidence,
			})
		case ratio > 3:
			flags = append(flags, domain.Flag{
				Category:    domain.CategoryBehavior,
				Severity:    domain.SeverityLow,
				Description: DescVisitTooLong,
				Confidence:  0.25,
				Evidence:    evidence,
			})
		}
	}

	if p.AverageVisitsPerDay > 0 {
		if n := in.SameDayCount(); float64(n) > 2*p.AverageVisitsPerDay {
			flags = append(flags, domain.Flag{
				Category:    domain.CategoryBehavior,
				Severity:    domain.SeverityMedium,
				Description: DescDailyVolumeSpike,
				Confidence:  0.5,
				Evidence: map[string]any{
					"activities_today": n,
					"average_per_day":  p.AverageVisitsPerDay,
				},
			})
		}
	}

	return flags, nil
}
