package detectors

import (
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Time flag descriptions.
const (
	DescOutsideHours     = "activity outside working hours"
	DescWeekend          = "weekend activity"
	DescFrequencyAnomaly = "activity frequency anomaly"
)

// MaxActivitiesPerHour is the trailing-hour activity ceiling.
const MaxActivitiesPerHour = 10

// Time flags activity at unusual hours, on weekends, or at a burst rate.
type Time struct{}

// Name implements Detector.
func (Time) Name() string { return NameTime }

// Detect implements Detector.
func (Time) Detect(in *Input) ([]domain.Flag, error) {
	var flags []domain.Flag
	local := in.LocalTime()
	hour := local.Hour()

	if hour < in.Profile.WorkStartHour || hour >= in.Profile.WorkEndHour {
		f := domain.Flag{
			Category:    domain.CategoryTime,
			Severity:    domain.SeverityMedium,
			Description: DescOutsideHours,
			Confidence:  0.5,
			Evidence: map[string]any{
				"hour":       hour,
				"work_start": in.Profile.WorkStartHour,
				"work_end":   in.Profile.WorkEndHour,
				"timezone":   local.Location().String(),
			},
		}
		if hour < 6 || hour > 22 {
			f.Severity = domain.SeverityHigh
			f.Confidence = 0.7
		}
		flags = append(flags, f)
	}

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryTime,
			Severity:    domain.SeverityMedium,
			Description: DescWeekend,
			Confidence:  0.5,
			Evidence:    map[string]any{"weekday": wd.String()},
		})
	}

	if n := in.TrailingHourCount(); n > MaxActivitiesPerHour {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryTime,
			Severity:    domain.SeverityHigh,
			Description: DescFrequencyAnomaly,
			Confidence:  0.7,
			Evidence: map[string]any{
				"activities_last_hour": n,
				"threshold":            MaxActivitiesPerHour,
			},
		})
	}

	return flags, nil
}
