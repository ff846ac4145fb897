package integrity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func sample(lat, lng float64, at time.Time) domain.LocationSample {
	return domain.LocationSample{
		Coordinate: domain.Coordinate{Latitude: lat, Longitude: lng},
		Accuracy:   10,
		Timestamp:  at,
		Source:     domain.SourceGPS,
	}
}

func findFlag(flags []domain.Flag, desc string) (domain.Flag, bool) {
	for _, f := range flags {
		if strings.HasPrefix(f.Description, desc) {
			return f, true
		}
	}
	return domain.Flag{}, false
}

func TestCheck_Clean(t *testing.T) {
	history := []domain.LocationSample{sample(-25.8627, 28.1871, t0)}
	current := sample(-25.8630, 28.1875, t0.Add(10*time.Minute))

	assert.Empty(t, Check(current, history, nil))
}

func TestCheck_Accuracy(t *testing.T) {
	current := sample(-25.8627, 28.1871, t0)

	current.Accuracy = 100
	_, ok := findFlag(Check(current, nil, nil), DescLowAccuracy)
	assert.False(t, ok, "accuracy at the threshold must not flag")

	current.Accuracy = 150
	f, ok := findFlag(Check(current, nil, nil), DescLowAccuracy)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityMedium, f.Severity)
}

func TestCheck_Speed(t *testing.T) {
	prev := sample(0, 0, t0)
	// 1 degree of longitude at the equator is ~111,195 m.
	second := float64(time.Second)
	tests := []struct {
		name     string
		elapsed  time.Duration
		severity domain.Severity
		flagged  bool
	}{
		{"walking pace", time.Hour, "", false},
		{"exactly 30 m/s is fine", time.Duration(111194.93 / 30 * second), "", false},
		{"highway speed", time.Duration(111195.0 / 40 * second), domain.SeverityHigh, true},
		{"impossible speed", time.Duration(111195.0 / 60 * second), domain.SeverityCritical, true},
		{"teleport", time.Second, domain.SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := sample(0, 1, t0.Add(tt.elapsed))
			var speed []domain.Flag
			for _, f := range Check(current, []domain.LocationSample{prev}, nil) {
				if IsSpeedFlag(f) {
					speed = append(speed, f)
				}
			}
			if !tt.flagged {
				assert.Empty(t, speed)
				return
			}
			require.Len(t, speed, 1)
			assert.Equal(t, tt.severity, speed[0].Severity)
			assert.Equal(t, domain.CategoryLocation, speed[0].Category)
		})
	}

	t.Run("zero elapsed is undefined", func(t *testing.T) {
		current := sample(0, 1, t0)
		for _, f := range Check(current, []domain.LocationSample{prev}, nil) {
			assert.False(t, IsSpeedFlag(f))
		}
	})

	t.Run("simultaneous prior sample hides older ones", func(t *testing.T) {
		// Far from an hour ago would read as 31 m/s; the simultaneous
		// sample is the most recent and leaves speed undefined.
		history := []domain.LocationSample{
			sample(0, 0, t0.Add(-time.Hour)),
			sample(0, 2, t0),
		}
		current := sample(0, 1, t0)
		for _, f := range Check(current, history, nil) {
			assert.False(t, IsSpeedFlag(f))
		}

		prevSample, ok := PreviousSample(current, history)
		require.True(t, ok)
		assert.Equal(t, t0, prevSample.Timestamp)
	})

	t.Run("uses the most recent prior sample", func(t *testing.T) {
		history := []domain.LocationSample{
			sample(0, 1, t0.Add(-time.Hour)),
			sample(0, 0.99999, t0.Add(50*time.Minute)),
			sample(0, 5, t0.Add(2*time.Hour)), // after current, ignored
		}
		current := sample(0, 1, t0.Add(time.Hour))
		for _, f := range Check(current, history, nil) {
			assert.False(t, IsSpeedFlag(f))
		}
	})
}

func TestCheck_Precision(t *testing.T) {
	current := sample(-25.86271234, 28.18711234, t0)
	_, ok := findFlag(Check(current, nil, nil), DescSuspiciousPrecise)
	assert.False(t, ok)

	current = sample(-25.862712345, 28.1871, t0)
	f, ok := findFlag(Check(current, nil, nil), DescSuspiciousPrecise)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityMedium, f.Severity)
}

func TestCheck_RepeatedExact(t *testing.T) {
	var history []domain.LocationSample
	for i := 0; i < 3; i++ {
		history = append(history, sample(-25.8627, 28.1871, t0.Add(time.Duration(i)*time.Hour)))
	}
	current := sample(-25.8627, 28.1871, t0.Add(5*time.Hour))

	_, ok := findFlag(Check(current, history, nil), DescRepeatedExact)
	assert.False(t, ok, "three repeats is within tolerance")

	history = append(history, sample(-25.8627, 28.1871, t0.Add(4*time.Hour)))
	f, ok := findFlag(Check(current, history, nil), DescRepeatedExact)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityHigh, f.Severity)
	assert.Equal(t, 4, f.Evidence["repeats"])
}

func TestCheck_UnusualLocation(t *testing.T) {
	var common []domain.CommonLocation
	for i := 0; i < 9; i++ {
		common = append(common, domain.CommonLocation{
			Coordinate: domain.Coordinate{Latitude: -25.8 - float64(i)*0.001, Longitude: 28.18},
			Frequency:  3,
		})
	}
	far := sample(-26.2, 28.05, t0)

	_, ok := findFlag(Check(far, nil, common), DescUnusualLocation)
	assert.False(t, ok, "fewer than ten common locations is not enough evidence")

	common = append(common, domain.CommonLocation{Coordinate: domain.Coordinate{Latitude: -25.81, Longitude: 28.18}})
	f, ok := findFlag(Check(far, nil, common), DescUnusualLocation)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityLow, f.Severity)

	near := sample(-25.8001, 28.1801, t0)
	_, ok = findFlag(Check(near, nil, common), DescUnusualLocation)
	assert.False(t, ok)
}

func TestCheck_AllRulesIndependent(t *testing.T) {
	var history []domain.LocationSample
	for i := 0; i < 4; i++ {
		history = append(history, sample(-25.862712345, 28.1871, t0.Add(time.Duration(i)*time.Minute)))
	}
	var common []domain.CommonLocation
	for i := 0; i < 10; i++ {
		common = append(common, domain.CommonLocation{Coordinate: domain.Coordinate{Latitude: 10, Longitude: float64(i)}})
	}
	// Same coordinates as history but the last prior sample is moved far away.
	history = append(history, sample(-20, 28.1871, t0.Add(5*time.Minute)))
	current := sample(-25.862712345, 28.1871, t0.Add(6*time.Minute))
	current.Accuracy = 500

	flags := Check(current, history, common)
	assert.Len(t, flags, 5)
}

func TestFastPairs(t *testing.T) {
	samples := []domain.LocationSample{
		sample(0, 0, t0),
		sample(0, 1, t0.Add(time.Minute)),   // ~1853 m/s
		sample(0, 1, t0.Add(2*time.Minute)), // stationary
		sample(0, 2, t0.Add(3*time.Minute)), // ~1853 m/s
		sample(0, 3, t0.Add(3*time.Minute)), // undefined
	}
	assert.Equal(t, 2, FastPairs(samples, SuspiciousSpeed))
	assert.Equal(t, 0, FastPairs(samples[:1], SuspiciousSpeed))
}
