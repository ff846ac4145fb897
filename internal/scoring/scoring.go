// Package scoring aggregates detector flags into a 0-100 risk score and a
// four-level risk classification.
package scoring

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Level thresholds. These are policy constants and must stay exact.
const (
	CriticalThreshold = 80.0
	HighThreshold     = 60.0
	MediumThreshold   = 30.0
)

// Weight returns the aggregation weight of a severity.
func Weight(s domain.Severity) float64 {
	switch s {
	case domain.SeverityLow:
		return 10
	case domain.SeverityMedium:
		return 25
	case domain.SeverityHigh:
		return 50
	case domain.SeverityCritical:
		return 100
	default:
		return 0
	}
}

// Assessment is the output of the scorer.
type Assessment struct {
	Score float64
	Level domain.RiskLevel

	// Aggregation details, kept for evidence and metrics
	WeightedMean float64
	Strongest    float64
	TotalWeight  float64
	FlagCount    int
}

// Score computes the risk score of a flag set.
//
// The score is the confidence-weighted mean 100*Σ(w·c)/Σw, floored by the
// strongest single flag max(w·c) and clamped to [0,100]. With no flags the
// score is 0. The floor keeps a CRITICAL flag at full confidence at 100,
// but a weak extra flag can still pull the mean down toward the floor.
func Score(flags []domain.Flag) Assessment {
	a := Assessment{FlagCount: len(flags)}

	var weighted float64
	for _, f := range flags {
		w := Weight(f.Severity)
		c := clamp(f.Confidence, 0, 1)

		weighted += w * c
		a.TotalWeight += w
		if w*c > a.Strongest {
			a.Strongest = w * c
		}
	}

	if a.TotalWeight > 0 {
		a.WeightedMean = 100 * weighted / a.TotalWeight
	}

	a.Score = clamp(math.Max(a.WeightedMean, a.Strongest), 0, 100)
	a.Level = Level(a.Score)
	return a
}

// Level maps a score to its risk level.
func Level(score float64) domain.RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return domain.RiskCritical
	case score >= HighThreshold:
		return domain.RiskHigh
	case score >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
