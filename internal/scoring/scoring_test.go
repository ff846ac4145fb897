package scoring

import (
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func flag(sev domain.Severity, conf float64) domain.Flag {
	return domain.Flag{Category: domain.CategoryLocation, Severity: sev, Confidence: conf}
}

func TestScore(t *testing.T) {
	t.Run("NoFlags", func(t *testing.T) {
		a := Score(nil)
		if a.Score != 0 {
			t.Errorf("expected score 0, got %.2f", a.Score)
		}
		if a.Level != domain.RiskLow {
			t.Errorf("expected LOW, got %s", a.Level)
		}
	})

	t.Run("SingleFlagPerSeverity", func(t *testing.T) {
		tests := []struct {
			flag  domain.Flag
			score float64
			level domain.RiskLevel
		}{
			{flag(domain.SeverityLow, 0.25), 25, domain.RiskLow},
			{flag(domain.SeverityMedium, 0.5), 50, domain.RiskMedium},
			{flag(domain.SeverityHigh, 0.7), 70, domain.RiskHigh},
			{flag(domain.SeverityCritical, 0.95), 95, domain.RiskCritical},
		}
		for _, tt := range tests {
			a := Score([]domain.Flag{tt.flag})
			if diff := a.Score - tt.score; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("%s: expected score %.2f, got %.2f", tt.flag.Severity, tt.score, a.Score)
			}
			if a.Level != tt.level {
				t.Errorf("%s: expected level %s, got %s", tt.flag.Severity, tt.level, a.Level)
			}
		}
	})

	t.Run("WeightedMean", func(t *testing.T) {
		// (50*0.7 + 25*0.5) / 75 * 100 = 63.33
		a := Score([]domain.Flag{flag(domain.SeverityHigh, 0.7), flag(domain.SeverityMedium, 0.5)})
		if a.Score < 63.3 || a.Score > 63.4 {
			t.Errorf("expected score ~63.33, got %.2f", a.Score)
		}
		if a.Level != domain.RiskHigh {
			t.Errorf("expected HIGH, got %s", a.Level)
		}
		if a.TotalWeight != 75 {
			t.Errorf("expected total weight 75, got %.0f", a.TotalWeight)
		}
	})

	t.Run("CriticalFloor", func(t *testing.T) {
		others := []domain.Flag{
			flag(domain.SeverityLow, 0.1),
			flag(domain.SeverityLow, 0.1),
			flag(domain.SeverityMedium, 0.2),
			flag(domain.SeverityHigh, 0.3),
			flag(domain.SeverityMedium, 0.5),
		}
		for i := 0; i <= len(others); i++ {
			flags := append([]domain.Flag{flag(domain.SeverityCritical, 1.0)}, others[:i]...)
			a := Score(flags)
			if a.Level != domain.RiskCritical {
				t.Errorf("with %d extra flags: expected CRITICAL, got %s (%.2f)", i, a.Level, a.Score)
			}
			if a.Score != 100 {
				t.Errorf("with %d extra flags: expected score 100, got %.2f", i, a.Score)
			}
		}
	})

	t.Run("WeakFlagLowersMeanAboveFloor", func(t *testing.T) {
		high := flag(domain.SeverityHigh, 1.0)
		alone := Score([]domain.Flag{high})
		if alone.Score != 100 {
			t.Fatalf("expected score 100, got %.2f", alone.Score)
		}

		// (50 + 10*0.25) / 60 * 100 = 87.5
		with := Score([]domain.Flag{high, flag(domain.SeverityLow, 0.25)})
		if with.Score < 87.49 || with.Score > 87.51 {
			t.Errorf("expected score 87.5, got %.2f", with.Score)
		}
		if with.Score < with.Strongest {
			t.Errorf("score %.2f fell below the strongest flag %.2f", with.Score, with.Strongest)
		}
	})

	t.Run("Clamped", func(t *testing.T) {
		a := Score([]domain.Flag{flag(domain.SeverityHigh, 4.0)})
		if a.Score != 100 {
			t.Errorf("expected clamp to 100, got %.2f", a.Score)
		}
		a = Score([]domain.Flag{flag(domain.SeverityHigh, -1)})
		if a.Score != 0 {
			t.Errorf("expected clamp to 0, got %.2f", a.Score)
		}
	})

	t.Run("OrderIndependent", func(t *testing.T) {
		f1 := flag(domain.SeverityLow, 0.25)
		f2 := flag(domain.SeverityHigh, 0.7)
		f3 := flag(domain.SeverityMedium, 0.5)
		a := Score([]domain.Flag{f1, f2, f3})
		b := Score([]domain.Flag{f3, f1, f2})
		if a.Score-b.Score > 1e-9 || b.Score-a.Score > 1e-9 {
			t.Errorf("expected order-independent scores, got %.6f and %.6f", a.Score, b.Score)
		}
	})
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{29.99, domain.RiskLow},
		{30, domain.RiskMedium},
		{59.99, domain.RiskMedium},
		{60, domain.RiskHigh},
		{79.99, domain.RiskHigh},
		{80, domain.RiskCritical},
		{100, domain.RiskCritical},
	}
	for _, tt := range tests {
		if got := Level(tt.score); got != tt.want {
			t.Errorf("Level(%.2f): expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestWeight(t *testing.T) {
	if Weight(domain.SeverityLow) != 10 || Weight(domain.SeverityMedium) != 25 ||
		Weight(domain.SeverityHigh) != 50 || Weight(domain.SeverityCritical) != 100 {
		t.Error("severity weights changed")
	}
	if Weight("BOGUS") != 0 {
		t.Error("unknown severity should weigh nothing")
	}
}
