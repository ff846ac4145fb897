package fraud

import (
	"context"
	"fmt"

	"github.com/opensource-finance/harrier/internal/detectors"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Evaluation is the outcome of scoring one event.
type Evaluation struct {
	Result   *domain.FraudResult
	Failures []*domain.DetectorError
}

// Evaluate runs the detectors, scorer and policy over gathered evidence.
// It has no side effects and assigns no IDs: equal inputs give equal
// results.
func (s *Service) Evaluate(ctx context.Context, event *domain.ActivityEvent, history *domain.History, profile *domain.BehaviorProfile, notes []policy.Note) *Evaluation {
	in := detectors.NewInput(event, history, profile)
	out := s.registry.Run(ctx, in)

	all := make([]policy.Note, 0, len(notes)+len(out.Failures))
	all = append(all, notes...)
	for _, f := range out.Failures {
		all = append(all, policy.Note{
			Kind:   policy.NoteDetectorFailed,
			Detail: fmt.Sprintf("detector %s failed: %v", f.Detector, f.Err),
		})
	}

	flags := out.Flags
	if flags == nil {
		flags = []domain.Flag{}
	}

	assessment := scoring.Score(flags)
	decision := policy.Decide(event.AgentID, assessment, flags, all)

	degraded := false
	for _, n := range notes {
		if n.Kind == policy.NoteDegraded {
			degraded = true
		}
	}

	return &Evaluation{
		Result: &domain.FraudResult{
			AgentID:         event.AgentID,
			EventID:         event.ID,
			EventTimestamp:  event.Timestamp,
			RiskLevel:       assessment.Level,
			RiskScore:       assessment.Score,
			Flags:           flags,
			Recommendations: decision.Recommendations,
			Actions:         decision.Actions,
			Degraded:        degraded,
		},
		Failures: out.Failures,
	}
}
