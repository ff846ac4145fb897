package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/scoring"
)

func kinds(actions []domain.AutoAction) []domain.ActionKind {
	out := make([]domain.ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestDecide_ActionsPerLevel(t *testing.T) {
	tests := []struct {
		level domain.RiskLevel
		score float64
		want  []domain.ActionKind
	}{
		{domain.RiskLow, 10, []domain.ActionKind{domain.ActionLogIncident}},
		{domain.RiskMedium, 45, []domain.ActionKind{domain.ActionLogIncident, domain.ActionAlertManager}},
		{domain.RiskHigh, 65, []domain.ActionKind{domain.ActionLogIncident, domain.ActionAlertManager, domain.ActionRequireVerification}},
		{domain.RiskCritical, 95, []domain.ActionKind{domain.ActionLogIncident, domain.ActionSuspendAgent, domain.ActionAlertManager}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			d := Decide("agent-1", scoring.Assessment{Score: tt.score, Level: tt.level}, nil, nil)
			assert.Equal(t, tt.want, kinds(d.Actions))
			for _, a := range d.Actions {
				assert.Empty(t, a.ID)
				assert.Equal(t, "agent-1", a.Data["agent_id"])
			}
		})
	}
}

func TestDecide_ZeroFlags(t *testing.T) {
	d := Decide("agent-1", scoring.Score(nil), nil, nil)
	require.Len(t, d.Actions, 1)
	assert.Equal(t, domain.ActionLogIncident, d.Actions[0].Kind)
	assert.NotNil(t, d.Recommendations)
	assert.Empty(t, d.Recommendations)
}

func TestDecide_NotesAddIncidents(t *testing.T) {
	notes := []Note{
		{Kind: NoteDegraded, Detail: "degraded scoring: profile store unavailable"},
		{Kind: NoteDetectorFailed, Detail: "detector photo failed"},
	}
	d := Decide("agent-1", scoring.Score(nil), nil, notes)

	require.Len(t, d.Actions, 3)
	for _, a := range d.Actions {
		assert.Equal(t, domain.ActionLogIncident, a.Kind)
	}
	assert.Equal(t, NoteDegraded, d.Actions[1].Data["incident"])
	assert.Equal(t, "detector photo failed", d.Actions[2].Reason)
}

func TestRecommendations_DistinctFirstSeen(t *testing.T) {
	flags := []domain.Flag{
		{Category: domain.CategorySales},
		{Category: domain.CategoryLocation},
		{Category: domain.CategorySales},
		{Category: domain.CategoryTime},
		{Category: domain.CategoryLocation},
	}
	recs := Recommendations(flags)
	assert.Equal(t, []string{
		recommendations[domain.CategorySales],
		recommendations[domain.CategoryLocation],
		recommendations[domain.CategoryTime],
	}, recs)
}

func TestRecommendations_IndependentOfScore(t *testing.T) {
	flags := []domain.Flag{{Category: domain.CategoryPhoto, Severity: domain.SeverityLow, Confidence: 0.1}}
	low := Decide("a", scoring.Assessment{Level: domain.RiskLow}, flags, nil)
	crit := Decide("a", scoring.Assessment{Level: domain.RiskCritical, Score: 100}, flags, nil)
	assert.Equal(t, low.Recommendations, crit.Recommendations)
}

func TestFailure(t *testing.T) {
	d := Failure("agent-9", "boom")
	require.Len(t, d.Actions, 1)
	assert.Equal(t, domain.ActionLogIncident, d.Actions[0].Kind)
	assert.Contains(t, d.Actions[0].Reason, "boom")
	assert.Equal(t, NotePipelineFailed, d.Actions[0].Data["incident"])
}
