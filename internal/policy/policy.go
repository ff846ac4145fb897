// Package policy maps a scored flag set to recommendations and automatic
// actions.
package policy

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Recommendation texts per flag category.
var recommendations = map[domain.Category]string{
	domain.CategoryLocation: "Verify the reported location against an independent source",
	domain.CategoryTime:     "Review the agent's schedule for the flagged period",
	domain.CategoryPhoto:    "Request a fresh on-site photo with camera metadata",
	domain.CategoryBehavior: "Review visit durations and daily volume with the supervisor",
	domain.CategorySales:    "Confirm the sale with the customer before settlement",
	domain.CategoryPattern:  "Audit recent customer interactions for repetition or collusion",
}

// Note is an operational incident raised while scoring, such as a failed
// detector or degraded evidence gathering.
type Note struct {
	Kind   string
	Detail string
}

// Incident kinds.
const (
	NoteDegraded       = "degraded_scoring"
	NoteDetectorFailed = "detector_failed"
	NotePipelineFailed = "pipeline_failed"
)

// Decision is the policy outcome for one event.
type Decision struct {
	Recommendations []string
	Actions         []domain.AutoAction
}

// Decide selects recommendations and actions. Action IDs are left empty;
// the caller assigns them when the result is issued.
func Decide(agentID string, a scoring.Assessment, flags []domain.Flag, notes []Note) Decision {
	d := Decision{
		Recommendations: Recommendations(flags),
		Actions:         make([]domain.AutoAction, 0, 4+len(notes)),
	}

	base := map[string]any{
		"agent_id":   agentID,
		"risk_level": string(a.Level),
		"risk_score": a.Score,
		"flag_count": len(flags),
	}

	d.Actions = append(d.Actions, domain.AutoAction{
		Kind:   domain.ActionLogIncident,
		Reason: fmt.Sprintf("%s risk activity scored %.1f", a.Level, a.Score),
		Data:   withCategories(base, flags),
	})

	switch a.Level {
	case domain.RiskCritical:
		d.Actions = append(d.Actions,
			domain.AutoAction{Kind: domain.ActionSuspendAgent, Reason: "critical fraud risk", Data: copyData(base)},
			domain.AutoAction{Kind: domain.ActionAlertManager, Reason: "critical fraud risk requires immediate review", Data: copyData(base)},
		)
	case domain.RiskHigh:
		d.Actions = append(d.Actions,
			domain.AutoAction{Kind: domain.ActionAlertManager, Reason: "high fraud risk", Data: copyData(base)},
			domain.AutoAction{Kind: domain.ActionRequireVerification, Reason: "activity must be verified before acceptance", Data: copyData(base)},
		)
	case domain.RiskMedium:
		d.Actions = append(d.Actions,
			domain.AutoAction{Kind: domain.ActionAlertManager, Reason: "medium fraud risk", Data: copyData(base)},
		)
	}

	for _, n := range notes {
		data := copyData(base)
		data["incident"] = n.Kind
		d.Actions = append(d.Actions, domain.AutoAction{
			Kind:   domain.ActionLogIncident,
			Reason: n.Detail,
			Data:   data,
		})
	}

	return d
}

// Recommendations returns one recommendation per distinct flag category, in
// first-seen order.
func Recommendations(flags []domain.Flag) []string {
	seen := make(map[domain.Category]bool)
	recs := make([]string, 0)
	for _, f := range flags {
		if seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		if r, ok := recommendations[f.Category]; ok {
			recs = append(recs, r)
		}
	}
	return recs
}

// Failure builds the single-action decision used when the pipeline itself
// fails.
func Failure(agentID string, cause string) Decision {
	return Decision{
		Recommendations: []string{},
		Actions: []domain.AutoAction{{
			Kind:   domain.ActionLogIncident,
			Reason: "fraud scoring failed: " + cause,
			Data: map[string]any{
				"agent_id": agentID,
				"incident": NotePipelineFailed,
			},
		}},
	}
}

func withCategories(base map[string]any, flags []domain.Flag) map[string]any {
	data := copyData(base)
	cats := make([]string, 0, len(flags))
	seen := make(map[domain.Category]bool)
	for _, f := range flags {
		if !seen[f.Category] {
			seen[f.Category] = true
			cats = append(cats, string(f.Category))
		}
	}
	data["categories"] = cats
	return data
}

func copyData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
