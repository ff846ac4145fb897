// Package detectors holds the independent signal detectors and the registry
// that runs them. Every detector is a pure function of its Input.
package detectors

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector inspects one event and returns zero or more flags.
type Detector interface {
	Name() string
	Detect(in *Input) ([]domain.Flag, error)
}

// Func adapts a plain function to the Detector interface.
type Func struct {
	ID string
	Fn func(in *Input) ([]domain.Flag, error)
}

// Name returns the detector name.
func (f Func) Name() string { return f.ID }

// Detect calls the wrapped function.
func (f Func) Detect(in *Input) ([]domain.Flag, error) { return f.Fn(in) }

// Input is the read-only evidence a detector works from.
type Input struct {
	Event   *domain.ActivityEvent
	History *domain.History
	Profile *domain.BehaviorProfile
}

// NewInput fills in empty history and a default profile where missing.
func NewInput(event *domain.ActivityEvent, history *domain.History, profile *domain.BehaviorProfile) *Input {
	if history == nil {
		history = &domain.History{}
	}
	if profile == nil {
		profile = domain.NewDefaultProfile(event.AgentID, event.Timestamp)
	}
	return &Input{Event: event, History: history, Profile: profile}
}

// LocalTime is the event timestamp in the agent's timezone.
func (in *Input) LocalTime() time.Time {
	return in.Event.Timestamp.In(in.Profile.Location())
}

// priorActivities returns the agent's history entries other than the
// current event itself.
func (in *Input) priorActivities() []domain.ActivityRecord {
	out := make([]domain.ActivityRecord, 0, len(in.History.Activities))
	for _, a := range in.History.Activities {
		if in.Event.ID != "" && a.EventID == in.Event.ID {
			continue
		}
		if a.AgentID != "" && a.AgentID != in.Event.AgentID {
			continue
		}
		out = append(out, a)
	}
	return out
}

// CountSince counts the agent's activities in (from, event], the current
// event included.
func (in *Input) CountSince(from time.Time) int {
	n := 1
	for _, a := range in.priorActivities() {
		if a.Timestamp.After(from) && !a.Timestamp.After(in.Event.Timestamp) {
			n++
		}
	}
	return n
}

// TrailingHourCount counts activities in the 60 minutes up to the event.
func (in *Input) TrailingHourCount() int {
	return in.CountSince(in.Event.Timestamp.Add(-time.Hour))
}

// SameDayCount counts activities on the event's local calendar day up to
// and including the event.
func (in *Input) SameDayCount() int {
	local := in.LocalTime()
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return in.CountSince(midnight.Add(-time.Nanosecond))
}

// PriorLocations returns the location samples strictly before the event and
// within window, in chronological order.
func (in *Input) PriorLocations(window time.Duration) []domain.LocationSample {
	from := in.Event.Timestamp.Add(-window)
	out := make([]domain.LocationSample, 0, len(in.History.Locations))
	for _, l := range in.History.Locations {
		if l.Timestamp.Before(in.Event.Timestamp) && !l.Timestamp.Before(from) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
