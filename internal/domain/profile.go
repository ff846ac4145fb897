package domain

import "time"

// Baseline defaults for a newly seen agent.
const (
	DefaultAverageVisitDuration = 1800.0 // seconds
	DefaultWorkStartHour        = 8
	DefaultWorkEndHour          = 17
	DefaultAverageVisitsPerDay  = 8.0
	DefaultAverageSaleAmount    = 150.0
	DefaultAveragePhotoQuality  = 75.0
	DefaultTimezone             = "UTC"
)

// BehaviorProfile is the rolling per-agent baseline used as the "normal"
// reference for anomaly comparisons.
type BehaviorProfile struct {
	AgentID              string           `json:"agentId"`
	AverageVisitDuration float64          `json:"averageVisitDuration"` // seconds
	WorkStartHour        int              `json:"workStartHour"`        // inclusive
	WorkEndHour          int              `json:"workEndHour"`          // exclusive
	AverageVisitsPerDay  float64          `json:"averageVisitsPerDay"`
	AverageSaleAmount    float64          `json:"averageSaleAmount"`
	CommonLocations      []CommonLocation `json:"commonLocations"`
	AveragePhotoQuality  float64          `json:"averagePhotoQuality"`
	SuspiciousCount      int              `json:"suspiciousCount"`
	Timezone             string           `json:"timezone"`

	// Day-bucket counter feeding AverageVisitsPerDay.
	VisitsToday int    `json:"visitsToday"`
	VisitsDay   string `json:"visitsDay"` // YYYY-MM-DD in the agent's timezone

	LastUpdated time.Time `json:"lastUpdated"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CommonLocation is a place the agent visits regularly.
type CommonLocation struct {
	Coordinate
	Frequency int       `json:"frequency"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NewDefaultProfile returns the conservative baseline for a new agent.
func NewDefaultProfile(agentID string, now time.Time) *BehaviorProfile {
	return &BehaviorProfile{
		AgentID:              agentID,
		AverageVisitDuration: DefaultAverageVisitDuration,
		WorkStartHour:        DefaultWorkStartHour,
		WorkEndHour:          DefaultWorkEndHour,
		AverageVisitsPerDay:  DefaultAverageVisitsPerDay,
		AverageSaleAmount:    DefaultAverageSaleAmount,
		CommonLocations:      []CommonLocation{},
		AveragePhotoQuality:  DefaultAveragePhotoQuality,
		Timezone:             DefaultTimezone,
		LastUpdated:          now,
		CreatedAt:            now,
	}
}

// Location resolves the profile's timezone, falling back to UTC.
func (p *BehaviorProfile) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (p *BehaviorProfile) Clone() *BehaviorProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.CommonLocations = make([]CommonLocation, len(p.CommonLocations))
	copy(c.CommonLocations, p.CommonLocations)
	return &c
}
