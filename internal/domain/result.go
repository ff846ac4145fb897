package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups flags by the signal family that produced them.
type Category string

const (
	CategoryLocation Category = "LOCATION"
	CategoryTime     Category = "TIME"
	CategoryPhoto    Category = "PHOTO"
	CategoryBehavior Category = "BEHAVIOR"
	CategorySales    Category = "SALES"
	CategoryPattern  Category = "PATTERN"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLocation, CategoryTime, CategoryPhoto, CategoryBehavior, CategorySales, CategoryPattern:
		return true
	}
	return false
}

// Severity of a single flag.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RiskLevel is the coarse classification of a scored event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Flag is one typed, scored piece of evidence that an activity may be
// fraudulent. Flags are immutable once produced.
type Flag struct {
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Confidence  float64        `json:"confidence"`
	Detector    string         `json:"detector,omitempty"`
}

// ActionKind is an automatic response selected by policy.
type ActionKind string

const (
	ActionAlertManager        ActionKind = "ALERT_MANAGER"
	ActionSuspendAgent        ActionKind = "SUSPEND_AGENT"
	ActionRequireVerification ActionKind = "REQUIRE_VERIFICATION"
	ActionLogIncident         ActionKind = "LOG_INCIDENT"
)

// AutoAction is handed to the notification dispatcher. The engine never
// performs the action itself.
type AutoAction struct {
	ID     string         `json:"id"`
	Kind   ActionKind     `json:"kind"`
	Reason string         `json:"reason"`
	Data   map[string]any `json:"data,omitempty"`
}

// FraudResult is produced once per ActivityEvent.
type FraudResult struct {
	ID              string       `json:"id"`
	AgentID         string       `json:"agentId"`
	EventID         string       `json:"eventId,omitempty"`
	EventTimestamp  time.Time    `json:"eventTimestamp"`
	RiskLevel       RiskLevel    `json:"riskLevel"`
	RiskScore       float64      `json:"riskScore"`
	Flags           []Flag       `json:"flags"`
	Recommendations []string     `json:"recommendations"`
	Actions         []AutoAction `json:"actions"`
	Degraded        bool         `json:"degraded,omitempty"`
}

// HasAction reports whether the result carries an action of the given kind.
func (r *FraudResult) HasAction(kind ActionKind) bool {
	for _, a := range r.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// FraudEventRecord is the append-only audit record for one scored event.
// It doubles as the agent's activity and location history.
type FraudEventRecord struct {
	ID              string           `json:"id"`
	EventID         string           `json:"eventId"`
	AgentID         string           `json:"agentId"`
	Kind            ActivityKind     `json:"kind"`
	Timestamp       time.Time        `json:"timestamp"`
	Location        *LocationSample  `json:"location,omitempty"`
	CustomerID      string           `json:"customerId,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	RiskLevel       RiskLevel        `json:"riskLevel"`
	RiskScore       float64          `json:"riskScore"`
	Flags           []Flag           `json:"flags"`
	Recommendations []string         `json:"recommendations"`
	Actions         []AutoAction     `json:"actions"`
	Degraded        bool             `json:"degraded"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// NewFraudEventRecord builds the audit record for a scored event.
func NewFraudEventRecord(event *ActivityEvent, result *FraudResult, now time.Time) *FraudEventRecord {
	return &FraudEventRecord{
		ID:              result.ID,
		EventID:         event.ID,
		AgentID:         event.AgentID,
		Kind:            event.Kind,
		Timestamp:       event.Timestamp.UTC(),
		Location:        event.Location,
		CustomerID:      event.CustomerID,
		Amount:          event.Amount,
		RiskLevel:       result.RiskLevel,
		RiskScore:       result.RiskScore,
		Flags:           result.Flags,
		Recommendations: result.Recommendations,
		Actions:         result.Actions,
		Degraded:        result.Degraded,
		Metadata:        event.Metadata,
		CreatedAt:       now.UTC(),
	}
}

// Customer is an entry of the customer directory used to resolve sales.
type Customer struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Location  *Coordinate `json:"location,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Territory is the geofence assigned to an agent.
type Territory struct {
	AgentID   string       `json:"agentId"`
	Polygon   []Coordinate `json:"polygon"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
