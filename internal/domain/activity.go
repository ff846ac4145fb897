package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityKind is the type of a tracked field-agent activity.
type ActivityKind string

const (
	KindVisitStart     ActivityKind = "visit_start"
	KindVisitEnd       ActivityKind = "visit_end"
	KindSale           ActivityKind = "sale"
	KindPhotoUpload    ActivityKind = "photo_upload"
	KindSurveyComplete ActivityKind = "survey_complete"
	KindStockDraw      ActivityKind = "stock_draw"
)

// Valid reports whether k is one of the known activity kinds.
func (k ActivityKind) Valid() bool {
	switch k {
	case KindVisitStart, KindVisitEnd, KindSale, KindPhotoUpload, KindSurveyComplete, KindStockDraw:
		return true
	}
	return false
}

// LocationSource tags how a device obtained a fix.
type LocationSource string

const (
	SourceGPS     LocationSource = "gps"
	SourceNetwork LocationSource = "network"
	SourcePassive LocationSource = "passive"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSample is a single reported position of an agent.
type LocationSample struct {
	Coordinate
	Accuracy  float64        `json:"accuracy"` // meters
	Timestamp time.Time      `json:"timestamp"`
	Source    LocationSource `json:"source,omitempty"`
}

// PhotoPayload describes a photo attached to an activity.
// EXIF, GPS and TakenAt may be filled in from the media store when the
// caller only supplies a MediaID.
type PhotoPayload struct {
	MediaID     string            `json:"mediaId"`
	TakenAt     *time.Time        `json:"takenAt,omitempty"`
	EXIF        map[string]string `json:"exif,omitempty"`
	GPS         *Coordinate       `json:"gps,omitempty"`
	ContentHash string            `json:"contentHash,omitempty"`
	Quality     *float64          `json:"quality,omitempty"`
}

// ActivityEvent is the unit of analysis. It is created per request and
// never mutated after it enters the engine.
type ActivityEvent struct {
	ID              string           `json:"id"`
	AgentID         string           `json:"agentId"`
	Kind            ActivityKind     `json:"kind"`
	Timestamp       time.Time        `json:"timestamp"`
	Location        *LocationSample  `json:"location,omitempty"`
	CustomerID      string           `json:"customerId,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	DurationSeconds *float64         `json:"durationSeconds,omitempty"`
	Photo           *PhotoPayload    `json:"photo,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// ActivityRecord is the persisted trace of a scored activity, as read back
// from the fraud-event log.
type ActivityRecord struct {
	EventID    string          `json:"eventId"`
	AgentID    string          `json:"agentId"`
	Kind       ActivityKind    `json:"kind"`
	Timestamp  time.Time       `json:"timestamp"`
	Location   *LocationSample `json:"location,omitempty"`
	CustomerID string          `json:"customerId,omitempty"`
	RiskLevel  RiskLevel       `json:"riskLevel"`
}

// History is the read-only evidence window gathered for one event.
type History struct {
	// Locations is the agent's chronological location history (24h).
	Locations []LocationSample
	// Activities is the agent's chronological activity log (24h).
	Activities []ActivityRecord
	// Nearby holds other agents' activities close in space and time.
	Nearby []ActivityRecord
	// CustomerKnown is nil when no lookup was made or the lookup failed.
	CustomerKnown *bool
	// DuplicatePhoto is set by the external de-duplication service.
	DuplicatePhoto bool
	// Territory is the agent's assigned polygon, empty when unassigned.
	Territory []Coordinate
}
