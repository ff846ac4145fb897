package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrPersistence marks failures of the profile/history store.
	ErrPersistence = errors.New("persistence unavailable")

	// ErrDetector marks a failure inside a single signal detector.
	ErrDetector = errors.New("detector failed")
)

// ValidationError is returned for a malformed ActivityEvent. It is raised
// before any detector runs.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid activity event: " + strings.Join(e.Fields, "; ")
}

// DetectorError wraps a failure of one named detector.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error { return ErrDetector }

// PersistenceError wraps a store failure during one orchestrator stage.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Validate checks the structural invariants of an event.
func (e *ActivityEvent) Validate() error {
	var fields []string

	if strings.TrimSpace(e.AgentID) == "" {
		fields = append(fields, "agentId is required")
	}
	if !e.Kind.Valid() {
		fields = append(fields, fmt.Sprintf("kind %q is not supported", e.Kind))
	}
	if e.Timestamp.IsZero() {
		fields = append(fields, "timestamp is required")
	}
	if e.Location != nil {
		if !finite(e.Location.Latitude) || !finite(e.Location.Longitude) {
			fields = append(fields, "location coordinates must be finite")
		} else if math.Abs(e.Location.Latitude) > 90 || math.Abs(e.Location.Longitude) > 180 {
			fields = append(fields, "location coordinates out of range")
		}
		if !finite(e.Location.Accuracy) || e.Location.Accuracy < 0 {
			fields = append(fields, "location accuracy must be a non-negative number")
		}
	}
	if e.Photo != nil && e.Photo.GPS != nil {
		if !finite(e.Photo.GPS.Latitude) || !finite(e.Photo.GPS.Longitude) {
			fields = append(fields, "photo gps coordinates must be finite")
		}
	}
	if e.DurationSeconds != nil && (!finite(*e.DurationSeconds) || *e.DurationSeconds < 0) {
		fields = append(fields, "durationSeconds must be a non-negative number")
	}
	if e.Amount != nil && e.Amount.IsNegative() {
		fields = append(fields, "amount must not be negative")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
