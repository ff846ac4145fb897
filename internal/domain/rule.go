package domain

import "time"

// RuleConfig defines an operator-authored detection rule. The CEL
// expression must evaluate to a bool; true raises one flag.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Flag emitted when the expression holds
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
