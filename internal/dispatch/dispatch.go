// Package dispatch hands automatic actions and fraud results to the event
// bus. Delivery to people and channels happens downstream.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ActionMessage is the payload published on an action topic.
type ActionMessage struct {
	ActionID   string            `json:"actionId"`
	Kind       domain.ActionKind `json:"kind"`
	Reason     string            `json:"reason"`
	Data       map[string]any    `json:"data,omitempty"`
	ResultID   string            `json:"resultId"`
	AgentID    string            `json:"agentId"`
	EventID    string            `json:"eventId,omitempty"`
	RiskLevel  domain.RiskLevel  `json:"riskLevel"`
	RiskScore  float64           `json:"riskScore"`
	Dispatched time.Time         `json:"dispatchedAt"`
}

// Dispatcher publishes each AutoAction of a result on its action topic and
// the full result on fraud.result.
type Dispatcher struct {
	bus domain.EventBus
	now func() time.Time
}

// New creates a dispatcher on top of bus.
func New(bus domain.EventBus) *Dispatcher {
	return &Dispatcher{bus: bus, now: time.Now}
}

// Dispatch publishes every action in order, then the result. A failed
// publish does not stop the remaining ones; all failures are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, result *domain.FraudResult) error {
	var errs []error
	now := d.now().UTC()

	for _, action := range result.Actions {
		msg := ActionMessage{
			ActionID:   action.ID,
			Kind:       action.Kind,
			Reason:     action.Reason,
			Data:       action.Data,
			ResultID:   result.ID,
			AgentID:    result.AgentID,
			EventID:    result.EventID,
			RiskLevel:  result.RiskLevel,
			RiskScore:  result.RiskScore,
			Dispatched: now,
		}
		if err := d.publish(ctx, domain.ActionTopic(action.Kind), msg); err != nil {
			errs = append(errs, fmt.Errorf("dispatch %s %s: %w", action.Kind, action.ID, err))
		}
	}

	if err := d.publish(ctx, domain.TopicFraudResult, result); err != nil {
		errs = append(errs, fmt.Errorf("publish result %s: %w", result.ID, err))
	}

	if len(errs) > 0 {
		slog.Error("dispatch incomplete",
			"result_id", result.ID,
			"agent_id", result.AgentID,
			"failures", len(errs),
		)
		return errors.Join(errs...)
	}

	slog.Debug("actions dispatched",
		"result_id", result.ID,
		"agent_id", result.AgentID,
		"action_count", len(result.Actions),
	)
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.bus.Publish(ctx, topic, payload)
}
