package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

type published struct {
	topic   string
	payload []byte
}

type recordingBus struct {
	mu      sync.Mutex
	msgs    []published
	failFor string
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	if topic == b.failFor {
		return errors.New("broker unavailable")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{topic, payload})
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not supported")
}
func (b *recordingBus) Ping(context.Context) error { return nil }
func (b *recordingBus) Close() error               { return nil }

func criticalResult() *domain.FraudResult {
	return &domain.FraudResult{
		ID:        "res-1",
		AgentID:   "agent-1",
		EventID:   "evt-1",
		RiskLevel: domain.RiskCritical,
		RiskScore: 95,
		Actions: []domain.AutoAction{
			{ID: "a1", Kind: domain.ActionLogIncident, Reason: "audit"},
			{ID: "a2", Kind: domain.ActionSuspendAgent, Reason: "critical risk"},
			{ID: "a3", Kind: domain.ActionAlertManager, Reason: "critical risk"},
		},
	}
}

func TestDispatch(t *testing.T) {
	bus := &recordingBus{}
	d := New(bus)
	d.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, d.Dispatch(context.Background(), criticalResult()))
	require.Len(t, bus.msgs, 4)

	assert.Equal(t, domain.TopicActionLogIncident, bus.msgs[0].topic)
	assert.Equal(t, domain.TopicActionSuspendAgent, bus.msgs[1].topic)
	assert.Equal(t, domain.TopicActionAlertManager, bus.msgs[2].topic)
	assert.Equal(t, domain.TopicFraudResult, bus.msgs[3].topic)

	var msg ActionMessage
	require.NoError(t, json.Unmarshal(bus.msgs[1].payload, &msg))
	assert.Equal(t, "a2", msg.ActionID)
	assert.Equal(t, "res-1", msg.ResultID)
	assert.Equal(t, "agent-1", msg.AgentID)
	assert.Equal(t, domain.RiskCritical, msg.RiskLevel)

	var result domain.FraudResult
	require.NoError(t, json.Unmarshal(bus.msgs[3].payload, &result))
	assert.Len(t, result.Actions, 3)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bus := &recordingBus{failFor: domain.TopicActionSuspendAgent}
	d := New(bus)

	err := d.Dispatch(context.Background(), criticalResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUSPEND_AGENT")
	assert.Len(t, bus.msgs, 3, "remaining actions and the result are still published")
}
