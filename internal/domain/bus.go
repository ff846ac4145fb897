package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances subscribers of one topic across
	// instances. Empty means every instance receives every message.
	NATSQueueGroup string `yaml:"natsQueueGroup"`
}

// Standard topic names.
const (
	TopicActivityReceived = "activity.received"
	TopicFraudResult      = "fraud.result"

	TopicActionAlertManager        = "action.alert_manager"
	TopicActionSuspendAgent        = "action.suspend_agent"
	TopicActionRequireVerification = "action.require_verification"
	TopicActionLogIncident         = "action.log_incident"
)

// ActionTopic maps an action kind to its dispatch topic.
func ActionTopic(kind ActionKind) string {
	switch kind {
	case ActionAlertManager:
		return TopicActionAlertManager
	case ActionSuspendAgent:
		return TopicActionSuspendAgent
	case ActionRequireVerification:
		return TopicActionRequireVerification
	default:
		return TopicActionLogIncident
	}
}
