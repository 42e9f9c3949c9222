package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

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
	TenantID  string            `json:"tenantId"`
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
	Type string `env:"PENSION_BUS_TYPE"`

	// Channel settings (Community tier)
	ChannelBufferSize int `env:"PENSION_BUS_BUFFER_SIZE"`

	// NATS settings (Pro tier)
	NATSUrl           string `env:"PENSION_NATS_URL"`
	NATSToken         string `env:"PENSION_NATS_TOKEN"`
	NATSMaxReconnects int    `env:"PENSION_NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `env:"PENSION_NATS_RECONNECT_WAIT"` // seconds

	// NATSQueueGroup load-balances assessment requests so each is handled by
	// one worker across all nodes. Empty delivers to every subscriber.
	NATSQueueGroup string `env:"PENSION_NATS_QUEUE_GROUP"`
}

// Standard topic names for the assessment pipeline. Transports prefix
// them with the tenant.
const (
	TopicAssessmentRequested = "assessment.requested"
	TopicAssessmentCompleted = "assessment.completed"
	TopicIneligible          = "assessment.ineligible"
	TopicRulesReloaded       = "rules.reloaded"
)

// AssessmentRequest asks a worker to assess a stored member.
// AsOf is a YYYY-MM-DD date.
type AssessmentRequest struct {
	RequestID   string `json:"requestId"`
	MemberID    string `json:"memberId"`
	BenefitType string `json:"benefitType"`
	AsOf        string `json:"asOf"`
	TraceID     string `json:"traceId,omitempty"`
}

// AssessmentEvent announces a stored assessment.
type AssessmentEvent struct {
	RequestID    string      `json:"requestId,omitempty"`
	AssessmentID string      `json:"assessmentId"`
	MemberID     string      `json:"memberId"`
	State        StateCode   `json:"state"`
	BenefitType  BenefitType `json:"benefitType"`
	Status       string      `json:"status"`
	Reasons      []string    `json:"reasons,omitempty"`
	TraceID      string      `json:"traceId"`
}

// RulesReloadedEvent announces a rule table swap.
type RulesReloadedEvent struct {
	Version  string      `json:"version"`
	States   []StateCode `json:"states"`
	Policies int         `json:"policies"`
}
