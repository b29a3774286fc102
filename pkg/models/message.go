package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType represents the kind of agent-to-agent message.
type MessageType string

const (
	// MessageTypeTaskAssignment carries a Task to a downstream agent.
	MessageTypeTaskAssignment MessageType = "task_assignment"
	// MessageTypeStatusUpdate reports task progress back to the sender.
	MessageTypeStatusUpdate MessageType = "status_update"
	// MessageTypeRequest asks another agent for clarification or resources.
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse answers a prior request.
	MessageTypeResponse MessageType = "response"
)

// Valid returns true if the message type is a known value.
func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeTaskAssignment, MessageTypeStatusUpdate, MessageTypeRequest, MessageTypeResponse:
		return true
	default:
		return false
	}
}

// BroadcastAgent is the pseudo-address used to reach every registered
// agent, e.g. for sprint start notifications.
const BroadcastAgent = "all_agents"

// Message is a typed, directed envelope between two named agents.
// Agent names are logical addresses, not network addresses. A message
// whose target cannot be resolved is logged and dropped, never an error.
type Message struct {
	// MessageID uniquely identifies this envelope.
	MessageID string `json:"message_id"`
	// FromAgent is the logical name of the sending agent.
	FromAgent string `json:"from_agent"`
	// ToAgent is the logical name of the receiving agent.
	ToAgent string `json:"to_agent"`
	// Type determines how the payload is interpreted.
	Type MessageType `json:"message_type"`
	// Payload is opaque structured data whose shape depends on Type.
	Payload any `json:"payload,omitempty"`
	// Timestamp is when the envelope was constructed.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage constructs an envelope with a fresh message id and timestamp.
func NewMessage(from, to string, mt MessageType, payload any) *Message {
	return &Message{
		MessageID: uuid.New().String(),
		FromAgent: from,
		ToAgent:   to,
		Type:      mt,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Task returns the payload as a *Task for task_assignment envelopes.
// Returns nil if the payload is not a task.
func (m *Message) Task() *Task {
	t, _ := m.Payload.(*Task)
	return t
}

// PayloadMap returns the payload as a key/value map, or nil if the
// payload has a different shape.
func (m *Message) PayloadMap() map[string]any {
	p, _ := m.Payload.(map[string]any)
	return p
}
