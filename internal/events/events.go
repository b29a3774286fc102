// Package events defines the observability event stream shared by the
// agent runtimes, the message router, and the orchestrator.
package events

import (
	"time"

	"github.com/orchid-dev/orchid/pkg/models"
)

// Type represents the kind of orchestration event.
type Type string

const (
	// TaskSubmitted indicates a task was accepted into a runtime's queue.
	TaskSubmitted Type = "task_submitted"
	// TaskStarted indicates a task transitioned to in_progress.
	TaskStarted Type = "task_started"
	// TaskCompleted indicates a task completed successfully.
	TaskCompleted Type = "task_completed"
	// TaskFailed indicates a task failed.
	TaskFailed Type = "task_failed"
	// MessageRouted indicates an envelope was delivered to its target.
	MessageRouted Type = "message_routed"
	// MessageDropped indicates an envelope could not be delivered.
	MessageDropped Type = "message_dropped"
	// RequirementProcessed indicates a requirement was decomposed.
	RequirementProcessed Type = "requirement_processed"
	// SprintCreated indicates a sprint was recorded and announced.
	SprintCreated Type = "sprint_created"
)

// Event is one observability record emitted by the orchestration core.
// Fields are populated per event type; unset fields stay zero.
type Event struct {
	// Type is the kind of event.
	Type Type
	// Agent is the name of the agent the event concerns.
	Agent string
	// TaskID is the id of the related task, if applicable.
	TaskID string
	// TaskType is the type tag of the related task, if applicable.
	TaskType string
	// TaskStatus is the task status after the event, if applicable.
	TaskStatus models.TaskStatus
	// Duration is the execution time for completion and failure events.
	Duration time.Duration
	// FromAgent is the envelope sender for message events.
	FromAgent string
	// ToAgent is the envelope target for message events.
	ToAgent string
	// MessageType is the envelope type for message events.
	MessageType models.MessageType
	// RequirementID is the source requirement for decomposition events.
	RequirementID string
	// SprintID is the sprint id for sprint events.
	SprintID string
	// Message provides additional human-readable context.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
