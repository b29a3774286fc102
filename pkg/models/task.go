// Package models defines the shared data types for Orchid: tasks,
// agent-to-agent messages, requirements, objectives, and sprints.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been accepted but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being executed.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
// Tasks in a terminal state accept no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Priority represents the urgency of a task or requirement.
type Priority string

const (
	// PriorityHigh is the most urgent priority.
	PriorityHigh Priority = "high"
	// PriorityMedium is the default priority.
	PriorityMedium Priority = "medium"
	// PriorityLow is the least urgent priority.
	PriorityLow Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Weight returns the base scoring weight for backlog prioritization.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityMedium:
		return 5
	default:
		return 1
	}
}

// Task represents one unit of assignable work.
// Tasks are created by the requirement decomposer or submitted directly,
// mutated only by the runtime that owns them, and never deleted: they
// terminate into completed or failed.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type tags the kind of work, e.g. "process_requirement" or
	// "frontend_implementation". A runtime rejects types its executor
	// does not know.
	Type string `json:"type"`
	// Description provides free-text detail about the work.
	Description string `json:"description,omitempty"`
	// Metadata carries contextual fields such as the parent requirement
	// id, component, or required skill.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Priority is the urgency of this task.
	Priority Priority `json:"priority"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is refreshed on every status transition.
	UpdatedAt time.Time `json:"updated_at"`
	// Deadline is descriptive metadata only; it triggers no cancellation.
	Deadline *time.Time `json:"deadline,omitempty"`
	// AssignedTo is the name of the agent the task was dispatched to.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Result holds the payload produced on successful completion.
	Result map[string]any `json:"result,omitempty"`
	// Error contains the captured error message if the task failed.
	Error string `json:"error,omitempty"`
}

// NewTask creates a pending task with creation timestamps set.
func NewTask(id, taskType, description string, priority Priority) *Task {
	now := time.Now()
	return &Task{
		ID:          id,
		Type:        taskType,
		Description: description,
		Metadata:    make(map[string]any),
		Priority:    priority,
		Status:      TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MetaString returns the string value stored under key, or "" if absent
// or not a string.
func (t *Task) MetaString(key string) string {
	if t.Metadata == nil {
		return ""
	}
	if v, ok := t.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// ParentRequirement returns the id of the requirement this task was
// decomposed from, or "" for directly submitted tasks.
func (t *Task) ParentRequirement() string {
	return t.MetaString("parentRequirement")
}
