package agent

import "fmt"

// RejectedTaskError is returned by Submit when a task's type is not one
// the runtime's executor knows how to execute. The task never enters
// the pending queue.
type RejectedTaskError struct {
	// Agent is the name of the rejecting runtime.
	Agent string
	// TaskID is the id of the rejected task.
	TaskID string
	// TaskType is the unknown type tag.
	TaskType string
}

// Error implements the error interface.
func (e *RejectedTaskError) Error() string {
	return fmt.Sprintf("agent %q cannot execute task %q: unknown task type %q", e.Agent, e.TaskID, e.TaskType)
}
