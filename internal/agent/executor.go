// Package agent provides the runtime shared by all named agents: task
// lifecycle tracking, a per-agent concurrency ceiling, and the message
// inbox/outbox. Agent-specific behavior is supplied by an Executor.
package agent

import (
	"context"

	"github.com/orchid-dev/orchid/pkg/models"
)

// Outbox lets an executor send fire-and-forget messages while handling
// a task or an inbound envelope. Implemented by *Runtime.
type Outbox interface {
	// AgentName returns the logical name of the owning agent.
	AgentName() string
	// Send constructs an envelope from this agent and hands it to the
	// router. It does not block on delivery confirmation.
	Send(toAgent string, mt models.MessageType, payload any)
}

// Executor implements the agent-specific half of a runtime: which task
// types it accepts, how it executes them, and how it reacts to inbound
// status updates and requests.
type Executor interface {
	// TaskTypes returns the task type tags this executor can run.
	// A submission with any other type is rejected.
	TaskTypes() []string
	// MaxConcurrency returns the ceiling on tasks in_progress at once.
	MaxConcurrency() int
	// ExecuteTask runs one task and returns its result payload.
	// Errors are recorded on the task, never propagated to the caller
	// of Submit.
	ExecuteTask(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error)
	// HandleMessage reacts to status_update and request envelopes.
	// Failures are its own to contain.
	HandleMessage(ctx context.Context, msg *models.Message, out Outbox)
}

// Sender routes outbound envelopes. Implemented by *bus.Router.
type Sender interface {
	Route(msg *models.Message)
}
