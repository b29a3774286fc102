// Package worker provides executors for downstream development agents:
// a simulated executor used by default and an optional Claude-backed
// executor for real task output.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/orchid-dev/orchid/internal/agent"
	"github.com/orchid-dev/orchid/pkg/models"
)

// DevTaskTypes are the task types a development agent accepts: the
// tag-driven decomposition outputs plus the generic fallback steps.
var DevTaskTypes = []string{
	"ui_design",
	"frontend_implementation",
	"api_design",
	"backend_implementation",
	"database_design",
	"test_implementation",
	"analysis",
	"implementation",
	"testing",
	"review",
}

// DefaultMaxConcurrent is the default concurrency ceiling for a
// development agent.
const DefaultMaxConcurrent = 3

// Config contains configuration options shared by worker executors.
type Config struct {
	// ReportTo is the agent name status updates are sent to.
	ReportTo string
	// MaxConcurrent is the ceiling on tasks in_progress at once.
	MaxConcurrent int
	// WorkDelay simulates execution time per task (simulated executor
	// only). Zero means no delay.
	WorkDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReportTo == "" {
		c.ReportTo = "pm"
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	return c
}

// Simulated executes development tasks without doing real work. It
// stands in for the downstream implementation agents whose business
// logic lives outside the orchestration core.
type Simulated struct {
	cfg Config
}

// NewSimulated creates a simulated development executor.
func NewSimulated(cfg Config) *Simulated {
	return &Simulated{cfg: cfg.withDefaults()}
}

// TaskTypes implements agent.Executor.
func (s *Simulated) TaskTypes() []string {
	return DevTaskTypes
}

// MaxConcurrency implements agent.Executor.
func (s *Simulated) MaxConcurrency() int {
	return s.cfg.MaxConcurrent
}

// ExecuteTask implements agent.Executor. It waits out the configured
// work delay, reports completion to the coordinating agent, and
// returns a small result payload.
func (s *Simulated) ExecuteTask(ctx context.Context, task *models.Task, out agent.Outbox) (map[string]any, error) {
	if s.cfg.WorkDelay > 0 {
		select {
		case <-time.After(s.cfg.WorkDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out.Send(s.cfg.ReportTo, models.MessageTypeStatusUpdate, map[string]any{
		"task_id": task.ID,
		"status":  string(models.TaskStatusCompleted),
	})

	return map[string]any{
		"task_id":      task.ID,
		"completed_by": out.AgentName(),
		"notes":        fmt.Sprintf("simulated %s for %s", task.Type, task.ParentRequirement()),
	}, nil
}

// HandleMessage implements agent.Executor. Development agents react to
// sprint announcements and log anything else they cannot interpret.
func (s *Simulated) HandleMessage(ctx context.Context, msg *models.Message, out agent.Outbox) {
	handleWorkerMessage(msg, out.AgentName())
}

// handleWorkerMessage is the shared inbound-message behavior for
// development executors.
func handleWorkerMessage(msg *models.Message, agentName string) {
	switch msg.Type {
	case models.MessageTypeRequest:
		payload := msg.PayloadMap()
		if payload != nil && payload["request"] == "sprint_start" {
			log.Printf("[%s] sprint %v started with %v tasks", agentName, payload["sprint_id"], payload["task_count"])
			return
		}
		log.Printf("[%s] WARNING: unsupported request from %s, ignoring", agentName, msg.FromAgent)

	case models.MessageTypeStatusUpdate:
		// Development agents do not track peers' status.
		log.Printf("[%s] status update from %s ignored", agentName, msg.FromAgent)
	}
}
