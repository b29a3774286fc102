package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/orchid-dev/orchid/internal/agent"
	"github.com/orchid-dev/orchid/pkg/models"
)

// claudeSystemPrompt frames the model as a development agent producing
// a concrete deliverable for one task.
const claudeSystemPrompt = `You are a software development agent on a multi-agent team.
You receive one task at a time. Produce a concise, concrete deliverable
for the task: a design outline, an implementation plan, or test cases,
depending on the task type. Keep the answer under 300 words.`

// Claude executes development tasks by asking the Anthropic API for a
// deliverable. It is enabled via configuration; the simulated executor
// is the default.
type Claude struct {
	cfg    Config
	client *Client
}

// NewClaude creates a Claude-backed development executor.
func NewClaude(cfg Config, client *Client) *Claude {
	return &Claude{cfg: cfg.withDefaults(), client: client}
}

// TaskTypes implements agent.Executor.
func (c *Claude) TaskTypes() []string {
	return DevTaskTypes
}

// MaxConcurrency implements agent.Executor.
func (c *Claude) MaxConcurrency() int {
	return c.cfg.MaxConcurrent
}

// ExecuteTask implements agent.Executor. The task becomes a single
// completion request; the model's text output is the task result.
func (c *Claude) ExecuteTask(ctx context.Context, task *models.Task, out agent.Outbox) (map[string]any, error) {
	output, err := c.client.Complete(ctx, claudeSystemPrompt, taskPrompt(task))
	if err != nil {
		return nil, err
	}

	out.Send(c.cfg.ReportTo, models.MessageTypeStatusUpdate, map[string]any{
		"task_id": task.ID,
		"status":  string(models.TaskStatusCompleted),
	})

	return map[string]any{
		"task_id":      task.ID,
		"completed_by": out.AgentName(),
		"output":       output,
		"model":        string(c.client.Model()),
	}, nil
}

// HandleMessage implements agent.Executor.
func (c *Claude) HandleMessage(ctx context.Context, msg *models.Message, out agent.Outbox) {
	handleWorkerMessage(msg, out.AgentName())
}

// taskPrompt renders a task as a completion prompt.
func taskPrompt(task *models.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task type: %s\n", task.Type)
	if task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", task.Description)
	}
	if parent := task.ParentRequirement(); parent != "" {
		fmt.Fprintf(&b, "Parent requirement: %s\n", parent)
	}
	if component := task.MetaString("component"); component != "" {
		fmt.Fprintf(&b, "Component: %s\n", component)
	}
	if skill := task.MetaString("skill"); skill != "" {
		fmt.Fprintf(&b, "Required skill: %s\n", skill)
	}
	if task.Deadline != nil {
		fmt.Fprintf(&b, "Deadline: %s\n", task.Deadline.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Priority: %s\n", task.Priority)

	return b.String()
}
