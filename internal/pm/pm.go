package pm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orchid-dev/orchid/internal/agent"
	"github.com/orchid-dev/orchid/internal/events"
	"github.com/orchid-dev/orchid/pkg/models"
)

// Task types the PM agent executes.
const (
	// TaskTypeProcessRequirement converts a requirement into an
	// objective plus dispatched subtasks.
	TaskTypeProcessRequirement = "process_requirement"
	// TaskTypeCreateSprint records a sprint and announces it.
	TaskTypeCreateSprint = "create_sprint"
	// TaskTypeDecomposeTask applies the generic fallback breakdown.
	TaskTypeDecomposeTask = "decompose_task"
)

// DefaultMaxConcurrent is the reference concurrency ceiling for the
// requirement-decomposition agent.
const DefaultMaxConcurrent = 5

// Config contains configuration options for the PM agent.
type Config struct {
	// DispatchTo is the downstream agent name subtasks are assigned to.
	DispatchTo string
	// MaxConcurrent is the ceiling on tasks in_progress at once.
	MaxConcurrent int
}

// PM is the coordinating agent's executor. It owns the backlog and
// sprint maps exclusively; all access goes through its mutex so
// concurrent task completions cannot corrupt them.
type PM struct {
	cfg     Config
	emitter *events.Emitter

	// mu protects backlog, order, sprints, and dispatched.
	mu sync.Mutex
	// backlog maps requirement id to requirement. Re-processing the
	// same id overwrites the prior entry.
	backlog map[string]*models.Requirement
	// order records first-insertion order for stable tie-breaking.
	order []string
	// sprints maps sprint id to sprint.
	sprints map[string]*models.Sprint
	// dispatched tracks the last reported status of dispatched tasks,
	// updated from inbound status_update messages.
	dispatched map[string]models.TaskStatus
}

// New creates a PM executor. A nil emitter disables observability events.
func New(cfg Config, emitter *events.Emitter) *PM {
	if cfg.DispatchTo == "" {
		cfg.DispatchTo = "dev_team"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	return &PM{
		cfg:        cfg,
		emitter:    emitter,
		backlog:    make(map[string]*models.Requirement),
		sprints:    make(map[string]*models.Sprint),
		dispatched: make(map[string]models.TaskStatus),
	}
}

// TaskTypes implements agent.Executor.
func (p *PM) TaskTypes() []string {
	return []string{TaskTypeProcessRequirement, TaskTypeCreateSprint, TaskTypeDecomposeTask}
}

// MaxConcurrency implements agent.Executor.
func (p *PM) MaxConcurrency() int {
	return p.cfg.MaxConcurrent
}

// ExecuteTask implements agent.Executor.
func (p *PM) ExecuteTask(ctx context.Context, task *models.Task, out agent.Outbox) (map[string]any, error) {
	switch task.Type {
	case TaskTypeProcessRequirement:
		return p.processRequirement(task, out)
	case TaskTypeCreateSprint:
		return p.createSprint(task, out)
	case TaskTypeDecomposeTask:
		return p.decomposeTask(task)
	default:
		return nil, fmt.Errorf("unsupported task type %q", task.Type)
	}
}

// processRequirement computes the SMART objective, decomposes the
// requirement into subtasks, dispatches each subtask to the configured
// downstream agent, and inserts the requirement into the backlog.
func (p *PM) processRequirement(task *models.Task, out agent.Outbox) (map[string]any, error) {
	req, err := requirementFromTask(task)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}

	// The objective's deadline runs from the requirement's creation
	// date; subtask deadlines run from processing time.
	objective := BuildObjective(req, req.CreatedAt)
	subtasks := DecomposeRequirement(req, now)

	for _, st := range subtasks {
		st.AssignedTo = p.cfg.DispatchTo
		out.Send(p.cfg.DispatchTo, models.MessageTypeTaskAssignment, st)
		p.mu.Lock()
		p.dispatched[st.ID] = models.TaskStatusPending
		p.mu.Unlock()
	}

	p.mu.Lock()
	if _, known := p.backlog[req.ID]; !known {
		p.order = append(p.order, req.ID)
	}
	p.backlog[req.ID] = req
	backlogSize := len(p.backlog)
	p.mu.Unlock()

	p.emitter.Emit(events.Event{
		Type:          events.RequirementProcessed,
		Agent:         out.AgentName(),
		RequirementID: req.ID,
		Message:       fmt.Sprintf("decomposed into %d subtasks", len(subtasks)),
	})

	return map[string]any{
		"requirement_id":   req.ID,
		"objective":        objective,
		"subtasks_created": len(subtasks),
		"backlog_size":     backlogSize,
	}, nil
}

// createSprint records the task list under the given sprint id and
// broadcasts a sprint_start request to all agents. Listed tasks are not
// validated for existence or assignment.
func (p *PM) createSprint(task *models.Task, out agent.Outbox) (map[string]any, error) {
	sprintID := task.MetaString("sprintId")
	if sprintID == "" {
		return nil, fmt.Errorf("create_sprint task %q has no sprintId", task.ID)
	}

	tasks := tasksFromMeta(task.Metadata["tasks"])
	sprint := &models.Sprint{
		ID:        sprintID,
		Tasks:     tasks,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	p.sprints[sprintID] = sprint
	p.mu.Unlock()

	out.Send(models.BroadcastAgent, models.MessageTypeRequest, map[string]any{
		"request":    "sprint_start",
		"sprint_id":  sprintID,
		"task_count": len(tasks),
	})

	p.emitter.Emit(events.Event{
		Type:     events.SprintCreated,
		Agent:    out.AgentName(),
		SprintID: sprintID,
		Message:  fmt.Sprintf("sprint with %d tasks", len(tasks)),
	})

	return map[string]any{
		"sprint_id":  sprintID,
		"task_count": len(tasks),
	}, nil
}

// decomposeTask applies the fixed fallback breakdown to the parent task
// described by the submitted task's metadata.
func (p *PM) decomposeTask(task *models.Task) (map[string]any, error) {
	parentID := task.MetaString("parentTask")
	if parentID == "" {
		parentID = task.ID
	}

	parent := models.NewTask(parentID, "parent", task.Description, task.Priority)
	subtasks := DecomposeTask(parent)

	return map[string]any{
		"parent_task":   parentID,
		"subtasks":      subtasks,
		"subtask_count": len(subtasks),
	}, nil
}

// HandleMessage implements agent.Executor. Status updates refresh the
// dispatched-task view; requests are answered with a response envelope.
func (p *PM) HandleMessage(ctx context.Context, msg *models.Message, out agent.Outbox) {
	switch msg.Type {
	case models.MessageTypeStatusUpdate:
		p.applyStatusUpdate(msg)

	case models.MessageTypeRequest:
		p.answerRequest(msg, out)

	default:
		log.Printf("[pm] WARNING: unexpected message type %q from %s", msg.Type, msg.FromAgent)
	}
}

// applyStatusUpdate records the reported status of a dispatched task.
func (p *PM) applyStatusUpdate(msg *models.Message) {
	payload := msg.PayloadMap()
	if payload == nil {
		log.Printf("[pm] WARNING: status_update %s without payload, ignoring", msg.MessageID)
		return
	}

	taskID, _ := payload["task_id"].(string)
	status, _ := payload["status"].(string)
	if taskID == "" || !models.TaskStatus(status).Valid() {
		log.Printf("[pm] WARNING: malformed status_update %s (task_id=%q status=%q), ignoring", msg.MessageID, taskID, status)
		return
	}

	p.mu.Lock()
	p.dispatched[taskID] = models.TaskStatus(status)
	p.mu.Unlock()
}

// answerRequest replies to a clarification request with the backlog
// entry for the referenced requirement, if any.
func (p *PM) answerRequest(msg *models.Message, out agent.Outbox) {
	payload := msg.PayloadMap()
	reqID, _ := payload["requirement_id"].(string)

	p.mu.Lock()
	req := p.backlog[reqID]
	p.mu.Unlock()

	reply := map[string]any{
		"in_reply_to": msg.MessageID,
		"known":       req != nil,
	}
	if req != nil {
		reply["requirement"] = req
	}
	out.Send(msg.FromAgent, models.MessageTypeResponse, reply)
}

// Backlog returns the prioritized backlog projection and its summary.
// The stored order is not mutated.
func (p *PM) Backlog() ([]*models.Requirement, BacklogSummary) {
	p.mu.Lock()
	reqs := make([]*models.Requirement, 0, len(p.order))
	for _, id := range p.order {
		if req, ok := p.backlog[id]; ok {
			reqs = append(reqs, req)
		}
	}
	p.mu.Unlock()

	return PrioritizeRequirements(reqs)
}

// Sprint returns the recorded sprint with the given id, or nil.
func (p *PM) Sprint(id string) *models.Sprint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sprints[id]
}

// DispatchedStatus returns the last reported status for a dispatched
// task id.
func (p *PM) DispatchedStatus(taskID string) (models.TaskStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.dispatched[taskID]
	return status, ok
}

// requirementFromTask extracts the requirement carried in the task's
// metadata. In-process callers pass *models.Requirement directly;
// external submissions arrive as decoded JSON maps.
func requirementFromTask(task *models.Task) (*models.Requirement, error) {
	raw, ok := task.Metadata["requirement"]
	if !ok {
		return nil, fmt.Errorf("process_requirement task %q has no requirement metadata", task.ID)
	}

	switch v := raw.(type) {
	case *models.Requirement:
		return validateRequirement(v)
	case models.Requirement:
		return validateRequirement(&v)
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode requirement metadata: %w", err)
		}
		req := &models.Requirement{}
		if err := json.Unmarshal(data, req); err != nil {
			return nil, fmt.Errorf("decode requirement metadata: %w", err)
		}
		return validateRequirement(req)
	default:
		return nil, fmt.Errorf("requirement metadata has unsupported type %T", raw)
	}
}

func validateRequirement(req *models.Requirement) (*models.Requirement, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("requirement has no id")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	return req, nil
}

// tasksFromMeta normalizes the sprint task list metadata.
func tasksFromMeta(raw any) []*models.Task {
	switch v := raw.(type) {
	case []*models.Task:
		return v
	case []any:
		tasks := make([]*models.Task, 0, len(v))
		for _, item := range v {
			if t, ok := item.(*models.Task); ok {
				tasks = append(tasks, t)
			}
		}
		return tasks
	default:
		return nil
	}
}
