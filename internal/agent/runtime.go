package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orchid-dev/orchid/internal/events"
	"github.com/orchid-dev/orchid/pkg/models"
)

// DefaultMailboxSize is the buffer size of a runtime's message inbox.
const DefaultMailboxSize = 64

// Runtime executes assigned tasks under a per-agent concurrency ceiling
// and routes inbound and outbound messages. One Runtime exists per
// named agent. All mutable state (task map, pending queue, running
// count) is owned by the Runtime and accessed only under its mutex, so
// status transitions are atomic and never interleave for one task.
type Runtime struct {
	name     string
	executor Executor
	sender   Sender
	emitter  *events.Emitter

	// taskTypes is the set of type tags the executor accepts.
	taskTypes map[string]struct{}

	mailbox chan *models.Message
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	// mu protects tasks, queue, and running.
	mu sync.Mutex
	// tasks maps task id to the runtime's record of the task.
	tasks map[string]*models.Task
	// queue holds ids of pending tasks in FIFO submission order.
	// FIFO is a documented choice; the reference behavior leaves the
	// pick order unspecified.
	queue []string
	// running counts tasks currently in_progress.
	running int
}

// NewRuntime creates a runtime for the named agent. The sender may be
// nil for runtimes that never send messages; the emitter may be nil to
// disable observability events.
func NewRuntime(name string, executor Executor, sender Sender, emitter *events.Emitter) *Runtime {
	types := make(map[string]struct{})
	for _, t := range executor.TaskTypes() {
		types[t] = struct{}{}
	}

	return &Runtime{
		name:      name,
		executor:  executor,
		sender:    sender,
		emitter:   emitter,
		taskTypes: types,
		mailbox:   make(chan *models.Message, DefaultMailboxSize),
		tasks:     make(map[string]*models.Task),
	}
}

// NewRuntimeWithMailbox creates a runtime with a custom mailbox
// capacity. A size below 1 keeps the default.
func NewRuntimeWithMailbox(name string, executor Executor, sender Sender, emitter *events.Emitter, mailboxSize int) *Runtime {
	r := NewRuntime(name, executor, sender, emitter)
	if mailboxSize > 0 {
		r.mailbox = make(chan *models.Message, mailboxSize)
	}
	return r
}

// Name returns the logical agent name. Part of the bus.Inbox interface.
func (r *Runtime) Name() string {
	return r.name
}

// AgentName returns the logical agent name. Part of the Outbox interface.
func (r *Runtime) AgentName() string {
	return r.name
}

// Start launches the mailbox pump. It must be called before messages
// are delivered; submitted tasks run regardless.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pump()
}

// Stop cancels in-flight work and waits for the mailbox pump and all
// running tasks to finish.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// pump processes inbound envelopes one at a time.
func (r *Runtime) pump() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg := <-r.mailbox:
			r.receiveMessage(msg)
		}
	}
}

// Deliver places an envelope into the mailbox without blocking.
// Part of the bus.Inbox interface. Returns false when the mailbox is
// full; the router logs and drops the envelope in that case.
func (r *Runtime) Deliver(msg *models.Message) bool {
	select {
	case r.mailbox <- msg:
		return true
	default:
		return false
	}
}

// Submit accepts a task, enqueues it, and starts it when capacity
// allows. It fails with a *RejectedTaskError if the task's type is not
// one the executor knows how to execute. A task id that is currently
// in_progress cannot be resubmitted; pending and terminal ids are
// overwritten.
func (r *Runtime) Submit(task *models.Task) error {
	if task == nil {
		return fmt.Errorf("agent %q: nil task", r.name)
	}
	if _, ok := r.taskTypes[task.Type]; !ok {
		return &RejectedTaskError{Agent: r.name, TaskID: task.ID, TaskType: task.Type}
	}

	now := time.Now()

	r.mu.Lock()
	if prev, ok := r.tasks[task.ID]; ok && prev.Status == models.TaskStatusInProgress {
		r.mu.Unlock()
		return fmt.Errorf("agent %q: task %q is in progress", r.name, task.ID)
	}
	// The status reset happens under the mutex so it cannot interleave
	// with a concurrent terminal transition on the same record.
	task.Status = models.TaskStatusPending
	task.UpdatedAt = now
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	// Resubmission of a known id overwrites the prior record.
	r.tasks[task.ID] = task
	r.queue = append(r.queue, task.ID)
	r.mu.Unlock()

	r.emitter.Emit(events.Event{
		Type:     events.TaskSubmitted,
		Agent:    r.name,
		TaskID:   task.ID,
		TaskType: task.Type,
	})

	r.schedule()
	return nil
}

// schedule starts pending tasks while the running count is below the
// executor's concurrency ceiling. Tasks beyond the ceiling stay pending
// until capacity frees up.
func (r *Runtime) schedule() {
	max := r.executor.MaxConcurrency()
	if max < 1 {
		max = 1
	}

	for {
		r.mu.Lock()
		if r.running >= max || len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}

		id := r.queue[0]
		r.queue = r.queue[1:]
		task, ok := r.tasks[id]
		if !ok || task.Status != models.TaskStatusPending {
			// Overwritten or already handled; skip the stale entry.
			r.mu.Unlock()
			continue
		}

		task.Status = models.TaskStatusInProgress
		task.UpdatedAt = time.Now()
		r.running++
		r.mu.Unlock()

		r.emitter.Emit(events.Event{
			Type:       events.TaskStarted,
			Agent:      r.name,
			TaskID:     task.ID,
			TaskType:   task.Type,
			TaskStatus: models.TaskStatusInProgress,
		})

		r.wg.Add(1)
		go r.run(task)
	}
}

// run executes one task body and records its terminal state. A failure
// inside the body never crashes the runtime or other tasks.
func (r *Runtime) run(task *models.Task) {
	defer r.wg.Done()

	started := time.Now()
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := r.executeSafely(ctx, task)
	r.finish(task, result, err, time.Since(started))
}

// executeSafely invokes the executor and converts panics into errors.
func (r *Runtime) executeSafely(ctx context.Context, task *models.Task) (result map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return r.executor.ExecuteTask(ctx, task, r)
}

// finish applies the terminal transition for a task. Once a task is
// completed or failed, no further transition is accepted.
func (r *Runtime) finish(task *models.Task, result map[string]any, err error, elapsed time.Duration) {
	r.mu.Lock()
	if task.Status.Terminal() {
		r.mu.Unlock()
		return
	}

	task.UpdatedAt = time.Now()
	if err != nil {
		task.Status = models.TaskStatusFailed
		task.Error = err.Error()
	} else {
		task.Status = models.TaskStatusCompleted
		task.Result = result
	}
	status := task.Status
	r.running--
	r.mu.Unlock()

	evType := events.TaskCompleted
	if err != nil {
		evType = events.TaskFailed
	}
	r.emitter.Emit(events.Event{
		Type:       evType,
		Agent:      r.name,
		TaskID:     task.ID,
		TaskType:   task.Type,
		TaskStatus: status,
		Duration:   elapsed,
		Error:      err,
	})

	r.schedule()
}

// receiveMessage dispatches an inbound envelope by type. Task
// assignments are submitted to this runtime; status updates and
// requests go to the executor; anything else is logged and dropped.
func (r *Runtime) receiveMessage(msg *models.Message) {
	switch msg.Type {
	case models.MessageTypeTaskAssignment:
		task := msg.Task()
		if task == nil {
			log.Printf("[agent %s] WARNING: task_assignment %s without task payload, dropping", r.name, msg.MessageID)
			return
		}
		task.AssignedTo = r.name
		if err := r.Submit(task); err != nil {
			log.Printf("[agent %s] WARNING: rejected assigned task %s: %v", r.name, task.ID, err)
		}

	case models.MessageTypeStatusUpdate, models.MessageTypeRequest:
		r.executor.HandleMessage(r.ctx, msg, r)

	default:
		log.Printf("[agent %s] WARNING: unrecognized message type %q from %s, dropping", r.name, msg.Type, msg.FromAgent)
	}
}

// Send constructs an envelope from this agent and hands it to the
// router. Fire-and-forget: delivery is a non-blocking hand-off and no
// confirmation is awaited. Part of the Outbox interface.
func (r *Runtime) Send(toAgent string, mt models.MessageType, payload any) {
	if r.sender == nil {
		log.Printf("[agent %s] WARNING: no router configured, dropping %s to %s", r.name, mt, toAgent)
		return
	}
	r.sender.Route(models.NewMessage(r.name, toAgent, mt, payload))
}

// Task returns the runtime's record of a task, or nil if unknown.
func (r *Runtime) Task(id string) *models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id]
}

// Tasks returns a snapshot of all task records owned by this runtime.
func (r *Runtime) Tasks() []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// Counts returns the number of pending and in_progress tasks.
func (r *Runtime) Counts() (pending, running int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue), r.running
}

// Idle reports whether the runtime has no queued or running tasks and
// an empty mailbox.
func (r *Runtime) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running == 0 && len(r.queue) == 0 && len(r.mailbox) == 0
}
