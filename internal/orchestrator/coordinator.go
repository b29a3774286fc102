package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/orchid-dev/orchid/internal/agent"
	"github.com/orchid-dev/orchid/internal/bus"
	"github.com/orchid-dev/orchid/internal/config"
	"github.com/orchid-dev/orchid/internal/events"
	"github.com/orchid-dev/orchid/internal/journal"
	"github.com/orchid-dev/orchid/internal/pm"
	"github.com/orchid-dev/orchid/internal/worker"
	"github.com/orchid-dev/orchid/pkg/models"
)

// eventBufferSize is the capacity of the emitter channel and of the
// forwarded subscriber channel.
const eventBufferSize = 256

// Options adjusts a Coordinator beyond what configuration covers.
type Options struct {
	// Logger receives debug log lines. Nil means no debug logging.
	Logger *DebugLogger
	// Journal persists events. Nil disables journaling.
	Journal *journal.Journal
	// DevExecutor overrides the configured development executor.
	// Used by tests to substitute stub workers.
	DevExecutor agent.Executor
}

// Stats summarizes a run.
type Stats struct {
	Requirements   int
	TasksCompleted int
	TasksFailed    int
	Dropped        uint64
}

// Coordinator owns the router, the agent runtimes, and the event pump.
// It is the single entry point the CLI talks to.
type Coordinator struct {
	cfg     *config.Config
	emitter *events.Emitter
	router  *bus.Router
	logger  *DebugLogger
	journal *journal.Journal

	pmExec *pm.PM
	pmRT   *agent.Runtime
	devRT  *agent.Runtime

	runID     string
	startedAt time.Time

	// out is the forwarded event stream for subscribers (CLI, TUI).
	out chan events.Event
	wg  sync.WaitGroup

	mu      sync.Mutex
	started bool
	stats   Stats
}

// New builds a Coordinator from configuration. The PM and development
// runtimes are created and registered with the router; nothing runs
// until Start is called.
func New(cfg *config.Config, opts Options) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	emitter := events.NewEmitter(eventBufferSize)
	router := bus.NewRouter(emitter)

	pmName := cfg.Agents.PM.Name
	devName := cfg.Agents.Dev.Name

	pmExec := pm.New(pm.Config{
		DispatchTo:    devName,
		MaxConcurrent: cfg.Agents.PM.MaxConcurrent,
	}, emitter)
	pmRT := agent.NewRuntimeWithMailbox(pmName, pmExec, router, emitter, cfg.Agents.PM.MailboxSize)

	devExec := opts.DevExecutor
	if devExec == nil {
		var err error
		devExec, err = buildDevExecutor(cfg, pmName)
		if err != nil {
			return nil, err
		}
	}
	devRT := agent.NewRuntimeWithMailbox(devName, devExec, router, emitter, cfg.Agents.Dev.MailboxSize)

	router.Register(pmName, pmRT)
	router.Register(devName, devRT)

	return &Coordinator{
		cfg:     cfg,
		emitter: emitter,
		router:  router,
		logger:  opts.Logger,
		journal: opts.Journal,
		pmExec:  pmExec,
		pmRT:    pmRT,
		devRT:   devRT,
		runID:   uuid.NewString(),
		out:     make(chan events.Event, eventBufferSize),
	}, nil
}

// buildDevExecutor selects the development executor from configuration.
func buildDevExecutor(cfg *config.Config, reportTo string) (agent.Executor, error) {
	wcfg := worker.Config{
		ReportTo:      reportTo,
		MaxConcurrent: cfg.Agents.Dev.MaxConcurrent,
	}

	if !cfg.Anthropic.Enabled {
		return worker.NewSimulated(wcfg), nil
	}

	client, err := worker.NewClient(worker.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return worker.NewClaude(wcfg, client), nil
}

// RunID identifies this coordinator's run in the journal.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Start launches the runtimes and the event pump.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	c.started = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	setPackageLogger(c.logger)

	if c.journal != nil {
		if err := c.journal.StartRun(c.runID, c.startedAt); err != nil {
			return fmt.Errorf("start journal run: %w", err)
		}
	}

	c.pmRT.Start(ctx)
	c.devRT.Start(ctx)

	c.wg.Add(1)
	go c.pumpEvents()

	debugLog("coordinator started: run=%s pm=%s dev=%s", c.runID, c.pmRT.Name(), c.devRT.Name())
	return nil
}

// pumpEvents drains the emitter, updating stats, the debug log, and the
// journal, and forwards each event to subscribers. A slow subscriber
// never blocks the pump.
func (c *Coordinator) pumpEvents() {
	defer c.wg.Done()
	defer close(c.out)

	for ev := range c.emitter.Events() {
		c.recordEvent(ev)

		select {
		case c.out <- ev:
		default:
			debugLog("subscriber channel full, dropping %s event", ev.Type)
		}
	}
}

// recordEvent applies one event to the run's stats, log, and journal.
func (c *Coordinator) recordEvent(ev events.Event) {
	c.mu.Lock()
	switch ev.Type {
	case events.RequirementProcessed:
		c.stats.Requirements++
	case events.TaskCompleted:
		c.stats.TasksCompleted++
	case events.TaskFailed:
		c.stats.TasksFailed++
	}
	c.mu.Unlock()

	debugLog("event %s agent=%s task=%s from=%s to=%s msg=%s", ev.Type, ev.Agent, ev.TaskID, ev.FromAgent, ev.ToAgent, ev.Message)

	if c.journal != nil {
		if err := c.journal.Record(c.runID, ev); err != nil {
			debugLog("journal write failed: %v", err)
		}
	}
}

// Events returns the forwarded event stream. The channel closes when
// the coordinator stops.
func (c *Coordinator) Events() <-chan events.Event {
	return c.out
}

// SubmitRequirement hands a requirement to the PM runtime as a
// process_requirement task.
func (c *Coordinator) SubmitRequirement(req *models.Requirement) error {
	if req == nil || req.ID == "" {
		return fmt.Errorf("requirement must have an id")
	}

	task := models.NewTask("process_"+req.ID, pm.TaskTypeProcessRequirement,
		fmt.Sprintf("Process requirement %s: %s", req.ID, req.Title), req.Priority)
	task.Metadata["requirement"] = req

	return c.pmRT.Submit(task)
}

// CreateSprint asks the PM runtime to record and announce a sprint
// covering the given tasks.
func (c *Coordinator) CreateSprint(sprintID string, tasks []*models.Task) error {
	if sprintID == "" {
		return fmt.Errorf("sprint id must not be empty")
	}

	task := models.NewTask("sprint_"+sprintID, pm.TaskTypeCreateSprint,
		fmt.Sprintf("Create sprint %s", sprintID), models.PriorityMedium)
	task.Metadata["sprintId"] = sprintID
	task.Metadata["tasks"] = tasks

	return c.pmRT.Submit(task)
}

// PrioritizedBacklog returns the PM's backlog in scoring order.
func (c *Coordinator) PrioritizedBacklog() ([]*models.Requirement, pm.BacklogSummary) {
	return c.pmExec.Backlog()
}

// DispatchedStatus reports the last known status of a dispatched
// subtask.
func (c *Coordinator) DispatchedStatus(taskID string) (models.TaskStatus, bool) {
	return c.pmExec.DispatchedStatus(taskID)
}

// Stats returns a snapshot of the run's counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Dropped = c.emitter.DroppedCount()
	return s
}

// WaitIdle blocks until both runtimes have drained their queues and
// mailboxes, or the context ends. Idleness must hold across consecutive
// polls so in-flight hand-offs between agents are not mistaken for
// completion.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	const (
		pollEvery   = 20 * time.Millisecond
		stablePolls = 3
	)

	stable := 0
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.pmRT.Idle() && c.devRT.Idle() {
				stable++
				if stable >= stablePolls {
					return nil
				}
			} else {
				stable = 0
			}
		}
	}
}

// Stop shuts the runtimes down, drains the event pump, and finalizes
// the journal run. Safe to call once.
func (c *Coordinator) Stop() {
	c.pmRT.Stop()
	c.devRT.Stop()

	// All emitting components have stopped; closing the emitter lets
	// the pump drain and exit.
	c.emitter.Close()
	c.wg.Wait()

	stats := c.Stats()
	debugLog("coordinator stopped: run=%s requirements=%d completed=%d failed=%d dropped=%d",
		c.runID, stats.Requirements, stats.TasksCompleted, stats.TasksFailed, stats.Dropped)

	if c.journal != nil {
		if err := c.journal.FinishRun(c.runID, time.Now(), stats.Requirements, stats.TasksCompleted, stats.TasksFailed); err != nil {
			debugLog("journal finish failed: %v", err)
		}
	}

	setPackageLogger(nil)
}
