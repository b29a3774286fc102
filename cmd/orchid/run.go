package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/config"
	"github.com/orchid-dev/orchid/internal/events"
	"github.com/orchid-dev/orchid/internal/journal"
	"github.com/orchid-dev/orchid/internal/orchestrator"
	"github.com/orchid-dev/orchid/internal/pm"
	"github.com/orchid-dev/orchid/internal/reqfile"
	"github.com/orchid-dev/orchid/pkg/models"
)

var (
	runTimeout   time.Duration
	runSprint    string
	runNoJournal bool
	runQuiet     bool
)

var runCmd = &cobra.Command{
	Use:   "run <requirements-file>...",
	Short: "Process requirement files through the agent team",
	Long: `Run loads one or more requirement YAML files, hands every
requirement to the PM agent, and waits until all dispatched subtasks
have finished. The prioritized backlog and run statistics are printed
at the end.

Examples:
  orchid run requirements/sample.yaml
  orchid run backlog/*.yaml --sprint sprint-12
  orchid run reqs.yaml --timeout 2m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "Abort the run after this duration")
	runCmd.Flags().StringVar(&runSprint, "sprint", "", "Create and announce a sprint with this id covering all subtasks")
	runCmd.Flags().BoolVar(&runNoJournal, "no-journal", false, "Skip writing events to the SQLite journal")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress per-event output")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var reqs []*models.Requirement
	for _, path := range args {
		loaded, err := reqfile.Load(path)
		if err != nil {
			return err
		}
		reqs = append(reqs, loaded...)
	}

	coord, cleanup, err := buildCoordinator(cfg, !runNoJournal)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	if err := coord.Start(ctx); err != nil {
		return err
	}

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for ev := range coord.Events() {
			if !runQuiet {
				printEvent(ev)
			}
		}
	}()

	for _, req := range reqs {
		if err := coord.SubmitRequirement(req); err != nil {
			return fmt.Errorf("submit requirement %s: %w", req.ID, err)
		}
	}

	if err := coord.WaitIdle(ctx); err != nil {
		coord.Stop()
		<-eventsDone
		return fmt.Errorf("run did not finish: %w", err)
	}

	if runSprint != "" {
		var tasks []*models.Task
		now := time.Now()
		for _, req := range reqs {
			tasks = append(tasks, pm.DecomposeRequirement(req, now)...)
		}
		if err := coord.CreateSprint(runSprint, tasks); err != nil {
			return fmt.Errorf("create sprint: %w", err)
		}
		if err := coord.WaitIdle(ctx); err != nil {
			coord.Stop()
			<-eventsDone
			return fmt.Errorf("sprint announcement did not finish: %w", err)
		}
	}

	coord.Stop()
	<-eventsDone

	backlog, summary := coord.PrioritizedBacklog()
	fmt.Println()
	printBacklog(backlog, summary)

	stats := coord.Stats()
	fmt.Printf("\n%s %d requirements, %d tasks completed, %d failed\n",
		color.GreenString("✓"), stats.Requirements, stats.TasksCompleted, stats.TasksFailed)
	if stats.Dropped > 0 {
		fmt.Printf("%s %d events dropped under load\n", color.YellowString("⚠"), stats.Dropped)
	}

	if stats.TasksFailed > 0 {
		return fmt.Errorf("%d tasks failed", stats.TasksFailed)
	}
	return nil
}

// buildCoordinator assembles a coordinator with the debug logger and,
// when enabled, the SQLite journal. The returned cleanup closes both.
func buildCoordinator(cfg *config.Config, wantJournal bool) (*orchestrator.Coordinator, func(), error) {
	logger := orchestrator.NewDebugLoggerForDir(".")

	var j *journal.Journal
	if wantJournal && cfg.Journal.Enabled {
		path := cfg.Journal.Path
		if path == "" {
			path = journal.DefaultPath()
		}
		var err error
		j, err = journal.Open(path)
		if err != nil {
			logger.Close()
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		if cfg.Journal.RetainFor > 0 {
			if _, err := j.PurgeOldRuns(cfg.Journal.RetainFor); err != nil {
				logger.Log("journal purge failed: %v", err)
			}
		}
	}

	coord, err := orchestrator.New(cfg, orchestrator.Options{Logger: logger, Journal: j})
	if err != nil {
		if j != nil {
			j.Close()
		}
		logger.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if j != nil {
			j.Close()
		}
		logger.Close()
	}
	return coord, cleanup, nil
}

// printEvent writes one line per interesting orchestration event.
func printEvent(ev events.Event) {
	switch ev.Type {
	case events.RequirementProcessed:
		fmt.Printf("%s requirement %s: %s\n", color.CyanString("→"), ev.RequirementID, ev.Message)
	case events.TaskCompleted:
		fmt.Printf("%s %s finished %s (%s)\n", color.GreenString("✓"), ev.Agent, ev.TaskID, ev.Duration.Round(time.Millisecond))
	case events.TaskFailed:
		fmt.Printf("%s %s failed %s: %v\n", color.RedString("✗"), ev.Agent, ev.TaskID, ev.Error)
	case events.SprintCreated:
		fmt.Printf("%s sprint %s: %s\n", color.CyanString("→"), ev.SprintID, ev.Message)
	case events.MessageDropped:
		fmt.Printf("%s dropped %s from %s to %s: %s\n", color.YellowString("⚠"), ev.MessageType, ev.FromAgent, ev.ToAgent, ev.Message)
	}
}
