package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/config"
	"github.com/orchid-dev/orchid/internal/orchestrator"
	"github.com/orchid-dev/orchid/internal/reqfile"
	"github.com/orchid-dev/orchid/internal/tui"
)

var (
	watchDirFlag string
	watchTUI     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and orchestrate new requirement files",
	Long: `Watch keeps the agent team running and feeds it every
requirements YAML file dropped into the watch directory. Files present
when the watcher starts are processed first.

With --tui, a live dashboard shows tasks, agents, and events.

Examples:
  orchid watch
  orchid watch --dir incoming --tui`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDirFlag, "dir", "", "Directory to watch (defaults to the configured watch dir)")
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "Show the live dashboard")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir := watchDirFlag
	if dir == "" {
		dir = cfg.Watch.Dir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating watch directory: %w", err)
	}

	coord, cleanup, err := buildCoordinator(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	if watchTUI {
		return watchWithTUI(ctx, coord, watcher, dir, cfg.Watch.SettleDelay)
	}
	return watchPlain(ctx, coord, watcher, dir, cfg.Watch.SettleDelay)
}

// watchPlain runs the watcher with line-based output.
func watchPlain(ctx context.Context, coord *orchestrator.Coordinator, watcher *fsnotify.Watcher, dir string, settle time.Duration) error {
	go func() {
		for ev := range coord.Events() {
			printEvent(ev)
		}
	}()

	ingestExisting(coord, dir, nil)

	fmt.Printf("Watching %s for requirement files (ctrl-c to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRequirementsFile(event) {
				continue
			}
			scheduleIngest(coord, event.Name, nil, settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watch] WARNING: watcher error: %v", err)
		}
	}
}

// watchWithTUI runs the watcher behind the dashboard.
func watchWithTUI(ctx context.Context, coord *orchestrator.Coordinator, watcher *fsnotify.Watcher, dir string, settle time.Duration) error {
	// Suppress log output while the TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	program, _ := tui.NewProgram(dir)

	go func() {
		for ev := range coord.Events() {
			program.Send(tui.EventMsg{Event: ev})
		}
		program.Send(tui.DoneMsg{})
	}()

	go func() {
		ingestExisting(coord, dir, program)

		for {
			select {
			case <-ctx.Done():
				program.Quit()
				return

			case event, ok := <-watcher.Events:
				if !ok {
					program.Quit()
					return
				}
				if !isRequirementsFile(event) {
					continue
				}
				scheduleIngest(coord, event.Name, program, settle)

			case _, ok := <-watcher.Errors:
				if !ok {
					program.Quit()
					return
				}
			}
		}
	}()

	_, err := program.Run()
	return err
}

// scheduleIngest ingests a file once the settle delay has passed,
// without blocking the watch loop while the writer finishes the file.
func scheduleIngest(coord *orchestrator.Coordinator, path string, program *tea.Program, settle time.Duration) {
	if settle <= 0 {
		ingestFile(coord, path, program)
		return
	}
	time.AfterFunc(settle, func() {
		ingestFile(coord, path, program)
	})
}

// ingestExisting processes requirement files already in the directory.
func ingestExisting(coord *orchestrator.Coordinator, dir string, program *tea.Program) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			ingestFile(coord, filepath.Join(dir, name), program)
		}
	}
}

// ingestFile loads one requirements file and submits its entries.
func ingestFile(coord *orchestrator.Coordinator, path string, program *tea.Program) {
	reqs, err := reqfile.Load(path)
	if err != nil {
		if program != nil {
			program.Send(tui.FileErrorMsg{Path: path, Err: err})
		} else {
			log.Printf("[watch] WARNING: %v", err)
		}
		return
	}

	submitted := 0
	for _, req := range reqs {
		if err := coord.SubmitRequirement(req); err != nil {
			log.Printf("[watch] WARNING: submit %s: %v", req.ID, err)
			continue
		}
		submitted++
	}

	if program != nil {
		program.Send(tui.FileLoadedMsg{Path: path, Count: submitted})
	} else {
		fmt.Printf("loaded %d requirements from %s\n", submitted, path)
	}
}

// isRequirementsFile reports whether a watcher event concerns a newly
// written YAML file.
func isRequirementsFile(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return strings.HasSuffix(event.Name, ".yaml") || strings.HasSuffix(event.Name, ".yml")
}
