package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orchid",
	Short: "Agent task orchestration core",
	Long: `Orchid coordinates a team of software agents around product
requirements.

A PM agent turns each requirement into a SMART objective and a set of
component subtasks, dispatches them to development agents over an
in-process message bus, and keeps a scored backlog. Development agents
execute subtasks under per-agent concurrency ceilings and report status
back.

Core capabilities:
- Decomposes requirements into tag-driven subtasks
- Routes agent-to-agent messages with fire-and-forget delivery
- Prioritizes the backlog by priority, tags, and estimated effort
- Journals every orchestration event to SQLite
- Watches a drop directory for new requirement files`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(versionCmd)
}
