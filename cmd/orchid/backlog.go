package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/pm"
	"github.com/orchid-dev/orchid/internal/reqfile"
	"github.com/orchid-dev/orchid/pkg/models"
)

var backlogCmd = &cobra.Command{
	Use:   "backlog <requirements-file>...",
	Short: "Score and rank requirements without running agents",
	Long: `Backlog loads requirement YAML files and prints them in
prioritized order. Nothing is dispatched; this is the same scoring the
PM agent applies during a run.

Examples:
  orchid backlog requirements/sample.yaml
  orchid backlog backlog/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBacklog,
}

func runBacklog(cmd *cobra.Command, args []string) error {
	var reqs []*models.Requirement
	for _, path := range args {
		loaded, err := reqfile.Load(path)
		if err != nil {
			return err
		}
		reqs = append(reqs, loaded...)
	}

	sorted, summary := pm.PrioritizeRequirements(reqs)
	printBacklog(sorted, summary)
	return nil
}

// printBacklog renders the prioritized backlog as a table.
func printBacklog(reqs []*models.Requirement, summary pm.BacklogSummary) {
	if len(reqs) == 0 {
		fmt.Println("Backlog is empty")
		return
	}

	fmt.Printf("Backlog: %d requirements (%d high priority)\n\n", summary.Total, summary.HighPriority)
	fmt.Printf("  %-5s %-10s %-8s %-6s %-30s %s\n", "RANK", "ID", "PRIORITY", "SCORE", "TITLE", "TAGS")

	for i, req := range reqs {
		fmt.Printf("  %-5d %-10s %-8s %-6.1f %-30s %s\n",
			i+1,
			req.ID,
			colorPriority(req.Priority),
			pm.Score(req),
			truncateTitle(req.Title, 28),
			strings.Join(req.Tags, ","),
		)
	}
}

// colorPriority renders a priority with its conventional color.
func colorPriority(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return color.RedString(string(p))
	case models.PriorityMedium:
		return color.YellowString(string(p))
	default:
		return color.HiBlackString(string(p))
	}
}

// truncateTitle shortens a title to fit its column.
func truncateTitle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
