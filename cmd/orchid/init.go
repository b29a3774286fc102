package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orchid-dev/orchid/pkg/models"
)

var (
	initForce       bool
	initWithSamples bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize an Orchid project",
	Long: `Initialize a directory for use with Orchid.

This command sets up everything needed to run Orchid:
  - Creates the .orchid directory structure
  - Creates the requirements drop directory for watch mode
  - Optionally creates a sample project config and requirements file

The directory argument is optional and defaults to the current directory.

Examples:
  orchid init                 # Initialize current directory
  orchid init ./myproject     # Initialize specific directory
  orchid init --force         # Reinitialize even if already set up
  orchid init --with-samples  # Create sample config and requirements`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initWithSamples, "with-samples", false, "Create sample config and requirements files")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Orchid in %s...\n\n", absPath)

	orchidDir := filepath.Join(absPath, ".orchid")
	if _, err := os.Stat(orchidDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	logsDir := filepath.Join(orchidDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating .orchid/logs directory: %w", err)
	}
	printStatus("✓", "Created .orchid directory structure", color.FgGreen)

	reqDir := filepath.Join(absPath, "requirements")
	if err := os.MkdirAll(reqDir, 0755); err != nil {
		return fmt.Errorf("creating requirements directory: %w", err)
	}
	printStatus("✓", "Created requirements drop directory", color.FgGreen)

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (only needed for the Claude worker)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	if initWithSamples {
		if err := createProjectConfig(absPath); err != nil {
			return fmt.Errorf("creating project config: %w", err)
		}
		printStatus("✓", "Created .orchid.yaml template", color.FgGreen)

		if err := createSampleRequirements(reqDir); err != nil {
			return fmt.Errorf("creating sample requirements: %w", err)
		}
		printStatus("✓", "Created requirements/sample.yaml", color.FgGreen)
	}

	fmt.Printf("\n%s Orchid initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Describe your requirements:")
	fmt.Println("     edit requirements/sample.yaml (or write your own)")
	fmt.Println()
	fmt.Println("  2. Run Orchid:")
	fmt.Println("     orchid run requirements/sample.yaml")
	fmt.Println("     # or: orchid watch --tui")
	fmt.Println()
	fmt.Println("  3. Learn more:")
	fmt.Println("     orchid --help")

	return nil
}

// createProjectConfig creates an .orchid.yaml template
func createProjectConfig(dir string) error {
	configPath := filepath.Join(dir, ".orchid.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return nil
	}

	content := `# Orchid project configuration
# This file overrides defaults from ~/.config/orchid/config.yaml
agents:
  pm:
    name: pm
    max_concurrent: 5
  dev:
    name: dev_team
    max_concurrent: 3
journal:
  enabled: true
watch:
  dir: requirements
anthropic:
  # Set enabled: true to let a Claude-backed agent execute subtasks.
  enabled: false
  # api_key: ${ANTHROPIC_API_KEY}
`
	return os.WriteFile(configPath, []byte(content), 0644)
}

// createSampleRequirements writes a requirements file demonstrating the
// schema.
func createSampleRequirements(reqDir string) error {
	path := filepath.Join(reqDir, "sample.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		return nil
	}

	sample := struct {
		Requirements []*models.Requirement `yaml:"requirements"`
	}{
		Requirements: []*models.Requirement{
			{
				ID:          "req-001",
				Title:       "Project search",
				Description: "Full-text search across project names and descriptions",
				Priority:    models.PriorityHigh,
				Tags:        []string{"frontend", "backend", "performance"},
				AcceptanceCriteria: []string{
					"Results appear within 200ms",
					"Search matches partial words",
				},
				EstimatedHours: 24,
				CreatedAt:      time.Now(),
			},
			{
				ID:             "req-002",
				Title:          "Audit log",
				Description:    "Record every change to project settings",
				Priority:       models.PriorityMedium,
				Tags:           []string{"database", "security"},
				EstimatedHours: 12,
				CreatedAt:      time.Now(),
			},
		},
	}

	data, err := yaml.Marshal(&sample)
	if err != nil {
		return fmt.Errorf("marshal sample requirements: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// printStatus prints a colored status symbol with a message
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
