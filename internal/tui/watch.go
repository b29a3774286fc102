// Package tui provides the terminal dashboard for watch mode. It
// renders the live task table and event log fed by the coordinator's
// event stream.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orchid-dev/orchid/internal/events"
	"github.com/orchid-dev/orchid/pkg/models"
)

// Status icons for task states.
const (
	iconPending    = "[○]"
	iconInProgress = "[●]"
	iconCompleted  = "[✓]"
	iconFailed     = "[✗]"
)

// EventMsg wraps a coordinator event for the TUI.
type EventMsg struct {
	Event events.Event
}

// FileLoadedMsg is sent when a watched requirements file was ingested.
type FileLoadedMsg struct {
	Path  string
	Count int
}

// FileErrorMsg is sent when a watched file could not be ingested.
type FileErrorMsg struct {
	Path string
	Err  error
}

// DoneMsg signals that the watcher is shutting down.
type DoneMsg struct{}

// LogEntry is one line in the event log panel.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// taskRow is the dashboard's view of one task.
type taskRow struct {
	ID        string
	Agent     string
	Type      string
	Status    models.TaskStatus
	StartedAt time.Time
	Duration  time.Duration
}

// Model is the bubbletea model for the watch dashboard.
type Model struct {
	spinner  spinner.Model
	tasks    []*taskRow
	logs     []LogEntry
	watchDir string

	requirements int
	completed    int
	failed       int

	width    int
	height   int
	quitting bool
	done     bool

	headerStyle      lipgloss.Style
	rowStyle         lipgloss.Style
	footerStyle      lipgloss.Style
	statusInProgress lipgloss.Style
	statusCompleted  lipgloss.Style
	statusFailed     lipgloss.Style
	statusPending    lipgloss.Style
}

// New creates a watch dashboard model.
func New(watchDir string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		spinner:  sp,
		watchDir: watchDir,
		tasks:    make([]*taskRow, 0),
		logs:     make([]LogEntry, 0),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("7")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240")),

		rowStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		statusInProgress: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		statusCompleted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")), // Dark green

		statusFailed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		statusPending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.applyEvent(msg.Event)

	case FileLoadedMsg:
		m.addLog("INFO", fmt.Sprintf("loaded %d requirements from %s", msg.Count, msg.Path))

	case FileErrorMsg:
		m.addLog("ERROR", fmt.Sprintf("failed to load %s: %v", msg.Path, msg.Err))

	case DoneMsg:
		m.done = true
	}

	return m, nil
}

// applyEvent folds one coordinator event into the dashboard state.
func (m *Model) applyEvent(ev events.Event) {
	switch ev.Type {
	case events.TaskSubmitted:
		row := m.findOrCreateTask(ev.TaskID)
		row.Agent = ev.Agent
		row.Type = ev.TaskType
		row.Status = models.TaskStatusPending

	case events.TaskStarted:
		row := m.findOrCreateTask(ev.TaskID)
		row.Agent = ev.Agent
		row.Type = ev.TaskType
		row.Status = models.TaskStatusInProgress
		row.StartedAt = ev.Timestamp

	case events.TaskCompleted:
		row := m.findOrCreateTask(ev.TaskID)
		row.Status = models.TaskStatusCompleted
		row.Duration = ev.Duration
		m.completed++

	case events.TaskFailed:
		row := m.findOrCreateTask(ev.TaskID)
		row.Status = models.TaskStatusFailed
		row.Duration = ev.Duration
		m.failed++
		if ev.Error != nil {
			m.addLog("ERROR", fmt.Sprintf("task %s failed: %v", ev.TaskID, ev.Error))
		}

	case events.RequirementProcessed:
		m.requirements++
		m.addLog("INFO", fmt.Sprintf("requirement %s: %s", ev.RequirementID, ev.Message))

	case events.SprintCreated:
		m.addLog("INFO", fmt.Sprintf("sprint %s: %s", ev.SprintID, ev.Message))

	case events.MessageDropped:
		m.addLog("WARN", fmt.Sprintf("dropped %s from %s to %s: %s", ev.MessageType, ev.FromAgent, ev.ToAgent, ev.Message))
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s",
		m.viewHeader(), m.viewTasks(), m.viewLogs(), m.viewFooter())
}

// viewHeader renders the title line with the run counters.
func (m *Model) viewHeader() string {
	status := m.spinner.View() + " watching " + m.watchDir
	if m.done {
		status = "watcher stopped"
	}
	return fmt.Sprintf("%s | requirements: %d completed: %d failed: %d",
		status, m.requirements, m.completed, m.failed)
}

// viewTasks renders the task table.
func (m *Model) viewTasks() string {
	if len(m.tasks) == 0 {
		return m.rowStyle.Render("No tasks yet")
	}

	colStatus := 5
	colID := 34
	colAgent := 12
	colType := 26
	colDuration := 10

	var b strings.Builder

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
		colStatus, "STS",
		colID, "TASK ID",
		colAgent, "AGENT",
		colType, "TYPE",
		colDuration, "DURATION",
	)
	b.WriteString(m.headerStyle.Render(header))
	b.WriteString("\n")

	for _, row := range m.tasks {
		line := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
			colStatus, m.statusIcon(row.Status),
			colID, truncate(row.ID, colID-2),
			colAgent, truncate(row.Agent, colAgent-2),
			colType, truncate(row.Type, colType-2),
			colDuration, m.rowDuration(row),
		)
		b.WriteString(m.rowStyle.Render(line))
		b.WriteString("\n")
	}

	return b.String()
}

// viewLogs renders the most recent log entries.
func (m *Model) viewLogs() string {
	if len(m.logs) == 0 {
		return m.rowStyle.Render("No events")
	}

	start := 0
	if len(m.logs) > 10 {
		start = len(m.logs) - 10
	}

	var b strings.Builder
	for _, entry := range m.logs[start:] {
		ts := entry.Timestamp.Format("15:04:05")
		b.WriteString(fmt.Sprintf("  %s [%s] %s\n", ts, entry.Level, entry.Message))
	}
	return b.String()
}

// viewFooter renders the key hints.
func (m *Model) viewFooter() string {
	return m.footerStyle.Render("Press q to quit")
}

// statusIcon returns the styled icon for a task status.
func (m *Model) statusIcon(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusInProgress:
		return m.statusInProgress.Render(iconInProgress)
	case models.TaskStatusCompleted:
		return m.statusCompleted.Render(iconCompleted)
	case models.TaskStatusFailed:
		return m.statusFailed.Render(iconFailed)
	default:
		return m.statusPending.Render(iconPending)
	}
}

// rowDuration formats the elapsed or final duration for a row.
func (m *Model) rowDuration(row *taskRow) string {
	switch row.Status {
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		return formatDuration(row.Duration)
	case models.TaskStatusInProgress:
		if row.StartedAt.IsZero() {
			return "-"
		}
		return formatDuration(time.Since(row.StartedAt))
	default:
		return "-"
	}
}

// findOrCreateTask finds a task row by id or appends a new one.
func (m *Model) findOrCreateTask(id string) *taskRow {
	for _, row := range m.tasks {
		if row.ID == id {
			return row
		}
	}
	row := &taskRow{ID: id, Status: models.TaskStatusPending}
	m.tasks = append(m.tasks, row)
	return row
}

// addLog appends a log entry.
func (m *Model) addLog(level, message string) {
	m.logs = append(m.logs, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
}

// TaskCount returns the number of task rows on the dashboard.
func (m *Model) TaskCount() int {
	return len(m.tasks)
}

// NewProgram creates a Bubbletea program for the watch dashboard.
// The returned program receives coordinator updates via Send().
func NewProgram(watchDir string) (*tea.Program, *Model) {
	model := New(watchDir)
	p := tea.NewProgram(model, tea.WithAltScreen())
	return p, model
}

// truncate shortens a string to fit in a column.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
