// Package journal persists orchestration events to SQLite so runs can
// be inspected after the fact. The journal lives in the data directory
// (~/.local/share/orchid/orchid.db) or at a configured path.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/orchid-dev/orchid/internal/events"
)

// Journal wraps an SQLite database that records orchestration events.
type Journal struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the path to the default journal database.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "orchid", "orchid.db")
}

// Open opens the journal database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	j := &Journal{
		conn: conn,
		path: path,
	}

	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return j, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.conn.Close()
}

// Path returns the path to the journal file.
func (j *Journal) Path() string {
	return j.path
}

// migrate applies all pending schema migrations.
func (j *Journal) migrate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := j.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Events},
		{2, migrationV2Runs},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := j.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Events = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	type TEXT NOT NULL,
	agent TEXT,
	task_id TEXT,
	task_type TEXT,
	task_status TEXT,
	from_agent TEXT,
	to_agent TEXT,
	message_type TEXT,
	requirement_id TEXT,
	sprint_id TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	detail TEXT,
	error TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id);
`

const migrationV2Runs = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	requirements INTEGER NOT NULL DEFAULT 0,
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	tasks_failed INTEGER NOT NULL DEFAULT 0
);
`

// StartRun records the beginning of an orchestration run.
func (j *Journal) StartRun(runID string, startedAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.conn.Exec(`
		INSERT INTO runs (id, started_at) VALUES (?, ?)
	`, runID, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// FinishRun records the end of a run along with its task totals.
func (j *Journal) FinishRun(runID string, finishedAt time.Time, requirements, completed, failed int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.conn.Exec(`
		UPDATE runs
		SET finished_at = ?, requirements = ?, tasks_completed = ?, tasks_failed = ?
		WHERE id = ?
	`, formatTime(finishedAt), requirements, completed, failed, runID)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// Record appends one event to the journal under the given run.
func (j *Journal) Record(runID string, ev events.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	errText := ""
	if ev.Error != nil {
		errText = ev.Error.Error()
	}

	_, err := j.conn.Exec(`
		INSERT INTO events (
			run_id, type, agent, task_id, task_type, task_status,
			from_agent, to_agent, message_type, requirement_id, sprint_id,
			duration_ms, detail, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID, string(ev.Type), ev.Agent, ev.TaskID, ev.TaskType, string(ev.TaskStatus),
		ev.FromAgent, ev.ToAgent, string(ev.MessageType), ev.RequirementID, ev.SprintID,
		ev.Duration.Milliseconds(), ev.Message, errText, formatTime(ev.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// StoredEvent is one journal row.
type StoredEvent struct {
	ID            int64
	RunID         string
	Type          events.Type
	Agent         string
	TaskID        string
	TaskType      string
	TaskStatus    string
	FromAgent     string
	ToAgent       string
	MessageType   string
	RequirementID string
	SprintID      string
	Duration      time.Duration
	Detail        string
	Error         string
	CreatedAt     time.Time
}

// EventsForRun returns all events recorded for a run, oldest first.
func (j *Journal) EventsForRun(runID string) ([]StoredEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.Query(`
		SELECT id, run_id, type, agent, task_id, task_type, task_status,
		       from_agent, to_agent, message_type, requirement_id, sprint_id,
		       duration_ms, detail, error, created_at
		FROM events
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev         StoredEvent
			evType     string
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(
			&ev.ID, &ev.RunID, &evType, &ev.Agent, &ev.TaskID, &ev.TaskType, &ev.TaskStatus,
			&ev.FromAgent, &ev.ToAgent, &ev.MessageType, &ev.RequirementID, &ev.SprintID,
			&durationMS, &ev.Detail, &ev.Error, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = events.Type(evType)
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := parseTime(createdAt); err == nil {
			ev.CreatedAt = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountByType returns event counts per event type for a run.
func (j *Journal) CountByType(runID string) (map[events.Type]int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.Query(`
		SELECT type, COUNT(*) FROM events WHERE run_id = ? GROUP BY type
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[events.Type]int)
	for rows.Next() {
		var (
			evType string
			n      int
		)
		if err := rows.Scan(&evType, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[events.Type(evType)] = n
	}
	return counts, rows.Err()
}

// PurgeOldRuns deletes runs (and their events) older than the given
// duration. Returns the number of runs deleted.
func (j *Journal) PurgeOldRuns(olderThan time.Duration) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-olderThan))

	if _, err := j.conn.Exec(`
		DELETE FROM events WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("purge old events: %w", err)
	}

	result, err := j.conn.Exec(`
		DELETE FROM runs WHERE started_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
