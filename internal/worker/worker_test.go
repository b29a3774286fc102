package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/orchid-dev/orchid/pkg/models"
)

// fakeOutbox records messages sent by a worker during a test.
type fakeOutbox struct {
	name string
	sent []*models.Message
}

func (f *fakeOutbox) AgentName() string {
	if f.name == "" {
		return "dev_team"
	}
	return f.name
}

func (f *fakeOutbox) Send(toAgent string, mt models.MessageType, payload any) {
	f.sent = append(f.sent, models.NewMessage(f.AgentName(), toAgent, mt, payload))
}

func TestSimulated_ExecuteTaskReportsCompletion(t *testing.T) {
	w := NewSimulated(Config{ReportTo: "pm"})
	out := &fakeOutbox{}

	task := models.NewTask("req-1_ui_design", "ui_design", "Design it", models.PriorityHigh)
	task.Metadata["parentRequirement"] = "req-1"

	result, err := w.ExecuteTask(context.Background(), task, out)
	if err != nil {
		t.Fatalf("ExecuteTask() error = %v", err)
	}

	if result["task_id"] != "req-1_ui_design" {
		t.Errorf("result task_id = %v", result["task_id"])
	}
	if result["completed_by"] != "dev_team" {
		t.Errorf("result completed_by = %v, want dev_team", result["completed_by"])
	}

	if len(out.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 status update", len(out.sent))
	}
	update := out.sent[0]
	if update.ToAgent != "pm" || update.Type != models.MessageTypeStatusUpdate {
		t.Errorf("update = to %q type %q, want pm/status_update", update.ToAgent, update.Type)
	}
	payload := update.PayloadMap()
	if payload["task_id"] != "req-1_ui_design" || payload["status"] != "completed" {
		t.Errorf("update payload = %v", payload)
	}
}

func TestSimulated_WorkDelayHonorsContext(t *testing.T) {
	w := NewSimulated(Config{WorkDelay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := models.NewTask("t1", "analysis", "", models.PriorityLow)
	if _, err := w.ExecuteTask(ctx, task, &fakeOutbox{}); err == nil {
		t.Error("ExecuteTask() with cancelled context should fail")
	}
}

func TestSimulated_TaskTypesCoverDecompositionOutputs(t *testing.T) {
	w := NewSimulated(Config{})
	types := make(map[string]bool)
	for _, tt := range w.TaskTypes() {
		types[tt] = true
	}

	for _, want := range []string{
		"ui_design", "frontend_implementation", "api_design",
		"backend_implementation", "database_design", "test_implementation",
		"analysis", "implementation", "testing", "review",
	} {
		if !types[want] {
			t.Errorf("TaskTypes() missing %q", want)
		}
	}
}

func TestSimulated_Defaults(t *testing.T) {
	w := NewSimulated(Config{})
	if w.MaxConcurrency() != DefaultMaxConcurrent {
		t.Errorf("MaxConcurrency() = %d, want %d", w.MaxConcurrency(), DefaultMaxConcurrent)
	}
	if w.cfg.ReportTo != "pm" {
		t.Errorf("default ReportTo = %q, want pm", w.cfg.ReportTo)
	}
}

func TestHandleWorkerMessage_SprintStart(t *testing.T) {
	w := NewSimulated(Config{})
	out := &fakeOutbox{}

	msg := models.NewMessage("pm", "dev_team", models.MessageTypeRequest, map[string]any{
		"request":    "sprint_start",
		"sprint_id":  "sprint-1",
		"task_count": 3,
	})

	// Sprint announcements are acknowledged in the log only; no reply
	// and no panic.
	w.HandleMessage(context.Background(), msg, out)
	if len(out.sent) != 0 {
		t.Errorf("sprint_start produced %d replies, want 0", len(out.sent))
	}
}

func TestTaskPrompt(t *testing.T) {
	deadline := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	task := models.NewTask("req-1_api_design", "api_design", "Design the API for Search", models.PriorityHigh)
	task.Metadata["parentRequirement"] = "req-1"
	task.Metadata["component"] = "backend"
	task.Metadata["skill"] = "architecture"
	task.Deadline = &deadline

	prompt := taskPrompt(task)

	for _, want := range []string{
		"Task type: api_design",
		"Description: Design the API for Search",
		"Parent requirement: req-1",
		"Component: backend",
		"Required skill: architecture",
		"Deadline: 2026-03-07",
		"Priority: high",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("taskPrompt() missing %q in:\n%s", want, prompt)
		}
	}
}
