package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orchid-dev/orchid/pkg/models"
)

// stubExecutor is a configurable Executor for runtime tests.
type stubExecutor struct {
	types   []string
	max     int
	execute func(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error)

	mu       sync.Mutex
	messages []*models.Message
}

func (s *stubExecutor) TaskTypes() []string { return s.types }

func (s *stubExecutor) MaxConcurrency() int { return s.max }

func (s *stubExecutor) ExecuteTask(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error) {
	if s.execute != nil {
		return s.execute(ctx, task, out)
	}
	return map[string]any{"ok": true}, nil
}

func (s *stubExecutor) HandleMessage(ctx context.Context, msg *models.Message, out Outbox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *stubExecutor) handled() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Message(nil), s.messages...)
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRuntime_SubmitUnknownTypeRejected(t *testing.T) {
	exec := &stubExecutor{types: []string{"ui_design"}, max: 1}
	rt := NewRuntime("dev_team", exec, nil, nil)

	task := models.NewTask("t1", "database_design", "", models.PriorityMedium)
	err := rt.Submit(task)

	var rejected *RejectedTaskError
	if !errors.As(err, &rejected) {
		t.Fatalf("Submit() error = %v, want *RejectedTaskError", err)
	}
	if rejected.TaskType != "database_design" {
		t.Errorf("RejectedTaskError.TaskType = %q, want %q", rejected.TaskType, "database_design")
	}
	if rt.Task("t1") != nil {
		t.Error("rejected task must not enter the task map")
	}
	if pending, running := rt.Counts(); pending != 0 || running != 0 {
		t.Errorf("Counts() = (%d, %d), want (0, 0)", pending, running)
	}
}

func TestRuntime_ExecutesAndRecordsResult(t *testing.T) {
	exec := &stubExecutor{
		types: []string{"analysis"},
		max:   2,
		execute: func(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error) {
			return map[string]any{"summary": "done"}, nil
		},
	}
	rt := NewRuntime("dev_team", exec, nil, nil)

	task := models.NewTask("t1", "analysis", "", models.PriorityHigh)
	if err := rt.Submit(task); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return rt.Task("t1").Status == models.TaskStatusCompleted
	})

	got := rt.Task("t1")
	if got.Result["summary"] != "done" {
		t.Errorf("Task.Result = %v, want summary=done", got.Result)
	}
	if got.Error != "" {
		t.Errorf("Task.Error = %q, want empty", got.Error)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("UpdatedAt should be refreshed on transition")
	}
}

func TestRuntime_FailureIsolatedAndRecorded(t *testing.T) {
	exec := &stubExecutor{
		types: []string{"analysis"},
		max:   1,
		execute: func(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error) {
			if task.ID == "bad" {
				return nil, errors.New("boom")
			}
			return map[string]any{"ok": true}, nil
		},
	}
	rt := NewRuntime("dev_team", exec, nil, nil)

	if err := rt.Submit(models.NewTask("bad", "analysis", "", models.PriorityLow)); err != nil {
		t.Fatalf("Submit(bad) error = %v", err)
	}
	if err := rt.Submit(models.NewTask("good", "analysis", "", models.PriorityLow)); err != nil {
		t.Fatalf("Submit(good) error = %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return rt.Task("good").Status == models.TaskStatusCompleted
	})

	bad := rt.Task("bad")
	if bad.Status != models.TaskStatusFailed {
		t.Errorf("bad task status = %q, want failed", bad.Status)
	}
	if bad.Error != "boom" {
		t.Errorf("bad task error = %q, want %q", bad.Error, "boom")
	}
}

func TestRuntime_PanicConvertedToFailure(t *testing.T) {
	exec := &stubExecutor{
		types: []string{"analysis"},
		max:   1,
		execute: func(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error) {
			panic("exploded")
		},
	}
	rt := NewRuntime("dev_team", exec, nil, nil)

	if err := rt.Submit(models.NewTask("t1", "analysis", "", models.PriorityLow)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return rt.Task("t1").Status == models.TaskStatusFailed
	})

	if got := rt.Task("t1").Error; got == "" {
		t.Error("panic should be recorded as the task error")
	}
}

func TestRuntime_ConcurrencyCeiling(t *testing.T) {
	const max = 3

	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	release := make(chan struct{})

	exec := &stubExecutor{
		types: []string{"slow"},
		max:   max,
		execute: func(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return nil, nil
		},
	}
	rt := NewRuntime("dev_team", exec, nil, nil)

	for i := 0; i < max+1; i++ {
		task := models.NewTask(string(rune('a'+i)), "slow", "", models.PriorityMedium)
		if err := rt.Submit(task); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	waitFor(t, time.Second, func() bool {
		_, running := rt.Counts()
		return running == max
	})

	if pending, _ := rt.Counts(); pending != 1 {
		t.Errorf("pending = %d, want 1 task waiting for capacity", pending)
	}

	close(release)

	waitFor(t, time.Second, func() bool {
		pending, running := rt.Counts()
		return pending == 0 && running == 0
	})

	if got := peak.Load(); got > max {
		t.Errorf("observed %d concurrent tasks, ceiling is %d", got, max)
	}
	for _, task := range rt.Tasks() {
		if task.Status != models.TaskStatusCompleted {
			t.Errorf("task %s status = %q, want completed", task.ID, task.Status)
		}
	}
}

func TestRuntime_TerminalStateIsFinal(t *testing.T) {
	exec := &stubExecutor{types: []string{"analysis"}, max: 1}
	rt := NewRuntime("dev_team", exec, nil, nil)

	task := models.NewTask("t1", "analysis", "", models.PriorityHigh)
	if err := rt.Submit(task); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return rt.Task("t1").Status == models.TaskStatusCompleted
	})

	// A second terminal transition attempt must not overwrite the state.
	rt.finish(task, nil, errors.New("late failure"), 0)

	got := rt.Task("t1")
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status after duplicate finish = %q, want completed", got.Status)
	}
	if got.Error != "" {
		t.Errorf("error after duplicate finish = %q, want empty", got.Error)
	}
}

func TestRuntime_ResubmitInProgressRejected(t *testing.T) {
	release := make(chan struct{})
	exec := &stubExecutor{
		types: []string{"slow"},
		max:   1,
		execute: func(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error) {
			<-release
			return nil, nil
		},
	}
	rt := NewRuntime("dev_team", exec, nil, nil)

	if err := rt.Submit(models.NewTask("t1", "slow", "", models.PriorityHigh)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return rt.Task("t1").Status == models.TaskStatusInProgress
	})

	// The id is in flight; a second submission must not reset its state
	// or enqueue a duplicate.
	if err := rt.Submit(models.NewTask("t1", "slow", "", models.PriorityHigh)); err == nil {
		t.Error("Submit() of an in_progress id should fail")
	}
	if got := rt.Task("t1").Status; got != models.TaskStatusInProgress {
		t.Errorf("status after rejected resubmission = %q, want in_progress", got)
	}
	if pending, running := rt.Counts(); pending != 0 || running != 1 {
		t.Errorf("Counts() = (%d, %d), want (0, 1)", pending, running)
	}

	close(release)
	waitFor(t, time.Second, func() bool {
		return rt.Task("t1").Status == models.TaskStatusCompleted
	})

	// A terminal id may be resubmitted and runs again.
	if err := rt.Submit(models.NewTask("t1", "slow", "", models.PriorityHigh)); err != nil {
		t.Fatalf("Submit() after completion error = %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return rt.Task("t1").Status == models.TaskStatusCompleted
	})
}

func TestRuntime_ReceiveTaskAssignment(t *testing.T) {
	exec := &stubExecutor{types: []string{"ui_design"}, max: 1}
	rt := NewRuntime("dev_team", exec, nil, nil)
	rt.Start(context.Background())
	defer rt.Stop()

	task := models.NewTask("req-1_ui_design", "ui_design", "", models.PriorityHigh)
	msg := models.NewMessage("pm", "dev_team", models.MessageTypeTaskAssignment, task)

	if !rt.Deliver(msg) {
		t.Fatal("Deliver() = false, want accepted")
	}

	waitFor(t, time.Second, func() bool {
		got := rt.Task("req-1_ui_design")
		return got != nil && got.Status == models.TaskStatusCompleted
	})

	if got := rt.Task("req-1_ui_design").AssignedTo; got != "dev_team" {
		t.Errorf("AssignedTo = %q, want %q", got, "dev_team")
	}
}

func TestRuntime_ReceiveMessageDispatch(t *testing.T) {
	tests := []struct {
		name        string
		messageType models.MessageType
		wantHandled bool
	}{
		{"status_update goes to executor", models.MessageTypeStatusUpdate, true},
		{"request goes to executor", models.MessageTypeRequest, true},
		{"response is dropped", models.MessageTypeResponse, false},
		{"unknown type is dropped", models.MessageType("gossip"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &stubExecutor{types: []string{"analysis"}, max: 1}
			rt := NewRuntime("pm", exec, nil, nil)
			rt.Start(context.Background())
			defer rt.Stop()

			msg := models.NewMessage("dev_team", "pm", tt.messageType, map[string]any{"task_id": "t1"})
			if !rt.Deliver(msg) {
				t.Fatal("Deliver() = false, want accepted")
			}

			if tt.wantHandled {
				waitFor(t, time.Second, func() bool {
					return len(exec.handled()) == 1
				})
			} else {
				time.Sleep(50 * time.Millisecond)
				if n := len(exec.handled()); n != 0 {
					t.Errorf("executor handled %d messages, want 0", n)
				}
			}
		})
	}
}

func TestRuntime_SendWithoutRouterDoesNotPanic(t *testing.T) {
	exec := &stubExecutor{types: []string{"analysis"}, max: 1}
	rt := NewRuntime("pm", exec, nil, nil)

	// Must log and drop, never raise.
	rt.Send("dev_team", models.MessageTypeTaskAssignment, nil)
}

func TestRuntime_Idle(t *testing.T) {
	release := make(chan struct{})
	exec := &stubExecutor{
		types: []string{"slow"},
		max:   1,
		execute: func(ctx context.Context, task *models.Task, out Outbox) (map[string]any, error) {
			<-release
			return nil, nil
		},
	}
	rt := NewRuntime("dev_team", exec, nil, nil)

	if !rt.Idle() {
		t.Error("fresh runtime should be idle")
	}

	if err := rt.Submit(models.NewTask("t1", "slow", "", models.PriorityLow)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if rt.Idle() {
		t.Error("runtime with a running task should not be idle")
	}

	close(release)
	waitFor(t, time.Second, rt.Idle)
}
