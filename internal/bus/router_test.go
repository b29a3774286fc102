package bus

import (
	"testing"

	"github.com/orchid-dev/orchid/internal/events"
	"github.com/orchid-dev/orchid/pkg/models"
)

// fakeInbox records delivered envelopes and can simulate a full mailbox.
type fakeInbox struct {
	name     string
	full     bool
	received []*models.Message
}

func (f *fakeInbox) Name() string { return f.name }

func (f *fakeInbox) Deliver(msg *models.Message) bool {
	if f.full {
		return false
	}
	f.received = append(f.received, msg)
	return true
}

func drainEvents(e *events.Emitter) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-e.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRouter_RouteDelivers(t *testing.T) {
	emitter := events.NewEmitter(16)
	router := NewRouter(emitter)

	dev := &fakeInbox{name: "dev_team"}
	router.Register("dev_team", dev)

	msg := models.NewMessage("pm", "dev_team", models.MessageTypeTaskAssignment, nil)
	router.Route(msg)

	if len(dev.received) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(dev.received))
	}
	if dev.received[0].MessageID != msg.MessageID {
		t.Errorf("delivered message id = %q, want %q", dev.received[0].MessageID, msg.MessageID)
	}

	evs := drainEvents(emitter)
	if len(evs) != 1 || evs[0].Type != events.MessageRouted {
		t.Fatalf("events = %+v, want one message_routed", evs)
	}
	if evs[0].FromAgent != "pm" || evs[0].ToAgent != "dev_team" || evs[0].MessageType != models.MessageTypeTaskAssignment {
		t.Errorf("routed event = %+v, missing envelope fields", evs[0])
	}
}

func TestRouter_UnresolvableTargetDropsWithoutError(t *testing.T) {
	emitter := events.NewEmitter(16)
	router := NewRouter(emitter)

	dev := &fakeInbox{name: "dev_team"}
	router.Register("dev_team", dev)

	// Routing to a name that was never registered must be a no-op.
	router.Route(models.NewMessage("pm", "qa_team", models.MessageTypeStatusUpdate, nil))

	if len(dev.received) != 0 {
		t.Errorf("unrelated agent received %d messages, want 0", len(dev.received))
	}

	evs := drainEvents(emitter)
	if len(evs) != 1 || evs[0].Type != events.MessageDropped {
		t.Fatalf("events = %+v, want one message_dropped", evs)
	}
	if evs[0].ToAgent != "qa_team" {
		t.Errorf("dropped event target = %q, want %q", evs[0].ToAgent, "qa_team")
	}
}

func TestRouter_FullMailboxDrops(t *testing.T) {
	emitter := events.NewEmitter(16)
	router := NewRouter(emitter)

	router.Register("dev_team", &fakeInbox{name: "dev_team", full: true})
	router.Route(models.NewMessage("pm", "dev_team", models.MessageTypeRequest, nil))

	evs := drainEvents(emitter)
	if len(evs) != 1 || evs[0].Type != events.MessageDropped {
		t.Fatalf("events = %+v, want one message_dropped", evs)
	}
}

func TestRouter_ReRegistrationOverwrites(t *testing.T) {
	router := NewRouter(nil)

	first := &fakeInbox{name: "dev_team"}
	second := &fakeInbox{name: "dev_team"}
	router.Register("dev_team", first)
	router.Register("dev_team", second)

	router.Route(models.NewMessage("pm", "dev_team", models.MessageTypeRequest, nil))

	if len(first.received) != 0 {
		t.Errorf("stale inbox received %d messages, want 0", len(first.received))
	}
	if len(second.received) != 1 {
		t.Errorf("current inbox received %d messages, want 1", len(second.received))
	}
}

func TestRouter_BroadcastFansOutExceptSender(t *testing.T) {
	router := NewRouter(nil)

	pm := &fakeInbox{name: "pm"}
	dev := &fakeInbox{name: "dev_team"}
	qa := &fakeInbox{name: "qa_team"}
	router.Register("pm", pm)
	router.Register("dev_team", dev)
	router.Register("qa_team", qa)

	payload := map[string]any{"sprint_id": "sprint-1"}
	router.Route(models.NewMessage("pm", models.BroadcastAgent, models.MessageTypeRequest, payload))

	if len(pm.received) != 0 {
		t.Errorf("sender received %d broadcast messages, want 0", len(pm.received))
	}
	if len(dev.received) != 1 || len(qa.received) != 1 {
		t.Errorf("broadcast delivery = dev:%d qa:%d, want 1 each", len(dev.received), len(qa.received))
	}
	if got := dev.received[0].ToAgent; got != "dev_team" {
		t.Errorf("broadcast copy ToAgent = %q, want %q", got, "dev_team")
	}
}

func TestRouter_BroadcastPayloadsAreIndependent(t *testing.T) {
	router := NewRouter(nil)

	dev := &fakeInbox{name: "dev_team"}
	qa := &fakeInbox{name: "qa_team"}
	router.Register("dev_team", dev)
	router.Register("qa_team", qa)

	payload := map[string]any{"sprint_id": "sprint-1"}
	router.Route(models.NewMessage("pm", models.BroadcastAgent, models.MessageTypeRequest, payload))

	if len(dev.received) != 1 || len(qa.received) != 1 {
		t.Fatalf("broadcast delivery = dev:%d qa:%d, want 1 each", len(dev.received), len(qa.received))
	}

	// One receiver mutating its copy must not leak into the other's.
	devPayload := dev.received[0].PayloadMap()
	devPayload["sprint_id"] = "tampered"

	if got := qa.received[0].PayloadMap()["sprint_id"]; got != "sprint-1" {
		t.Errorf("sibling payload sprint_id = %v, want sprint-1", got)
	}
	if got := payload["sprint_id"]; got != "sprint-1" {
		t.Errorf("sender payload sprint_id = %v, want sprint-1", got)
	}
}

func TestRouter_Unregister(t *testing.T) {
	router := NewRouter(nil)

	dev := &fakeInbox{name: "dev_team"}
	router.Register("dev_team", dev)
	router.Unregister("dev_team")

	router.Route(models.NewMessage("pm", "dev_team", models.MessageTypeRequest, nil))

	if len(dev.received) != 0 {
		t.Errorf("unregistered inbox received %d messages, want 0", len(dev.received))
	}
	if names := router.Names(); len(names) != 0 {
		t.Errorf("Names() = %v, want empty", names)
	}
}
