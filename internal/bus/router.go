// Package bus provides the in-process message router that delivers
// agent-to-agent envelopes between named runtimes.
package bus

import (
	"log"
	"sync"

	"github.com/orchid-dev/orchid/internal/events"
	"github.com/orchid-dev/orchid/pkg/models"
)

// Inbox is implemented by agent runtimes that can receive envelopes.
// Deliver must not block: it returns false when the runtime's mailbox
// is full and the envelope was not accepted.
type Inbox interface {
	Name() string
	Deliver(msg *models.Message) bool
}

// Router maintains the mapping from agent name to runtime and delivers
// envelopes. An unresolvable target is logged and dropped, never an
// error: agents may legitimately not exist yet.
type Router struct {
	// agents maps logical agent names to their inboxes.
	agents map[string]Inbox
	// emitter receives message_routed and message_dropped events.
	emitter *events.Emitter
	// mu protects the agents map.
	mu sync.RWMutex
}

// NewRouter creates a Router emitting observability events to emitter.
// A nil emitter disables event emission.
func NewRouter(emitter *events.Emitter) *Router {
	return &Router{
		agents:  make(map[string]Inbox),
		emitter: emitter,
	}
}

// Register associates a name with an inbox. Re-registration overwrites.
func (r *Router) Register(name string, in Inbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = in
}

// Unregister removes an agent from the routing table.
func (r *Router) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

// Names returns the registered agent names.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Route delivers an envelope to its target agent. Delivery is a
// non-blocking hand-off into the target's mailbox so a slow receiver
// cannot block the sender. The broadcast pseudo-address fans out to
// every registered agent except the sender.
func (r *Router) Route(msg *models.Message) {
	if msg == nil {
		return
	}

	if msg.ToAgent == models.BroadcastAgent {
		r.broadcast(msg)
		return
	}

	r.mu.RLock()
	in, ok := r.agents[msg.ToAgent]
	r.mu.RUnlock()

	if !ok {
		r.drop(msg, "no agent registered under target name")
		return
	}

	r.deliver(in, msg)
}

// broadcast delivers a copy of the envelope to every registered agent
// except the sender.
func (r *Router) broadcast(msg *models.Message) {
	r.mu.RLock()
	targets := make([]Inbox, 0, len(r.agents))
	for name, in := range r.agents {
		if name == msg.FromAgent {
			continue
		}
		targets = append(targets, in)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		r.drop(msg, "broadcast with no registered agents")
		return
	}

	for _, in := range targets {
		copied := *msg
		copied.ToAgent = in.Name()
		copied.Payload = copyPayload(msg.Payload)
		r.deliver(in, &copied)
	}
}

// copyPayload gives each broadcast receiver its own top-level map so a
// receiver mutating the payload cannot affect its siblings. Non-map
// payloads are shared as-is.
func copyPayload(payload any) any {
	m, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

func (r *Router) deliver(in Inbox, msg *models.Message) {
	if !in.Deliver(msg) {
		r.drop(msg, "target mailbox full")
		return
	}

	r.emitter.Emit(events.Event{
		Type:        events.MessageRouted,
		FromAgent:   msg.FromAgent,
		ToAgent:     msg.ToAgent,
		MessageType: msg.Type,
	})
}

func (r *Router) drop(msg *models.Message, reason string) {
	log.Printf("[router] WARNING: dropping message %s from=%s to=%s type=%s: %s",
		msg.MessageID, msg.FromAgent, msg.ToAgent, msg.Type, reason)

	r.emitter.Emit(events.Event{
		Type:        events.MessageDropped,
		FromAgent:   msg.FromAgent,
		ToAgent:     msg.ToAgent,
		MessageType: msg.Type,
		Message:     reason,
	})
}
