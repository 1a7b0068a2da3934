// Package router implements the multi-agent task delivery policies
// (spec.md §4.5): single, broadcast, round-robin, and moderator, with
// moderator forwarding bounded by a per-run forward count cap.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

// Mode is a router delivery policy.
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeBroadcast   Mode = "broadcast"
	ModeRoundRobin  Mode = "round-robin"
	ModeModerator   Mode = "moderator"
)

// maxForwards bounds moderator-mode forwarding per run (spec.md §4.5).
const maxForwards = 50

// TaskSender is the narrow view of a protocol.Adapter the router needs.
type TaskSender interface {
	SendTask(ctx context.Context, task string) error
}

// agentEntry pairs an agent id with its adapter, in configured order.
type agentEntry struct {
	id      string
	adapter TaskSender
}

// Router dispatches tasks to a fixed set of agents under one Mode
// (spec.md §3, §4.5).
type Router struct {
	bus    *bus.Bus
	mode   Mode
	agents []agentEntry

	mu            sync.Mutex
	rrCursor      int
	forwardCount  int
}

// New constructs a Router over agentIDs in configured order, each paired
// with its adapter via lookup.
func New(b *bus.Bus, mode Mode, order []string, lookup func(id string) TaskSender) (*Router, error) {
	agents := make([]agentEntry, 0, len(order))
	for _, id := range order {
		agents = append(agents, agentEntry{id: id, adapter: lookup(id)})
	}
	return &Router{bus: b, mode: mode, agents: agents}, nil
}

// Mode reports the router's configured delivery policy.
func (r *Router) Mode() Mode { return r.mode }

// SendTask delivers task according to the router's mode. agentID is only
// meaningful in single mode, where it selects the target; an empty value
// falls back to the first configured agent. An unknown mode is a fatal
// programmer error (spec.md §4.5).
func (r *Router) SendTask(ctx context.Context, task string, agentID string) error {
	switch r.mode {
	case ModeSingle:
		return r.sendSingle(ctx, task, agentID)
	case ModeBroadcast:
		return r.sendBroadcast(ctx, task)
	case ModeRoundRobin:
		return r.sendRoundRobin(ctx, task)
	case ModeModerator:
		return r.sendModerator(ctx, task)
	default:
		panic(fmt.Sprintf("router: unknown mode %q", r.mode))
	}
}

func (r *Router) sendSingle(ctx context.Context, task, agentID string) error {
	if len(r.agents) == 0 {
		return fmt.Errorf("router: no agents configured")
	}
	target := r.agents[0]
	if agentID != "" {
		found := false
		for _, a := range r.agents {
			if a.id == agentID {
				target = a
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("router: no agent with id=%q", agentID)
		}
	}
	return target.adapter.SendTask(ctx, task)
}

func (r *Router) sendBroadcast(ctx context.Context, task string) error {
	for _, a := range r.agents {
		if err := a.adapter.SendTask(ctx, task); err != nil {
			return fmt.Errorf("router: broadcast to %s: %w", a.id, err)
		}
	}
	return nil
}

func (r *Router) sendRoundRobin(ctx context.Context, task string) error {
	if len(r.agents) == 0 {
		return fmt.Errorf("router: no agents configured")
	}
	r.mu.Lock()
	idx := r.rrCursor % len(r.agents)
	r.rrCursor++
	r.mu.Unlock()

	return r.agents[idx].adapter.SendTask(ctx, task)
}

func (r *Router) sendModerator(ctx context.Context, task string) error {
	if len(r.agents) == 0 {
		return fmt.Errorf("router: no agents configured")
	}
	return r.agents[0].adapter.SendTask(ctx, task)
}

// ForwardOutput delivers text from the moderator (agents[0]) to every other
// agent as a fresh SendTask, prefixed with "[from <id>]: " (spec.md §4.5).
// It is a no-op outside moderator mode. Forwards beyond maxForwards are
// dropped with a logged warning. The single per-run counter increments
// once per recipient, not once per call.
func (r *Router) ForwardOutput(ctx context.Context, fromAgentID, text string) {
	if r.mode != ModeModerator {
		return
	}

	for _, a := range r.agents {
		if a.id == fromAgentID {
			continue
		}

		r.mu.Lock()
		if r.forwardCount >= maxForwards {
			r.mu.Unlock()
			log.Printf("router: forward to %s dropped, max_forwards=%d reached", a.id, maxForwards)
			continue
		}
		r.forwardCount++
		r.mu.Unlock()

		payload := fmt.Sprintf("[from %s]: %s", fromAgentID, text)
		if err := a.adapter.SendTask(ctx, payload); err != nil {
			log.Printf("router: forward to %s failed: %v", a.id, err)
			continue
		}

		truncated := text
		if len(truncated) > 200 {
			truncated = truncated[:200]
		}
		r.bus.Publish(event.RouterForwarded(fromAgentID, a.id, truncated))
	}
}
