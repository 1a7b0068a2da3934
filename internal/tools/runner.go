// Package tools implements the tool runner (spec.md §4.4): the fixed
// name->handler registry, sandbox scoping, shell allowlist/denylist policy,
// and the approval hook that resolves spec.md §9 open question (a).
package tools

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

// defaultApprovalTimeout is how long Execute waits for an external
// approval subscriber before auto-approving (SPEC_FULL.md's approval
// channel supplement).
const defaultApprovalTimeout = 5 * time.Second

// Config configures a Runner.
type Config struct {
	ShellAllowlist      []string
	ShellTimeout        time.Duration
	RequireToolApproval bool
	ApprovalTimeout      time.Duration // zero means defaultApprovalTimeout
}

// Runner is the tool runner (spec.md §3, §4.4). It executes tool calls
// sequentially — callers guarantee this is never entered concurrently for
// the same agent, and the runner's own mutex makes that true regardless.
type Runner struct {
	bus    *bus.Bus
	cfg    Config

	mu       sync.Mutex // serializes Execute
	pendingMu sync.Mutex
	pending  map[string]chan bool // correlation id -> approval decision
}

// New constructs a Runner publishing to b.
func New(b *bus.Bus, cfg Config) *Runner {
	if cfg.ApprovalTimeout == 0 {
		cfg.ApprovalTimeout = defaultApprovalTimeout
	}
	return &Runner{
		bus:     b,
		cfg:     cfg,
		pending: make(map[string]chan bool),
	}
}

// Execute runs one tool call end to end: publish invocation, resolve
// approval if required, dispatch to the fixed handler table inside
// sandboxDir, and publish the result (spec.md §4.4).
func (r *Runner) Execute(ctx context.Context, agentID, toolName string, args map[string]any, correlationID, sandboxDir string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bus.Publish(event.ToolInvocation(agentID, toolName, args, correlationID))

	if r.cfg.RequireToolApproval {
		if !r.awaitApproval(agentID, toolName, args, correlationID) {
			result := map[string]any{"error": "blocked: approval denied"}
			r.bus.Publish(event.ToolResult(agentID, toolName, false, result, correlationID))
			return result
		}
	}

	result := r.dispatch(ctx, toolName, args, sandboxDir)
	ok := result["error"] == nil
	r.bus.Publish(event.ToolResult(agentID, toolName, ok, result, correlationID))
	return result
}

// awaitApproval publishes tool.approval_requested and blocks until either
// an external subscriber calls Approve with this correlation id, or
// ApprovalTimeout elapses — at which point it logs and auto-approves, the
// same effective behavior as before this hook existed (spec.md §9).
func (r *Runner) awaitApproval(agentID, toolName string, args map[string]any, correlationID string) bool {
	ch := make(chan bool, 1)
	r.pendingMu.Lock()
	r.pending[correlationID] = ch
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, correlationID)
		r.pendingMu.Unlock()
	}()

	r.bus.Publish(event.ToolApprovalRequested(agentID, toolName, args, correlationID))

	select {
	case approved := <-ch:
		return approved
	case <-time.After(r.cfg.ApprovalTimeout):
		log.Printf("tools: approval for %s (%s) timed out after %s, auto-approving", toolName, correlationID, r.cfg.ApprovalTimeout)
		return true
	}
}

// Approve resolves a pending approval request. It is a no-op if
// correlationID has no pending request (already timed out or never
// required approval).
func (r *Runner) Approve(correlationID string, approved bool) {
	r.pendingMu.Lock()
	ch, ok := r.pending[correlationID]
	r.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- approved:
	default:
	}
}

func (r *Runner) dispatch(ctx context.Context, toolName string, args map[string]any, sandboxDir string) map[string]any {
	var (
		result map[string]any
		err    error
	)

	switch toolName {
	case "shell/execute", "shell":
		result, err = runShell(ctx, args, r.cfg.ShellAllowlist, sandboxDir, r.cfg.ShellTimeout)
	case "files/read":
		result, err = runFileRead(args, sandboxDir)
	case "files/write":
		result, err = runFileWrite(args, sandboxDir)
	case "files/list":
		result, err = runFileList(args, sandboxDir)
	default:
		names := []string{"shell/execute", "shell", "files/read", "files/write", "files/list"}
		sort.Strings(names)
		return map[string]any{"error": fmt.Sprintf("unknown tool: %s. Allowed: %v", toolName, names)}
	}

	if err != nil {
		if perm, ok := err.(*permissionError); ok {
			return map[string]any{"error": "blocked: " + perm.reason}
		}
		return map[string]any{"error": err.Error()}
	}
	return result
}
