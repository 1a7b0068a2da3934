// Package hub implements the central orchestrator (spec.md §4.6): spawn
// agents, run each protocol's handshake, submit one task through the
// router, monitor agent output for tool calls and completion, and shut
// everything down. Grounded directly on the original implementation's
// Hub.run_task in hub.py, translated into Go's idiom of an explicit
// lifecycle object plus context-bounded blocking calls instead of asyncio
// tasks.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/acphub/internal/advisor"
	"github.com/steveyegge/acphub/internal/agentproc"
	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/config"
	"github.com/steveyegge/acphub/internal/console"
	"github.com/steveyegge/acphub/internal/event"
	"github.com/steveyegge/acphub/internal/fswatch"
	"github.com/steveyegge/acphub/internal/journal"
	"github.com/steveyegge/acphub/internal/protocol"
	"github.com/steveyegge/acphub/internal/router"
	"github.com/steveyegge/acphub/internal/tools"
)

// defaultShellTimeout bounds one shell/execute call. HubConfig has no
// setting for it, so every run uses this value.
const defaultShellTimeout = 30 * time.Second

// echoStdinDelay is how long the monitor loop waits before closing stdin
// on echo agents, giving them time to read the task first (spec.md §4.6).
const echoStdinDelay = 500 * time.Millisecond

// defaultMonitorTimeout bounds how long run_task waits for every agent to
// signal completion before giving up (spec.md §4.6).
const defaultMonitorTimeout = 120 * time.Second

// Hub is the orchestrator described in spec.md §3 and §4.6.
type Hub struct {
	cfg     config.HubConfig
	bus     *bus.Bus
	journal *journal.Journal
	tools   *tools.Runner
	advisor *advisor.Advisor

	agents   map[string]*agentproc.ManagedAgent
	adapters map[string]protocol.Adapter
	order    []string
	router   *router.Router
	watcher  *fswatch.Watcher
}

// New constructs a Hub from a validated config. Nothing is spawned yet.
func New(cfg *config.HubConfig) *Hub {
	b := bus.New()
	shellTimeout := defaultShellTimeout

	return &Hub{
		cfg:     *cfg,
		bus:     b,
		journal: journal.New(cfg.JournalPath),
		tools: tools.New(b, tools.Config{
			ShellAllowlist:      cfg.ShellAllowlist,
			ShellTimeout:        shellTimeout,
			RequireToolApproval: cfg.RequireToolApproval,
		}),
		advisor:  advisor.New(),
		agents:   make(map[string]*agentproc.ManagedAgent),
		adapters: make(map[string]protocol.Adapter),
	}
}

// Bus exposes the hub's event bus so a caller can attach extra observers
// (the journal and console sinks are wired automatically by RunTask).
func (h *Hub) Bus() *bus.Bus { return h.bus }

// Tools exposes the tool runner so an external approval UI can call
// Approve on a pending tool.approval_requested correlation id.
func (h *Hub) Tools() *tools.Runner { return h.tools }

// RunTask is the complete end-to-end loop spec.md §4.6 describes: spawn,
// initialize, submit one task, monitor for tool calls and completion,
// shut down. Returns a process-style exit code: 0 success, 1 hub error,
// 130 when ctx was cancelled (interrupted). Configuration errors never
// reach RunTask; the CLI maps those to exit code 2.
func (h *Hub) RunTask(ctx context.Context, task, onlyAgentID, routeMode string) int {
	// Each call is one complete spawn/initialize/submit/monitor/shutdown
	// cycle (spec.md §4.6) — reset per-run state so a caller that invokes
	// RunTask more than once (e.g. the REPL loop) doesn't accumulate
	// duplicate agent ids from a prior run into this one's router.
	h.agents = make(map[string]*agentproc.ManagedAgent)
	h.adapters = make(map[string]protocol.Adapter)
	h.order = nil
	h.router = nil

	if err := h.journal.Open(); err != nil {
		log.Printf("hub: journal open failed: %v", err)
		return 1
	}
	unsubJournal := h.bus.Subscribe(journal.Sink(h.journal), "")
	defer unsubJournal()
	unsubConsole := h.bus.Subscribe(console.Sink(), "")
	defer unsubConsole()

	if w, err := fswatch.Start(h.bus, h.cfg.WatchPaths); err != nil {
		log.Printf("hub: filesystem watch disabled: %v", err)
	} else {
		h.watcher = w
	}

	defer func() {
		if h.watcher != nil {
			if err := h.watcher.Stop(); err != nil {
				log.Printf("hub: stopping filesystem watch: %v", err)
			}
			h.watcher = nil
		}
		h.shutdownAgents(ctx)
		if err := h.journal.Close(); err != nil {
			log.Printf("hub: journal close failed: %v", err)
		}
	}()

	if err := h.spawnAgents(onlyAgentID); err != nil {
		log.Printf("hub: %v", err)
		return 1
	}

	runID := uuid.NewString()
	h.bus.Publish(event.HubStarted(h.order, runID))

	h.initializeAgents(ctx)

	mode := router.Mode(routeMode)
	lookup := func(id string) router.TaskSender { return h.adapters[id] }
	r, err := router.New(h.bus, mode, h.order, lookup)
	if err != nil {
		log.Printf("hub: router: %v", err)
		return 1
	}
	h.router = r

	h.bus.Publish(event.TaskSubmitted(task, routeMode))
	if err := h.router.SendTask(ctx, task, onlyAgentID); err != nil {
		log.Printf("hub: send task: %v", err)
		return 1
	}

	h.monitorAgents(ctx, defaultMonitorTimeout)

	h.bus.Publish(event.TaskCompleted(task))
	h.bus.Publish(event.HubStopped())
	if errors.Is(ctx.Err(), context.Canceled) {
		return 130
	}
	return 0
}

func (h *Hub) spawnAgents(onlyAgentID string) error {
	specs := h.cfg.Agents
	if onlyAgentID != "" {
		filtered := specs[:0:0]
		for _, s := range specs {
			if s.ID == onlyAgentID {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("no agent with id=%q in config", onlyAgentID)
		}
		specs = filtered
	}

	for _, spec := range specs {
		proc, err := agentproc.Spawn(h.bus, agentproc.Spec{
			ID:      spec.ID,
			Command: spec.Command,
			Dir:     spec.Sandbox,
			Env:     spec.Env,
		})
		if err != nil {
			return fmt.Errorf("spawning agent %s: %w", spec.ID, err)
		}
		adapter, err := protocol.New(spec.Protocol, proc)
		if err != nil {
			return fmt.Errorf("agent %s: %w", spec.ID, err)
		}

		h.agents[spec.ID] = proc
		h.adapters[spec.ID] = adapter
		h.order = append(h.order, spec.ID)
	}
	return nil
}

func (h *Hub) initializeAgents(ctx context.Context) {
	for id, adapter := range h.adapters {
		if err := adapter.Initialize(ctx); err != nil {
			log.Printf("hub: initialization failed for agent %s, continuing: %v", id, err)
		}
	}
}

// monitorAgents watches agent.jsonrpc and agent.exited events until every
// spawned agent has signaled completion or timeout elapses, returning
// whether completion was reached. Tool calls are dispatched to the tool
// runner and their results sent back through the owning adapter; in
// moderator mode, the moderator's non-tool-call text (completion text
// included) is forwarded through the router (after an advisor
// loop-detection check) instead of printed as final output.
func (h *Hub) monitorAgents(ctx context.Context, timeout time.Duration) bool {
	done := make(chan struct{})
	var closeOnce bool
	completed := make(map[string]bool)
	var moderatorHistory []string

	handle := func(e event.Event) {
		switch e.Kind {
		case event.KindAgentJSONRPC:
			h.handleAgentMessage(ctx, e, completed, done, &closeOnce, &moderatorHistory)
		case event.KindAgentExited:
			h.markCompleted(e.AgentID, completed, done, &closeOnce)
		}
	}

	unsub := h.bus.Subscribe(handle, "")
	defer unsub()

	time.Sleep(echoStdinDelay)
	for id, adapter := range h.adapters {
		if _, ok := adapter.(*protocol.EchoAdapter); ok {
			if err := h.agents[id].CloseStdin(); err != nil {
				log.Printf("hub: closing stdin for echo agent %s: %v", id, err)
			}
		}
	}

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.Printf("hub: monitoring timed out after %s", timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// handleAgentMessage runs on the bus's own delivery goroutine (it is called
// synchronously from Publish's fan-out), so it must never itself call
// h.bus.Publish: that would re-enter the bus's non-reentrant publish lock on
// the same goroutine and deadlock the whole hub. Both branches that need to
// publish again — tool execution and moderator forwarding, each of which
// ends in a nested Publish several calls down (Runner.Execute,
// Router.ForwardOutput) — are therefore handed to a new goroutine, which
// publishes against a bus that, by the time it runs, is no longer held by
// this handler.
func (h *Hub) handleAgentMessage(ctx context.Context, e event.Event, completed map[string]bool, done chan struct{}, closeOnce *bool, moderatorHistory *[]string) {
	adapter, ok := h.adapters[e.AgentID]
	if !ok {
		return
	}
	msg, _ := e.Payload["message"].(map[string]any)

	if adapter.IsToolCall(msg) {
		corrID, toolName, args := adapter.ExtractToolCall(msg)
		agentProc := h.agents[e.AgentID]
		agentID, sandboxDir := e.AgentID, agentProc.Spec.Dir
		go func() {
			result := h.tools.Execute(ctx, agentID, toolName, args, corrID, sandboxDir)
			ok := result["error"] == nil
			if err := adapter.SendToolResult(ctx, corrID, result, ok); err != nil {
				log.Printf("hub: sending tool result to %s: %v", agentID, err)
			}
		}()
		return
	}

	// Only the moderator (the first agent in configured order) has its text
	// forwarded in moderator mode.
	fromModerator := h.router != nil && h.router.Mode() == router.ModeModerator &&
		len(h.order) > 0 && e.AgentID == h.order[0]

	if adapter.IsCompletion(msg) {
		if text := adapter.ExtractText(msg); text != "" && !fromModerator {
			fmt.Printf("\n[%s:result] %s\n", e.AgentID, text)
		}
		h.markCompleted(e.AgentID, completed, done, closeOnce)
		if !fromModerator {
			return
		}
	}

	if fromModerator {
		text := adapter.ExtractText(msg)
		if text == "" {
			return
		}
		*moderatorHistory = append(*moderatorHistory, text)
		// Snapshot before handing off: moderatorHistory may be appended to
		// again by the next handled message before this goroutine runs.
		history := append([]string(nil), *moderatorHistory...)
		agentID := e.AgentID
		go func() {
			verdict := h.advisor.Check(ctx, history)
			if verdict.Stuck {
				h.bus.Publish(event.SystemNote(fmt.Sprintf("moderator %s looks stuck (%.2f confidence): %s", agentID, verdict.Confidence, verdict.Reasoning)))
				return
			}
			h.router.ForwardOutput(ctx, agentID, text)
		}()
	}
}

func (h *Hub) markCompleted(agentID string, completed map[string]bool, done chan struct{}, closeOnce *bool) {
	if agentID == "" || completed[agentID] {
		return
	}
	completed[agentID] = true
	if len(completed) >= len(h.agents) && !*closeOnce {
		*closeOnce = true
		close(done)
	}
}

func (h *Hub) shutdownAgents(ctx context.Context) {
	for id, proc := range h.agents {
		if err := proc.Terminate(ctx); err != nil {
			log.Printf("hub: failed to terminate agent %s: %v", id, err)
		}
	}
}
