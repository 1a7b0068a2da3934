// Package event defines the hub's immutable event record and its kind
// taxonomy. Payloads are dynamic at the wire boundary (a JSON object) and
// are held here as a string-keyed map tagged by Kind; one typed
// constructor per kind fixes each kind's payload fields, the same shape
// the teacher uses in its own events package.
package event

import (
	"encoding/json"
	"time"
)

// Kind is the dotted-string event taxonomy from the external interface.
type Kind string

const (
	KindAgentStarted Kind = "agent.started"
	KindAgentExited  Kind = "agent.exited"
	KindAgentStdout  Kind = "agent.stdout"
	KindAgentStderr  Kind = "agent.stderr"
	KindAgentJSONRPC Kind = "agent.jsonrpc"

	KindToolInvocation        Kind = "tool.invocation"
	KindToolResult            Kind = "tool.result"
	KindToolApprovalRequested Kind = "tool.approval_requested"

	KindFSChanged Kind = "fs.changed"

	KindHubStarted     Kind = "hub.started"
	KindHubStopped     Kind = "hub.stopped"
	KindTaskSubmitted  Kind = "task.submitted"
	KindTaskCompleted  Kind = "task.completed"
	KindRouterForward  Kind = "router.forwarded"
	KindSystemNote     Kind = "system.note"
)

// Event is an immutable record published on the bus. Payload carries the
// kind-specific fields; AgentID is empty for events with no agent source.
type Event struct {
	TS      float64
	Kind    Kind
	Payload map[string]any
	AgentID string
}

// New builds an Event with the current wall-clock time.
func New(kind Kind, agentID string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{TS: nowSeconds(), Kind: kind, Payload: payload, AgentID: agentID}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// MarshalJSON serializes the event with sorted keys and an omitted agent_id
// when absent, matching the journal's on-disk format.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"ts":      e.TS,
		"kind":    string(e.Kind),
		"payload": e.Payload,
	}
	if e.AgentID != "" {
		m["agent_id"] = e.AgentID
	}
	return json.Marshal(m)
}

// --- Typed constructors, one per kind, mirroring the teacher's per-kind
// constructor pattern in internal/events/constructors.go. ---

func AgentStarted(agentID string, command []string) Event {
	return New(KindAgentStarted, agentID, map[string]any{"command": command})
}

func AgentExited(agentID string, exitCode int) Event {
	return New(KindAgentExited, agentID, map[string]any{"exit_code": exitCode})
}

func AgentStdout(agentID, text string) Event {
	return New(KindAgentStdout, agentID, map[string]any{"text": text})
}

func AgentStderr(agentID, text string) Event {
	return New(KindAgentStderr, agentID, map[string]any{"text": text})
}

func AgentJSONRPC(agentID string, message map[string]any) Event {
	return New(KindAgentJSONRPC, agentID, map[string]any{"message": message})
}

func ToolInvocation(agentID, tool string, args map[string]any, correlationID string) Event {
	p := map[string]any{"tool": tool, "args": args}
	if correlationID != "" {
		p["correlation_id"] = correlationID
	}
	return New(KindToolInvocation, agentID, p)
}

func ToolResult(agentID, tool string, ok bool, result map[string]any, correlationID string) Event {
	p := map[string]any{"tool": tool, "ok": ok, "result": result}
	if correlationID != "" {
		p["correlation_id"] = correlationID
	}
	return New(KindToolResult, agentID, p)
}

func ToolApprovalRequested(agentID, tool string, args map[string]any, correlationID string) Event {
	return New(KindToolApprovalRequested, agentID, map[string]any{
		"tool": tool, "args": args, "correlation_id": correlationID,
	})
}

func FSChanged(path, change string) Event {
	return New(KindFSChanged, "", map[string]any{"path": path, "change": change})
}

func HubStarted(agents []string, runID string) Event {
	return New(KindHubStarted, "", map[string]any{"agents": agents, "run_id": runID})
}

func HubStopped() Event {
	return New(KindHubStopped, "", map[string]any{})
}

func TaskSubmitted(task, route string) Event {
	return New(KindTaskSubmitted, "", map[string]any{"task": task, "route": route})
}

func TaskCompleted(task string) Event {
	return New(KindTaskCompleted, "", map[string]any{"task": task})
}

func RouterForwarded(from, to, text string) Event {
	return New(KindRouterForward, "", map[string]any{"from": from, "to": to, "text": text})
}

func SystemNote(text string) Event {
	return New(KindSystemNote, "", map[string]any{"text": text})
}
