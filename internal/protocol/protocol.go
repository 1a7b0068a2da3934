// Package protocol implements the dialect-specific translators between the
// hub's internal task/tool-call/completion vocabulary and each agent's wire
// format (spec.md §4.3). Modeled as a capability interface, not
// inheritance, with concrete adapters registered in a protocol->factory
// table keyed by string (spec.md §9).
package protocol

import (
	"context"
	"fmt"
)

// Sender is the narrow slice of agentproc.ManagedAgent an Adapter needs:
// writing framed messages to the child's stdin.
type Sender interface {
	SendJSON(obj any) error
	SendText(s string) error
}

// Adapter is the capability set every protocol dialect implements
// (spec.md §4.3).
type Adapter interface {
	// Initialize performs any handshake the dialect requires. It does not
	// await a response synchronously — the response, if any, arrives as a
	// normal agent.jsonrpc event.
	Initialize(ctx context.Context) error

	// SendTask submits a task prompt to the agent.
	SendTask(ctx context.Context, task string) error

	// IsToolCall reports whether an inbound message is a tool-call request.
	IsToolCall(msg map[string]any) bool

	// ExtractToolCall returns the correlation id, tool name, and arguments
	// of a tool-call message. Only valid when IsToolCall(msg) is true.
	ExtractToolCall(msg map[string]any) (correlationID, toolName string, args map[string]any)

	// SendToolResult encodes and sends the tool runner's result back to
	// the agent, keyed by correlation id.
	SendToolResult(ctx context.Context, correlationID string, result map[string]any, ok bool) error

	// IsCompletion reports whether an inbound message signals the agent is
	// done producing output for the current task.
	IsCompletion(msg map[string]any) bool

	// ExtractText returns the agent's human-readable text from a message,
	// or "" if the message carries none.
	ExtractText(msg map[string]any) string
}

// Factory constructs an Adapter bound to sender.
type Factory func(sender Sender) Adapter

var factories = map[string]Factory{
	"acp":              func(s Sender) Adapter { return NewACPAdapter(s) },
	"codex_app_server": func(s Sender) Adapter { return NewCodexAdapter(s) },
	"echo":             func(s Sender) Adapter { return NewEchoAdapter(s) },
}

// New constructs the Adapter registered for protocolName.
func New(protocolName string, sender Sender) (Adapter, error) {
	factory, ok := factories[protocolName]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown protocol %q", protocolName)
	}
	return factory(sender), nil
}

// nextRequestID is a small monotone counter shared by the JSON-RPC-shaped
// adapters; request ids are per-adapter and start at 1 (spec.md §4.3).
type nextRequestID struct {
	n int
}

func (c *nextRequestID) next() int {
	c.n++
	return c.n
}
