package protocol

import "context"

// codexToolCallMethods are Codex app-server's tool-call method names
// (spec.md §4.3) — notably without the ACP dialect's params.tool fallback.
var codexToolCallMethods = map[string]bool{
	"tool/execute":     true,
	"shell/execute":    true,
	"approval/request": true,
}

// CodexAdapter speaks the Codex app-server dialect: identical message shape
// to ACP but without the "jsonrpc" envelope field.
type CodexAdapter struct {
	sender Sender
	ids    nextRequestID
}

func NewCodexAdapter(sender Sender) *CodexAdapter {
	return &CodexAdapter{sender: sender}
}

func (a *CodexAdapter) Initialize(ctx context.Context) error {
	return a.sender.SendJSON(map[string]any{
		"id":     a.ids.next(),
		"method": "initialize",
		"params": map[string]any{
			"capabilities": map[string]any{},
		},
	})
}

func (a *CodexAdapter) SendTask(ctx context.Context, task string) error {
	return a.sender.SendJSON(map[string]any{
		"id":     a.ids.next(),
		"method": "thread/create",
		"params": map[string]any{
			"message": task,
		},
	})
}

func (a *CodexAdapter) IsToolCall(msg map[string]any) bool {
	if !hasID(msg) {
		return false
	}
	return codexToolCallMethods[getString(msg, "method")]
}

func (a *CodexAdapter) ExtractToolCall(msg map[string]any) (string, string, map[string]any) {
	correlationID := idAsString(msg)
	params := getMap(msg, "params")

	// Codex's second fallback is "command", not "name" — different from
	// ACP, preserved from the original implementation (spec.md is silent
	// on this detail, so the original's behavior is authoritative).
	toolName := getString(params, "tool")
	if toolName == "" {
		toolName = getString(params, "command")
	}
	if toolName == "" {
		toolName = getString(msg, "method")
	}

	args := getMap(params, "arguments")
	if args == nil {
		args = getMap(params, "args")
	}
	if args == nil {
		args = map[string]any{}
	}

	return correlationID, toolName, args
}

func (a *CodexAdapter) SendToolResult(ctx context.Context, correlationID string, result map[string]any, ok bool) error {
	if ok {
		return a.sender.SendJSON(map[string]any{
			"id":     correlationID,
			"result": result,
		})
	}
	msg := "tool failed"
	if errText := getString(result, "error"); errText != "" {
		msg = errText
	}
	// Codex encodes failures with error code -1, distinct from ACP's
	// -32000 — neither dialect's code is contractually meaningful to the
	// agent, so the original's per-dialect choice is preserved as-is.
	return a.sender.SendJSON(map[string]any{
		"id": correlationID,
		"error": map[string]any{
			"code":    -1,
			"message": msg,
		},
	})
}

func (a *CodexAdapter) IsCompletion(msg map[string]any) bool {
	method := getString(msg, "method")
	if method == "thread/complete" || method == "turn/complete" {
		return true
	}
	// Any id-bearing response carrying a result counts as completion.
	// This can fire prematurely if the agent has multiple requests
	// in flight — preserved intentionally per spec.md §9 open question (c).
	if hasID(msg) {
		if _, ok := msg["result"]; ok {
			return true
		}
	}
	return false
}

func (a *CodexAdapter) ExtractText(msg map[string]any) string {
	result := getMap(msg, "result")
	if text := getString(result, "text"); text != "" {
		return text
	}
	if text := getString(result, "content"); text != "" {
		return text
	}
	params := getMap(msg, "params")
	if text := getString(params, "text"); text != "" {
		return text
	}
	return getString(params, "content")
}
