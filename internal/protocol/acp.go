package protocol

import "context"

// acpToolCallMethods are the known ACP method names that denote a tool call
// (spec.md §4.3), in addition to the params.tool fallback below.
var acpToolCallMethods = map[string]bool{
	"acp/toolCall":  true,
	"tools/call":    true,
	"tool/execute":  true,
	"shell/execute": true,
}

// ACPAdapter speaks the full JSON-RPC 2.0 ACP dialect.
type ACPAdapter struct {
	sender Sender
	ids    nextRequestID
}

func NewACPAdapter(sender Sender) *ACPAdapter {
	return &ACPAdapter{sender: sender}
}

func (a *ACPAdapter) Initialize(ctx context.Context) error {
	if err := a.sender.SendJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      a.ids.next(),
		"method":  "initialize",
		"params": map[string]any{
			"capabilities": map[string]any{},
			"clientInfo":   map[string]any{"name": "acphub", "version": "1"},
		},
	}); err != nil {
		return err
	}
	return a.sender.SendJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "initialized",
	})
}

func (a *ACPAdapter) SendTask(ctx context.Context, task string) error {
	return a.sender.SendJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      a.ids.next(),
		"method":  "acp/sendMessage",
		"params": map[string]any{
			"message": map[string]any{
				"role":    "user",
				"content": map[string]any{"type": "text", "text": task},
			},
		},
	})
}

func (a *ACPAdapter) IsToolCall(msg map[string]any) bool {
	if !hasID(msg) {
		return false
	}
	if method := getString(msg, "method"); acpToolCallMethods[method] {
		return true
	}
	params := getMap(msg, "params")
	if params != nil {
		if _, ok := params["tool"]; ok {
			return true
		}
	}
	return false
}

func (a *ACPAdapter) ExtractToolCall(msg map[string]any) (string, string, map[string]any) {
	correlationID := idAsString(msg)
	params := getMap(msg, "params")

	toolName := getString(params, "tool")
	if toolName == "" {
		toolName = getString(params, "name")
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

func (a *ACPAdapter) SendToolResult(ctx context.Context, correlationID string, result map[string]any, ok bool) error {
	if ok {
		return a.sender.SendJSON(map[string]any{
			"jsonrpc": "2.0",
			"id":      correlationID,
			"result":  result,
		})
	}
	msg := "tool failed"
	if errText := getString(result, "error"); errText != "" {
		msg = errText
	}
	return a.sender.SendJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      correlationID,
		"error": map[string]any{
			"code":    -32000,
			"message": msg,
		},
	})
}

func (a *ACPAdapter) IsCompletion(msg map[string]any) bool {
	result := getMap(msg, "result")
	if result != nil {
		message := getMap(result, "message")
		if getString(message, "role") == "assistant" {
			return true
		}
	}
	method := getString(msg, "method")
	return method == "acp/messageComplete" || method == "acp/done"
}

func (a *ACPAdapter) ExtractText(msg map[string]any) string {
	if text := extractMessageText(getMap(getMap(msg, "result"), "message")); text != "" {
		return text
	}
	return extractMessageText(getMap(getMap(msg, "params"), "message"))
}

// extractMessageText pulls text out of a {content: ...} message where
// content may be a string directly or an object carrying a "text" field.
func extractMessageText(message map[string]any) string {
	if message == nil {
		return ""
	}
	content, ok := message["content"]
	if !ok {
		return ""
	}
	switch c := content.(type) {
	case string:
		return c
	case map[string]any:
		return getString(c, "text")
	default:
		return ""
	}
}
