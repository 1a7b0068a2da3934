package protocol

import "context"

// EchoAdapter is the testing-only dialect: no handshake, no tool calls, no
// completion signal. The Hub closes these agents by closing stdin after a
// short delay instead of waiting for a completion message (spec.md §4.6).
type EchoAdapter struct {
	sender Sender
}

func NewEchoAdapter(sender Sender) *EchoAdapter {
	return &EchoAdapter{sender: sender}
}

func (a *EchoAdapter) Initialize(ctx context.Context) error { return nil }

func (a *EchoAdapter) SendTask(ctx context.Context, task string) error {
	return a.sender.SendText(task)
}

func (a *EchoAdapter) IsToolCall(msg map[string]any) bool { return false }

func (a *EchoAdapter) ExtractToolCall(msg map[string]any) (string, string, map[string]any) {
	panic("protocol: echo adapter does not support tool calls")
}

func (a *EchoAdapter) SendToolResult(ctx context.Context, correlationID string, result map[string]any, ok bool) error {
	panic("protocol: echo adapter does not support tool calls")
}

func (a *EchoAdapter) IsCompletion(msg map[string]any) bool { return false }

func (a *EchoAdapter) ExtractText(msg map[string]any) string { return "" }
