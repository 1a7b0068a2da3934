package console

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/acphub/internal/event"
)

func TestSinkHandlesEveryPrintableKindWithoutPanicking(t *testing.T) {
	sink := Sink()
	events := []event.Event{
		event.AgentStdout("a1", "hello"),
		event.AgentStderr("a1", "oops"),
		event.ToolInvocation("a1", "shell/execute", map[string]any{"cmd": "ls"}, "c1"),
		event.ToolResult("a1", "shell/execute", true, map[string]any{"stdout": ""}, "c1"),
		event.ToolResult("a1", "shell/execute", false, map[string]any{"error": "denied"}, "c2"),
		event.HubStarted([]string{"a1"}, "run-1"),
		event.SystemNote("unrelated"),
	}
	for _, e := range events {
		assert.NotPanics(t, func() { sink(e) })
	}
}
