// Package console implements the human-readable progress sink: colorized
// stdout/stderr lines for agent output and tool activity, the Go rendition
// of the teacher's colored status printing in cmd/vc/status.go and
// cmd/vc/discover.go, grounded on the original hub's _console_sink in
// hub.py for which events to print and how.
package console

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

var (
	agentColor = color.New(color.FgCyan).SprintFunc()
	errColor   = color.New(color.FgRed).SprintFunc()
	toolColor  = color.New(color.FgYellow).SprintFunc()
	okColor    = color.New(color.FgGreen).SprintFunc()
	failColor  = color.New(color.FgRed).SprintFunc()
)

// Sink returns a bus.Handler that prints agent.stdout, agent.stderr,
// tool.invocation, and tool.result events to the terminal, mirroring
// _console_sink in the original implementation. Every other event kind is
// ignored — journaling, not printing, is their job.
func Sink() bus.Handler {
	return func(e event.Event) {
		switch e.Kind {
		case event.KindAgentStdout:
			fmt.Printf("%s %v\n", agentColor(fmt.Sprintf("[%s]", e.AgentID)), e.Payload["text"])
		case event.KindAgentStderr:
			fmt.Fprintf(os.Stderr, "%s %v\n", errColor(fmt.Sprintf("[%s:err]", e.AgentID)), e.Payload["text"])
		case event.KindToolInvocation:
			fmt.Printf("%s %v → %v\n", toolColor("[tool]"), e.Payload["tool"], e.Payload["args"])
		case event.KindToolResult:
			ok, _ := e.Payload["ok"].(bool)
			mark := failColor("✗")
			if ok {
				mark = okColor("✓")
			}
			fmt.Printf("%s %s %v\n", toolColor("[tool]"), mark, e.Payload["tool"])
		}
	}
}
