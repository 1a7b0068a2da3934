package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

func TestInvocationPrecedesResult(t *testing.T) {
	b := bus.New()
	var kinds []event.Kind
	b.Subscribe(func(e event.Event) { kinds = append(kinds, e.Kind) }, "tool.")

	r := New(b, Config{ShellAllowlist: []string{"echo "}})
	r.Execute(context.Background(), "a1", "shell/execute", map[string]any{"command": "echo hi"}, "c1", t.TempDir())

	require.Len(t, kinds, 2)
	assert.Equal(t, event.KindToolInvocation, kinds[0])
	assert.Equal(t, event.KindToolResult, kinds[1])
}

func TestShellAllowlistAndDenylist(t *testing.T) {
	r := New(bus.New(), Config{ShellAllowlist: []string{"echo ", "rm "}})

	result := r.Execute(context.Background(), "a1", "shell/execute", map[string]any{"command": "echo hi"}, "c1", t.TempDir())
	assert.Contains(t, result["stdout"], "hi")
	assert.Nil(t, result["error"])

	result = r.Execute(context.Background(), "a1", "shell/execute", map[string]any{"command": "rm -rf /"}, "c2", t.TempDir())
	require.NotNil(t, result["error"])
	assert.Contains(t, result["error"], "denylist")
}

func TestShellDisabledWhenAllowlistEmpty(t *testing.T) {
	r := New(bus.New(), Config{})
	result := r.Execute(context.Background(), "a1", "shell/execute", map[string]any{"command": "echo hi"}, "c1", t.TempDir())
	require.NotNil(t, result["error"])
	assert.Contains(t, result["error"], "disabled")
}

func TestUnknownToolNeverShellsOut(t *testing.T) {
	r := New(bus.New(), Config{ShellAllowlist: []string{"anything"}})
	result := r.Execute(context.Background(), "a1", "not/a/real/tool", map[string]any{}, "c1", t.TempDir())
	require.NotNil(t, result["error"])
	assert.Contains(t, result["error"], "unknown tool")
}

func TestOkComputedFromErrorKeyPresence(t *testing.T) {
	b := bus.New()
	var ok bool
	b.Subscribe(func(e event.Event) {
		if e.Kind == event.KindToolResult {
			ok = e.Payload["ok"].(bool)
		}
	}, "")
	r := New(b, Config{})
	r.Execute(context.Background(), "a1", "files/read", map[string]any{"path": "missing.txt"}, "c1", t.TempDir())
	assert.False(t, ok)
}

func TestFileWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := New(bus.New(), Config{})

	res := r.Execute(context.Background(), "a1", "files/write", map[string]any{"path": "sub/x.txt", "content": "hello"}, "c1", dir)
	require.Nil(t, res["error"])
	assert.Equal(t, 5, res["written"])

	res = r.Execute(context.Background(), "a1", "files/read", map[string]any{"path": "sub/x.txt"}, "c2", dir)
	require.Nil(t, res["error"])
	assert.Equal(t, "hello", res["content"])
	assert.Equal(t, 5, res["size"])
}

func TestFileListIsSortedAndNonRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	r := New(bus.New(), Config{})
	res := r.Execute(context.Background(), "a1", "files/list", map[string]any{"path": "."}, "c1", dir)
	require.Nil(t, res["error"])
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, res["entries"])
}

func TestFilePathEscapeIsBlocked(t *testing.T) {
	dir := t.TempDir()
	r := New(bus.New(), Config{})

	res := r.Execute(context.Background(), "a1", "files/read", map[string]any{"path": "../../../etc/passwd"}, "c1", dir)
	require.NotNil(t, res["error"])
	assert.Contains(t, res["error"], "blocked")
}

func TestApprovalRequiredAutoApprovesAfterTimeout(t *testing.T) {
	r := New(bus.New(), Config{
		ShellAllowlist:      []string{"echo "},
		RequireToolApproval: true,
		ApprovalTimeout:     10 * time.Millisecond,
	})
	res := r.Execute(context.Background(), "a1", "shell/execute", map[string]any{"command": "echo hi"}, "c1", t.TempDir())
	assert.Contains(t, res["stdout"], "hi")
}

func TestApprovalRequiredHonorsExplicitDenial(t *testing.T) {
	r := New(bus.New(), Config{
		ShellAllowlist:      []string{"echo "},
		RequireToolApproval: true,
		ApprovalTimeout:     time.Second,
	})

	done := make(chan map[string]any, 1)
	go func() {
		done <- r.Execute(context.Background(), "a1", "shell/execute", map[string]any{"command": "echo hi"}, "c1", t.TempDir())
	}()

	// give Execute a moment to register the pending approval before denying
	time.Sleep(10 * time.Millisecond)
	r.Approve("c1", false)

	res := <-done
	require.NotNil(t, res["error"])
	assert.Contains(t, res["error"], "approval denied")
}
