package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

func TestWriteProducesSortedKeyJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j := New(path)
	require.NoError(t, j.Open())
	defer j.Close()

	require.NoError(t, j.Write(event.AgentStdout("a1", "hello")))
	require.NoError(t, j.Write(event.SystemNote("note")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := splitLines(string(data))
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "agent.stdout", first["kind"])
	assert.Equal(t, "a1", first["agent_id"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	_, hasAgentID := second["agent_id"]
	assert.False(t, hasAgentID, "agent_id must be omitted when absent")
}

func TestSinkIsolatesWriteFailures(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "never-opened.jsonl"))
	handler := Sink(j)
	assert.NotPanics(t, func() { handler(event.SystemNote("x")) })
}

func TestSinkSubscribedOnBusReceivesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j := New(path)
	require.NoError(t, j.Open())
	defer j.Close()

	b := bus.New()
	b.Subscribe(Sink(j), "")
	b.Publish(event.SystemNote("via bus"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "via bus")
}

func splitLines(s string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if scanner.Text() != "" {
			lines = append(lines, scanner.Text())
		}
	}
	return lines
}
