package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, raw map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "acphub.json")
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"workspace_root": dir,
		"journal_path":    filepath.Join(dir, "journal.jsonl"),
		"watch_paths":     []string{dir},
		"agents": []map[string]any{
			{"id": "a1", "agent": "echo"},
		},
	})

	cfg, err := Load(path, NewRegistry())
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "echo", cfg.Agents[0].Agent)
	assert.Equal(t, "echo", cfg.Agents[0].Protocol)
	assert.DirExists(t, cfg.Agents[0].Sandbox)
}

func TestLoadRejectsUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"workspace_root": dir,
		"journal_path":    filepath.Join(dir, "journal.jsonl"),
		"watch_paths":     []string{dir},
		"agents": []map[string]any{
			{"id": "a1", "agent": "not-a-real-agent"},
		},
	})

	_, err := Load(path, NewRegistry())
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"workspace_root": dir,
		"journal_path":    filepath.Join(dir, "journal.jsonl"),
		"watch_paths":     []string{dir},
		"agents": []map[string]any{
			{"id": "a1", "agent": "echo"},
			{"id": "a1", "agent": "echo"},
		},
	})

	_, err := Load(path, NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent id")
}

func TestLoadRejectsSandboxOutsideWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"workspace_root": dir,
		"journal_path":    filepath.Join(dir, "journal.jsonl"),
		"watch_paths":     []string{dir},
		"agents": []map[string]any{
			{"id": "a1", "agent": "echo", "sandbox": outside},
		},
	})

	_, err := Load(path, NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be under workspace_root")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistryOverlayExtendsDefaults(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(overlayPath, []byte(`
agents:
  echo2:
    command: ["cat"]
    protocol: echo
`), 0o644))

	reg := NewRegistry()
	require.NoError(t, reg.LoadOverlay(overlayPath))

	defn, err := reg.Resolve("echo2")
	require.NoError(t, err)
	assert.Equal(t, "echo", defn.Protocol)

	// Defaults remain available alongside the overlay.
	_, err = reg.Resolve("codex")
	require.NoError(t, err)
}
