// Package config loads and validates the hub's run configuration: the
// AgentSpec and HubConfig data model from spec.md §3, parsed from a JSON
// file per spec.md §6. Config errors are reported through ConfigError so
// the CLI layer can map them to exit code 2 without string-sniffing
// (spec.md §6, §7).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigError marks a configuration failure. The CLI (cmd/acphub) maps
// this error kind to exit code 2.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// AgentSpec is the immutable, validated per-agent configuration (spec.md §3).
type AgentSpec struct {
	ID       string
	Agent    string // registry key
	Protocol string
	Command  []string
	Sandbox  string // absolute path under workspace_root
	Env      map[string]string
}

// HubConfig is the immutable, validated run configuration (spec.md §3).
type HubConfig struct {
	WorkspaceRoot       string
	JournalPath         string
	WatchPaths          []string
	Agents              []AgentSpec
	RequireToolApproval bool
	ShellAllowlist      []string // empty means shell execution is disabled
}

// rawConfig mirrors the on-disk JSON shape from spec.md §6.
type rawConfig struct {
	WorkspaceRoot       string          `json:"workspace_root"`
	JournalPath         string          `json:"journal_path"`
	WatchPaths          []string        `json:"watch_paths"`
	Agents              []rawAgentSpec  `json:"agents"`
	RequireToolApproval bool            `json:"require_tool_approval"`
	ShellAllowlist      []string        `json:"shell_allowlist"`
}

type rawAgentSpec struct {
	ID      string            `json:"id"`
	Agent   string            `json:"agent"`
	Env     map[string]string `json:"env"`
	Sandbox string            `json:"sandbox"`
}

// Load reads and validates a HubConfig from path, resolving each agent
// entry against reg.
func Load(path string, reg *Registry) (*HubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errf("config file not found: %s. Start from an example config and save it as acphub.json", path)
		}
		return nil, errf("reading config %s: %v", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errf("parsing config %s: %v", path, err)
	}

	if raw.WorkspaceRoot == "" {
		return nil, errf("missing required key: \"workspace_root\"")
	}
	workspaceRoot, err := filepath.Abs(raw.WorkspaceRoot)
	if err != nil {
		return nil, errf("resolving workspace_root: %v", err)
	}

	if raw.JournalPath == "" {
		return nil, errf("missing required key: \"journal_path\"")
	}

	if len(raw.WatchPaths) == 0 {
		return nil, errf("watch_paths must be a non-empty array of strings")
	}

	if len(raw.Agents) == 0 {
		return nil, errf("agents must be a non-empty array")
	}

	agents := make([]AgentSpec, 0, len(raw.Agents))
	seen := make(map[string]bool, len(raw.Agents))
	for idx, a := range raw.Agents {
		if a.ID == "" {
			return nil, errf("agents[%d].id: expected non-empty string", idx)
		}
		if seen[a.ID] {
			return nil, errf("duplicate agent id: %q", a.ID)
		}
		seen[a.ID] = true

		if a.Agent == "" {
			return nil, errf("agents[%d].agent: expected non-empty string", idx)
		}
		defn, err := reg.Resolve(a.Agent)
		if err != nil {
			return nil, fmt.Errorf("agents[%d].agent: %w", idx, err)
		}

		sandbox := filepath.Join(workspaceRoot, "workspaces", a.ID)
		if a.Sandbox != "" {
			abs, err := filepath.Abs(a.Sandbox)
			if err != nil {
				return nil, errf("agents[%d].sandbox: %v", idx, err)
			}
			if !isUnderRoot(abs, workspaceRoot) {
				return nil, errf("agents[%d].sandbox: must be under workspace_root (%s)", idx, workspaceRoot)
			}
			sandbox = abs
		}
		if err := os.MkdirAll(sandbox, 0o755); err != nil {
			return nil, errf("agents[%d].sandbox: creating %s: %v", idx, sandbox, err)
		}

		agents = append(agents, AgentSpec{
			ID:       a.ID,
			Agent:    a.Agent,
			Protocol: defn.Protocol,
			Command:  defn.CommandTemplate,
			Sandbox:  sandbox,
			Env:      a.Env,
		})
	}

	return &HubConfig{
		WorkspaceRoot:       workspaceRoot,
		JournalPath:         raw.JournalPath,
		WatchPaths:          raw.WatchPaths,
		Agents:              agents,
		RequireToolApproval: raw.RequireToolApproval,
		ShellAllowlist:      raw.ShellAllowlist,
	}, nil
}

// isUnderRoot reports whether path is root itself or a string-prefix
// descendant of root, joined on a path separator boundary.
func isUnderRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
