package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// resolveInSandbox resolves path relative to sandboxDir (unless already
// absolute) and requires the result to be a string-prefix descendant of
// the resolved sandbox (spec.md §4.4). The check is a string-prefix
// comparison taken on a path-separator boundary, so a sibling directory
// whose name merely starts with the sandbox's name does not match.
func resolveInSandbox(sandboxDir, path string) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = path
	} else {
		resolved = filepath.Join(sandboxDir, path)
	}

	if abs, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = abs
	} else {
		// The path may not exist yet (e.g. a write target) — fall back to
		// a lexical clean instead of failing the resolution outright.
		resolved = filepath.Clean(resolved)
	}

	sandboxResolved := sandboxDir
	if abs, err := filepath.EvalSymlinks(sandboxDir); err == nil {
		sandboxResolved = abs
	}

	if resolved != sandboxResolved && !strings.HasPrefix(resolved, sandboxResolved+string(filepath.Separator)) {
		return "", &permissionError{reason: fmt.Sprintf("path %q escapes sandbox", path)}
	}
	return resolved, nil
}

func runFileRead(args map[string]any, sandboxDir string) (map[string]any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return map[string]any{"error": "missing path argument"}, nil
	}
	resolved, err := resolveInSandbox(sandboxDir, path)
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(resolved)
	if statErr != nil {
		return map[string]any{"error": statErr.Error()}, nil
	}
	if info.IsDir() {
		return map[string]any{"error": fmt.Sprintf("%s is not a file", path)}, nil
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}

	return map[string]any{
		"path":    path,
		"content": string(content),
		"size":    len(content),
	}, nil
}

func runFileWrite(args map[string]any, sandboxDir string) (map[string]any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return map[string]any{"error": "missing path argument"}, nil
	}
	content, _ := args["content"].(string)

	resolved, err := resolveInSandbox(sandboxDir, path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return map[string]any{"error": err.Error()}, nil
	}

	return map[string]any{
		"path":    path,
		"written": len(content),
	}, nil
}

func runFileList(args map[string]any, sandboxDir string) (map[string]any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolveInSandbox(sandboxDir, path)
	if err != nil {
		return nil, err
	}

	entries, readErr := os.ReadDir(resolved)
	if readErr != nil {
		return map[string]any{"error": readErr.Error()}, nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return map[string]any{
		"path":    path,
		"entries": names,
	}, nil
}
