// Package journal implements the append-only JSONL journal sink
// (spec.md §6): one event per line, keys sorted, flushed immediately.
package journal

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

// Journal is an append-only JSONL writer. The file is opened for append;
// concurrent hubs writing to the same path is unsupported (spec.md §6).
type Journal struct {
	path string

	mu sync.Mutex
	fh *os.File
}

// New returns a Journal bound to path. The file is not opened until Open
// is called.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Open creates the journal's parent directory if needed and opens the file
// for append.
func (j *Journal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fh != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("journal: creating directory for %s: %w", j.path, err)
	}
	fh, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: opening %s: %w", j.path, err)
	}
	j.fh = fh
	return nil
}

// Close closes the underlying file. It is safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fh == nil {
		return nil
	}
	err := j.fh.Close()
	j.fh = nil
	return err
}

// Write serializes e as one JSON line with sorted keys and flushes
// immediately. Event's own MarshalJSON already produces a map with sorted
// Go map key order at encode time via encoding/json, which sorts
// map[string]any keys lexically.
func (j *Journal) Write(e event.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fh == nil {
		return fmt.Errorf("journal: write before open")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')
	if _, err := j.fh.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return j.fh.Sync()
}

// WriteSystemNote is a convenience for journaling an ad-hoc note outside
// the normal bus flow.
func (j *Journal) WriteSystemNote(text string) error {
	return j.Write(event.SystemNote(text))
}

// Sink returns a bus.Handler that writes every event it receives to j,
// logging and swallowing write errors so a journal failure never aborts
// delivery to other subscribers (spec.md §7: bus-handler errors are
// isolated).
func Sink(j *Journal) bus.Handler {
	return func(e event.Event) {
		if err := j.Write(e); err != nil {
			// The bus already isolates handler panics; a returned error
			// here would otherwise be silently dropped, so at least log it.
			log.Printf("journal: %v", err)
		}
	}
}
