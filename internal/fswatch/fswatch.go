// Package fswatch implements the filesystem change producer spec.md §1
// names as an external collaborator and leaves unspecified. This module
// gives it a concrete implementation using fsnotify instead of polling,
// publishing fs.changed per spec.md §6's event taxonomy
// (SPEC_FULL.md's Filesystem watch producer supplement).
package fswatch

import (
	"log"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

// Watcher publishes fs.changed events for a fixed set of watch paths.
type Watcher struct {
	bus     *bus.Bus
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Start begins watching paths, publishing fs.changed events to b until
// Stop is called. Paths that fail to register a watch are logged and
// skipped — a missing watch path is not fatal to the run.
func Start(b *bus.Bus, paths []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			log.Printf("fswatch: cannot watch %s: %v", p, err)
		}
	}

	w := &Watcher{bus: b, watcher: fsw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if change := classify(ev.Op); change != "" {
				w.bus.Publish(event.FSChanged(ev.Name, change))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("fswatch: %v", err)
		}
	}
}

func classify(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "created"
	case op&fsnotify.Write != 0:
		return "modified"
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return "deleted"
	default:
		return ""
	}
}

// Stop closes the underlying watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
