// Package bus implements the event fan-out registry described in the hub's
// event bus component: ordered, sequential delivery with per-handler
// isolation and prefix filtering.
package bus

import (
	"log"
	"strings"
	"sync"

	"github.com/steveyegge/acphub/internal/event"
)

// Handler receives a published event. A handler that panics is recovered,
// logged, and skipped — it never aborts delivery to the remaining handlers.
type Handler func(event.Event)

// Unsubscribe removes a previously registered handler. It is idempotent.
type Unsubscribe func()

type subscription struct {
	id      uint64
	handler Handler
	prefix  string // empty means no filter
}

// Bus fans events out to subscribers sequentially, in registration order,
// serializing delivery so no two publishes interleave within a single
// event's fan-out (spec §4.1, §5).
//
// Two locks, not one: publishMu serializes fan-out across producers so the
// §5 ordering guarantee holds; subsMu only ever guards the subscriber slice
// itself and is never held while a handler runs. That split is what lets a
// handler call its own Unsubscribe from inside Publish without deadlocking
// on a non-reentrant mutex (spec §4.1 explicitly permits this).
type Bus struct {
	publishMu sync.Mutex
	subsMu    sync.Mutex
	subs      []*subscription
	nextID    uint64
}

// New returns an empty Bus ready for use.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers handler for delivery. When kindPrefix is non-empty,
// the handler only receives events whose Kind starts with that literal
// prefix. The returned Unsubscribe is safe to call more than once and safe
// to call from within a handler during Publish — it only affects events
// published after it returns.
func (b *Bus) Subscribe(handler Handler, kindPrefix string) Unsubscribe {
	b.subsMu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{id: id, handler: handler, prefix: kindPrefix}
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subsMu.Lock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			b.subsMu.Unlock()
		})
	}
}

// Publish delivers e sequentially, in registration order, to every
// currently-registered handler whose prefix matches. Publish holds the bus
// mutex for the full fan-out so that a concurrent Publish from another
// producer cannot interleave within this event's delivery (spec §4.1, §5).
// A handler that panics is logged and skipped; Publish never propagates a
// handler failure to its caller.
func (b *Bus) Publish(e event.Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	// Snapshot so subscribe/unsubscribe during delivery only affects
	// future publishes, not this one already in flight.
	b.subsMu.Lock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.subsMu.Unlock()

	for _, sub := range snapshot {
		if sub.prefix != "" && !strings.HasPrefix(string(e.Kind), sub.prefix) {
			continue
		}
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *subscription, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: handler panicked on %s: %v", e.Kind, r)
		}
	}()
	sub.handler(e)
}

// HandlerCount reports the number of currently registered handlers.
func (b *Bus) HandlerCount() int {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	return len(b.subs)
}
