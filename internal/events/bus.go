// internal/events/bus.go
package events

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Handler consumes one event. Handlers run on the publishing goroutine
// and must not block.
type Handler func(Event)

type subscription struct {
	kinds map[Kind]struct{} // nil matches every kind
	fn    Handler
}

// Bus fans events out to registered handlers. Subscriptions are keyed by
// uuid so holders can unsubscribe without identity games.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uuid.UUID]subscription)}
}

// Subscribe registers fn for the given kinds. No kinds means all kinds.
// The returned id is the handle for Unsubscribe.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) uuid.UUID {
	sub := subscription{fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	id := uuid.New()
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return id
}

// Unsubscribe removes the handler registered under id.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish delivers evt to every matching handler. The subscriber map is
// snapshotted first so handlers may subscribe or unsubscribe freely, and
// a panicking handler is logged without stalling the publisher.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[evt.Kind]; !ok {
				continue
			}
		}
		matched = append(matched, sub.fn)
	}
	b.mu.RUnlock()

	for _, fn := range matched {
		invoke(fn, evt)
	}
}

func invoke(fn Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: handler panic on %s: %v", evt.Kind, r)
		}
	}()
	fn(evt)
}
