// Package authevent carries the "session is no longer valid" notification from the
// transport layer to the session store.
package authevent

import (
	"slices"
	"sync"
)

// Unauthorized is the name of the signal, kept for log fields and debug output.
const Unauthorized = "auth:unauthorized"

// Broadcaster fans out the unauthorized signal to every subscriber.
// The zero value is ready to use.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func()
}

// New returns an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers fn and returns a function that removes it again.
// The returned function may be called any number of times.
func (b *Broadcaster) Subscribe(fn func()) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners == nil {
		b.listeners = make(map[int]func())
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Emit calls every current subscriber synchronously, in subscription order.
// Listeners run without the lock held so they may unsubscribe themselves.
func (b *Broadcaster) Emit() {
	b.mu.Lock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	fns := make([]func(), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Len reports how many listeners are subscribed.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
