package service

import (
	"sync"

	"github.com/wippyai/hle/kernel"
)

// LazyEvent is an event owned by a service instance, created on first
// request. Every call to Get returns the same object, including when first
// requested by concurrent callers.
type LazyEvent struct {
	ev   *kernel.Event
	Name string
	// Signaled creates the event in the signalled state.
	Signaled bool
	mu       sync.Mutex
}

// Get returns the event, creating it if needed.
func (l *LazyEvent) Get() *kernel.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ev == nil {
		l.ev = kernel.NewEvent(l.Name)
		if l.Signaled {
			l.ev.Signal()
		}
	}
	return l.ev
}

// Peek returns the event if it has been created, nil otherwise.
func (l *LazyEvent) Peek() *kernel.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ev
}
