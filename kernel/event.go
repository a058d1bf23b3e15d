package kernel

import (
	"context"
	"sync"
)

// Event is a host-owned, level-triggered signal that guests wait on.
// The zero value is not usable; create events with NewEvent.
type Event struct {
	name     string
	ch       chan struct{}
	signals  uint64
	mu       sync.Mutex
	signaled bool
}

// NewEvent creates an unsignalled event.
func NewEvent(name string) *Event {
	return &Event{name: name, ch: make(chan struct{})}
}

// Kind implements Object.
func (e *Event) Kind() ObjectKind { return KindEvent }

// Name returns the debug name given at creation.
func (e *Event) Name() string { return e.name }

// Signal wakes all current and future waiters until Clear is called.
func (e *Event) Signal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals++
	if e.signaled {
		return
	}
	e.signaled = true
	close(e.ch)
}

// Clear resets the event to unsignalled.
func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		return
	}
	e.signaled = false
	e.ch = make(chan struct{})
}

// Signaled reports the current state.
func (e *Event) Signaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// SignalCount returns how many times Signal was called.
func (e *Event) SignalCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signals
}

// Wait blocks until the event is signalled or ctx ends.
func (e *Event) Wait(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
