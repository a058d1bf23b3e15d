package kernel

import (
	"sync"

	"github.com/wippyai/hle/errors"
)

// DefaultMaxHandles bounds a table created with a zero limit.
const DefaultMaxHandles = 1024

// HandleTable maps handles to kernel objects with kind checks and observer
// support. It is safe for concurrent use.
type HandleTable struct {
	entries   []entry
	freeList  []Handle
	observers []Observer
	limit     int
	live      int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	object Object
	kind   ObjectKind
	valid  bool
}

// NewHandleTable creates a table holding at most limit live handles.
// A limit of zero or less selects DefaultMaxHandles.
func NewHandleTable(limit int) *HandleTable {
	if limit <= 0 {
		limit = DefaultMaxHandles
	}
	return &HandleTable{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		limit:    limit,
	}
}

// Insert adds an object and returns its handle.
func (t *HandleTable) Insert(obj Object) (Handle, error) {
	if obj == nil {
		return 0, errors.InvalidInput(errors.PhaseKernel, "cannot insert nil object")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errors.Closed(errors.PhaseKernel, "handle table")
	}
	if t.live >= t.limit {
		t.mu.Unlock()
		return 0, errors.Exhausted(errors.PhaseKernel, "handle", t.limit)
	}

	e := entry{object: obj, kind: obj.Kind(), valid: true}
	var handle Handle
	if n := len(t.freeList); n > 0 {
		handle = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[handle-1] = e
	} else {
		t.entries = append(t.entries, e)
		handle = Handle(len(t.entries))
	}
	t.live++
	t.mu.Unlock()

	t.notify(HandleEvent{Type: HandleCreated, Handle: handle, Kind: e.kind, Object: obj})
	return handle, nil
}

// Get retrieves an object by handle.
func (t *HandleTable) Get(handle Handle) (Object, bool) {
	return t.GetTyped(handle, KindAny)
}

// GetTyped retrieves an object only if it matches the expected kind.
// KindAny matches every object.
func (t *HandleTable) GetTyped(handle Handle, kind ObjectKind) (Object, bool) {
	if handle == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := int(handle - 1)
	if idx >= len(t.entries) {
		return nil, false
	}
	e := t.entries[idx]
	if !e.valid || (kind != KindAny && e.kind != kind) {
		return nil, false
	}
	return e.object, true
}

// Resolve implements ipc.HandleResolver.
func (t *HandleTable) Resolve(handle Handle, kind ObjectKind) (Object, error) {
	obj, ok := t.GetTyped(handle, kind)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseKernel, uint32(handle), "no "+kind.String()+" object")
	}
	return obj, nil
}

// Remove closes a handle and returns its object. The object is dropped
// when no other handle in this table refers to it.
func (t *HandleTable) Remove(handle Handle) (Object, bool) {
	if handle == 0 {
		return nil, false
	}

	t.mu.Lock()
	idx := int(handle - 1)
	if idx >= len(t.entries) || !t.entries[idx].valid {
		t.mu.Unlock()
		return nil, false
	}
	e := t.entries[idx]
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, handle)
	t.live--
	lastRef := !t.referencedLocked(e.object)
	t.mu.Unlock()

	if d, ok := e.object.(Dropper); ok && lastRef {
		d.Drop()
	}

	t.notify(HandleEvent{Type: HandleClosed, Handle: handle, Kind: e.kind, Object: e.object})
	return e.object, true
}

func (t *HandleTable) referencedLocked(obj Object) bool {
	for _, e := range t.entries {
		if e.valid && e.object == obj {
			return true
		}
	}
	return false
}

// Subscribe adds an observer for lifecycle events.
func (t *HandleTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *HandleTable) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles.
func (t *HandleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Limit returns the configured capacity.
func (t *HandleTable) Limit() int {
	return t.limit
}

// Each iterates over live handles until fn returns false.
func (t *HandleTable) Each(fn func(Handle, Object) bool) {
	t.mu.RLock()
	snapshot := make([]entry, len(t.entries))
	copy(snapshot, t.entries)
	t.mu.RUnlock()

	for i, e := range snapshot {
		if e.valid && !fn(Handle(i+1), e.object) {
			return
		}
	}
}

// Clear closes every live handle.
func (t *HandleTable) Clear() {
	// Collect handles first to avoid holding the lock during Remove
	var handles []Handle
	t.Each(func(h Handle, _ Object) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases all handles and stops accepting inserts.
func (t *HandleTable) Close() error {
	t.Clear()

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *HandleTable) notify(e HandleEvent) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
