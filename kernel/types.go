package kernel

// Handle is an opaque reference to an object in a HandleTable.
// Handle 0 is reserved and always invalid.
type Handle uint32

// ObjectKind tags the concrete kind of a kernel object.
type ObjectKind uint8

const (
	KindAny ObjectKind = iota
	KindEvent
	KindSession
)

func (k ObjectKind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindEvent:
		return "event"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// Object is anything that can live in a handle table.
type Object interface {
	Kind() ObjectKind
}

// Dropper is optionally implemented by objects that need cleanup when their
// last handle is removed from a table.
type Dropper interface {
	Drop()
}

// HandleEventType classifies handle lifecycle notifications.
type HandleEventType uint8

const (
	HandleCreated HandleEventType = iota
	HandleClosed
)

func (t HandleEventType) String() string {
	if t == HandleCreated {
		return "created"
	}
	return "closed"
}

// HandleEvent describes one handle lifecycle change.
type HandleEvent struct {
	Object Object
	Handle Handle
	Kind   ObjectKind
	Type   HandleEventType
}

// Observer receives handle lifecycle notifications.
type Observer interface {
	OnHandleEvent(HandleEvent)
}
