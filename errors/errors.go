package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // dispatch table construction
	PhaseDecode   Phase = "decode"   // request view reads
	PhaseEncode   Phase = "encode"   // response view writes
	PhaseDispatch Phase = "dispatch" // command resolution and invocation
	PhaseKernel   Phase = "kernel"   // handle table and kernel objects
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseBridge   Phase = "bridge"   // guest bridge
	PhaseStore    Phase = "store"    // trace store
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfBounds    Kind = "out_of_bounds"
	KindInvalidData    Kind = "invalid_data"
	KindInvalidHandle  Kind = "invalid_handle"
	KindUnimplemented  Kind = "unimplemented"
	KindDuplicate      Kind = "duplicate"
	KindExhausted      Kind = "exhausted"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindTypeMismatch   Kind = "type_mismatch"
	KindClosed         Kind = "closed"
	KindReleased       Kind = "released"
	KindFault          Kind = "fault"
)

// Error is the structured error type used throughout hle
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Service    string
	Detail     string
	Command    uint32
	HasCommand bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Service != "" || e.HasCommand {
		b.WriteString(" at ")
		if e.Service != "" {
			b.WriteString(e.Service)
		}
		if e.HasCommand {
			fmt.Fprintf(&b, "#0x%X", e.Command)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Service sets the service name
func (b *Builder) Service(name string) *Builder {
	b.err.Service = name
	return b
}

// Command sets the function code
func (b *Builder) Command(code uint32) *Builder {
	b.err.Command = code
	b.err.HasCommand = true
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// OutOfBounds creates an out of bounds error for a cursor access of width
// bytes at offset into a buffer of length bytes.
func OutOfBounds(phase Phase, width, length, offset int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access of %d bytes at offset %d exceeds length %d", width, offset, length),
		Value:  offset,
	}
}

// InvalidHandle creates an error for a handle that does not resolve
func InvalidHandle(phase Phase, handle uint32, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("handle 0x%X: %s", handle, detail),
		Value:  handle,
	}
}

// Unimplemented creates an error for a function code missing from a table
func Unimplemented(service string, code uint32) *Error {
	return &Error{
		Phase:      PhaseDispatch,
		Kind:       KindUnimplemented,
		Service:    service,
		Command:    code,
		HasCommand: true,
		Detail:     "no handler registered",
	}
}

// Duplicate creates an error for a function code registered twice
func Duplicate(phase Phase, service string, code uint32) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindDuplicate,
		Service:    service,
		Command:    code,
		HasCommand: true,
		Detail:     "function code registered more than once",
	}
}

// Exhausted creates a resource exhaustion error
func Exhausted(phase Phase, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhausted,
		Detail: fmt.Sprintf("%s limit of %d reached", what, limit),
		Value:  limit,
	}
}

// Released creates an error for use of a view after its call completed
func Released(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Detail: "message view used after its call completed",
	}
}

// Closed creates an error for operations on a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// Fault creates an error describing a recovered handler panic
func Fault(service string, code uint32, recovered any) *Error {
	return &Error{
		Phase:      PhaseDispatch,
		Kind:       KindFault,
		Service:    service,
		Command:    code,
		HasCommand: true,
		Detail:     fmt.Sprintf("handler panic: %v", recovered),
		Value:      recovered,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates a configuration loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
