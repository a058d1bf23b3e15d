package result

import (
	stderrors "errors"
	"fmt"

	"github.com/wippyai/hle/errors"
)

// Code is a packed result value. The zero value is Success.
type Code uint32

const (
	moduleBits      = 9
	descriptionBits = 13
	moduleMask      = 1<<moduleBits - 1
	descriptionMask = 1<<descriptionBits - 1
)

// Module numbers used by host-defined results.
const (
	ModuleKernel = 1
	ModuleSF     = 10
	ModuleVI     = 114
	ModuleAM     = 128
	ModuleCapSrv = 206
)

// Success is the only non-failing code.
const Success Code = 0

// Framework results.
var (
	HandlerFault       = Make(ModuleSF, 1)
	InvalidRequestSize = Make(ModuleSF, 202)
	UnknownCommandID   = Make(ModuleSF, 221)
	ResponseTooLarge   = Make(ModuleSF, 232)

	OutOfResource  = Make(ModuleKernel, 103)
	OutOfHandles   = Make(ModuleKernel, 105)
	InvalidPointer = Make(ModuleKernel, 106)
	InvalidHandle  = Make(ModuleKernel, 114)
	TimedOut       = Make(ModuleKernel, 117)
	SessionClosed  = Make(ModuleKernel, 123)
	NotFound       = Make(ModuleKernel, 121)

	TooManyLayers       = Make(ModuleVI, 7)
	DisplayNotAvailable = Make(ModuleVI, 6)
)

var names = map[Code]string{
	HandlerFault:        "HandlerFault",
	InvalidRequestSize:  "InvalidRequestSize",
	UnknownCommandID:    "UnknownCommandID",
	ResponseTooLarge:    "ResponseTooLarge",
	OutOfResource:       "OutOfResource",
	OutOfHandles:        "OutOfHandles",
	InvalidPointer:      "InvalidPointer",
	InvalidHandle:       "InvalidHandle",
	TimedOut:            "TimedOut",
	SessionClosed:       "SessionClosed",
	NotFound:            "NotFound",
	TooManyLayers:       "TooManyLayers",
	DisplayNotAvailable: "DisplayNotAvailable",
}

// Make packs a module and description. Out of range parts are masked.
func Make(module, description uint32) Code {
	return Code(module&moduleMask | (description&descriptionMask)<<moduleBits)
}

// Module returns the module part.
func (c Code) Module() uint32 { return uint32(c) & moduleMask }

// Description returns the description part.
func (c Code) Description() uint32 { return uint32(c) >> moduleBits & descriptionMask }

// Succeeded reports whether c is Success.
func (c Code) Succeeded() bool { return c == Success }

// Failed reports whether c is not Success.
func (c Code) Failed() bool { return c != Success }

// String renders the code as "2010-0221 (UnknownCommandID)" with the
// conventional 2000 module offset.
func (c Code) String() string {
	if c == Success {
		return "Success"
	}
	s := fmt.Sprintf("%04d-%04d", 2000+c.Module(), c.Description())
	if n, ok := names[c]; ok {
		s += " (" + n + ")"
	}
	return s
}

// FromError maps a host error to the code a guest observes. Nil maps to
// Success and unknown errors map to HandlerFault.
func FromError(err error) Code {
	if err == nil {
		return Success
	}
	var coded interface{ ResultCode() Code }
	if stderrors.As(err, &coded) {
		return coded.ResultCode()
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return HandlerFault
	}
	switch e.Kind {
	case errors.KindOutOfBounds:
		switch e.Phase {
		case errors.PhaseEncode:
			return ResponseTooLarge
		case errors.PhaseBridge:
			return InvalidPointer
		}
		return InvalidRequestSize
	case errors.KindInvalidHandle, errors.KindTypeMismatch:
		return InvalidHandle
	case errors.KindUnimplemented:
		return UnknownCommandID
	case errors.KindExhausted:
		if e.Phase == errors.PhaseKernel {
			return OutOfHandles
		}
		return OutOfResource
	case errors.KindNotFound:
		return NotFound
	case errors.KindClosed:
		return SessionClosed
	default:
		return HandlerFault
	}
}

// Error attaches the result code a guest should observe to a host error.
type Error struct {
	Err  error
	Code Code
}

// Wrap returns err annotated with code.
func Wrap(code Code, err error) error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ResultCode implements the interface FromError checks first.
func (e *Error) ResultCode() Code { return e.Code }
