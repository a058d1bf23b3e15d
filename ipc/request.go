package ipc

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
)

// HandleResolver turns an input handle into the object it names. The
// dispatcher never interprets a handle value as an address.
type HandleResolver interface {
	Resolve(h kernel.Handle, kind kernel.ObjectKind) (kernel.Object, error)
}

// Request is a read-only cursor over a call's argument payload.
type Request struct {
	resolver HandleResolver
	err      error
	data     []byte
	handles  []kernel.Handle
	off      int
	handle   int
	released bool
}

// NewRequest creates a request view over call. resolver may be nil when the
// call carries no handles.
func NewRequest(call *Call, resolver HandleResolver) *Request {
	return &Request{
		data:     call.Payload,
		handles:  call.Handles,
		resolver: resolver,
	}
}

func (r *Request) take(n int) []byte {
	if r.released {
		r.fail(errors.Released(errors.PhaseDecode))
		return nil
	}
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.off {
		r.fail(errors.OutOfBounds(errors.PhaseDecode, n, len(r.data), r.off))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Request) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// U8 reads one byte.
func (r *Request) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Bool reads one byte; any non-zero value is true.
func (r *Request) Bool() bool {
	return r.U8() != 0
}

// U16 reads a little-endian uint16.
func (r *Request) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32.
func (r *Request) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64.
func (r *Request) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// F32 reads an IEEE 754 float32.
func (r *Request) F32() float32 {
	return math.Float32frombits(r.U32())
}

// Bytes reads n bytes into a fresh slice.
func (r *Request) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Skip advances past n bytes of padding or ignored fields.
func (r *Request) Skip(n int) {
	r.take(n)
}

// Object resolves the next input handle, requiring the given kind.
func (r *Request) Object(kind kernel.ObjectKind) kernel.Object {
	if r.released {
		r.fail(errors.Released(errors.PhaseDecode))
		return nil
	}
	if r.err != nil {
		return nil
	}
	if r.handle >= len(r.handles) {
		r.fail(errors.OutOfBounds(errors.PhaseDecode, 1, len(r.handles), r.handle))
		return nil
	}
	h := r.handles[r.handle]
	r.handle++
	if r.resolver == nil {
		r.fail(errors.InvalidHandle(errors.PhaseDecode, uint32(h), "no resolver"))
		return nil
	}
	obj, err := r.resolver.Resolve(h, kind)
	if err != nil {
		r.fail(errors.InvalidHandle(errors.PhaseDecode, uint32(h), err.Error()))
		return nil
	}
	return obj
}

// Offset returns the number of payload bytes consumed.
func (r *Request) Offset() int { return r.off }

// Remaining returns the number of payload bytes left.
func (r *Request) Remaining() int { return len(r.data) - r.off }

// Err returns the first decode failure, if any.
func (r *Request) Err() error { return r.err }

// Result maps the decode state to a result code: Success while every read
// so far was in bounds.
func (r *Request) Result() result.Code {
	return result.FromError(r.err)
}

// Release ends the view's lifetime. Later reads fail.
func (r *Request) Release() {
	r.released = true
	r.data = nil
	r.handles = nil
	r.resolver = nil
}
