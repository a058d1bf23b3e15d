package ipc

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
)

// Response is a write-only cursor over a call's output payload. Output
// handles are queued as objects; the dispatcher installs them into the
// caller's handle table before the reply becomes visible.
type Response struct {
	err      error
	buf      []byte
	copies   []kernel.Object
	moves    []kernel.Object
	capacity int
	released bool
}

// NewResponse creates a response view bounded to capacity payload bytes.
// A capacity of zero or less selects DefaultResponseCapacity.
func NewResponse(capacity int) *Response {
	if capacity <= 0 {
		capacity = DefaultResponseCapacity
	}
	return &Response{
		buf:      make([]byte, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

func (w *Response) grow(n int) []byte {
	if w.released {
		w.fail(errors.Released(errors.PhaseEncode))
		return nil
	}
	if w.err != nil {
		return nil
	}
	if n > w.capacity-len(w.buf) {
		w.fail(errors.OutOfBounds(errors.PhaseEncode, n, w.capacity, len(w.buf)))
		return nil
	}
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start:]
}

func (w *Response) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// U8 writes one byte.
func (w *Response) U8(v uint8) {
	if b := w.grow(1); b != nil {
		b[0] = v
	}
}

// Bool writes one byte, 1 for true.
func (w *Response) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// U16 writes a little-endian uint16.
func (w *Response) U16(v uint16) {
	if b := w.grow(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

// U32 writes a little-endian uint32.
func (w *Response) U32(v uint32) {
	if b := w.grow(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

// U64 writes a little-endian uint64.
func (w *Response) U64(v uint64) {
	if b := w.grow(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
}

// F32 writes an IEEE 754 float32.
func (w *Response) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// Bytes writes raw bytes.
func (w *Response) Bytes(p []byte) {
	if b := w.grow(len(p)); b != nil {
		copy(b, p)
	}
}

// CopyHandle queues obj to be installed as a copy handle. The object stays
// owned by its creator.
func (w *Response) CopyHandle(obj kernel.Object) {
	w.queue(&w.copies, obj)
}

// MoveHandle queues obj to be installed as a move handle. Ownership passes
// to the caller's handle table.
func (w *Response) MoveHandle(obj kernel.Object) {
	w.queue(&w.moves, obj)
}

func (w *Response) queue(list *[]kernel.Object, obj kernel.Object) {
	if obj == nil {
		w.fail(errors.InvalidInput(errors.PhaseEncode, "nil output handle object"))
		return
	}
	var err error
	switch {
	case w.released:
		err = errors.Released(errors.PhaseEncode)
	case w.err != nil:
	case len(w.copies)+len(w.moves) >= MaxMessageHandles:
		err = errors.Exhausted(errors.PhaseEncode, "message handle", MaxMessageHandles)
	default:
		*list = append(*list, obj)
		return
	}
	if err != nil {
		w.fail(err)
	}
	// A rejected move still transfers ownership, so the object ends here.
	if list == &w.moves {
		if d, ok := obj.(kernel.Dropper); ok {
			d.Drop()
		}
	}
}

// Len returns the number of payload bytes written.
func (w *Response) Len() int { return len(w.buf) }

// Capacity returns the payload budget.
func (w *Response) Capacity() int { return w.capacity }

// Payload returns a copy of the bytes written so far.
func (w *Response) Payload() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Pending returns the queued copy and move objects.
func (w *Response) Pending() (copies, moves []kernel.Object) {
	return w.copies, w.moves
}

// Err returns the first encode failure, if any.
func (w *Response) Err() error { return w.err }

// Result maps the encode state to a result code.
func (w *Response) Result() result.Code {
	return result.FromError(w.err)
}

// Reset discards payload and queued handles, keeping any latched error.
func (w *Response) Reset() {
	w.buf = w.buf[:0]
	w.copies = nil
	w.moves = nil
}

// Release ends the view's lifetime. Later writes fail.
func (w *Response) Release() {
	w.released = true
	w.buf = nil
	w.copies = nil
	w.moves = nil
}
