package ipc

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
)

// Wire layout, all fields little-endian u32:
//
//	call:  command | handle_count | payload_len | handles... | payload
//	reply: result | copy_count | move_count | payload_len | copies... | moves... | payload
const (
	callHeaderSize  = 12
	replyHeaderSize = 16
)

// MaxWirePayload bounds the payload a wire message may declare.
const MaxWirePayload = 0x10000

// EncodeCall serializes a call envelope.
func EncodeCall(c *Call) ([]byte, error) {
	if len(c.Handles) > MaxMessageHandles {
		return nil, errors.Exhausted(errors.PhaseEncode, "message handle", MaxMessageHandles)
	}
	if len(c.Payload) > MaxWirePayload {
		return nil, errors.OutOfBounds(errors.PhaseEncode, len(c.Payload), MaxWirePayload, 0)
	}
	out := make([]byte, callHeaderSize+4*len(c.Handles)+len(c.Payload))
	binary.LittleEndian.PutUint32(out[0:], c.Command)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(c.Handles)))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(c.Payload)))
	off := putHandles(out, callHeaderSize, c.Handles)
	copy(out[off:], c.Payload)
	return out, nil
}

// DecodeCall parses a call envelope. The returned call does not alias data.
func DecodeCall(data []byte) (*Call, error) {
	if len(data) < callHeaderSize {
		return nil, errors.OutOfBounds(errors.PhaseDecode, callHeaderSize, len(data), 0)
	}
	cmd := binary.LittleEndian.Uint32(data[0:])
	nh := binary.LittleEndian.Uint32(data[4:])
	np := binary.LittleEndian.Uint32(data[8:])
	if err := checkCounts(nh, np); err != nil {
		return nil, err
	}
	need := callHeaderSize + 4*int(nh) + int(np)
	if len(data) < need {
		return nil, errors.OutOfBounds(errors.PhaseDecode, need, len(data), 0)
	}
	handles, off := getHandles(data, callHeaderSize, int(nh))
	payload := make([]byte, np)
	copy(payload, data[off:off+int(np)])
	return &Call{Command: cmd, Handles: handles, Payload: payload}, nil
}

// ReplySize returns the encoded size of r.
func ReplySize(r *Reply) int {
	return replyHeaderSize + 4*(len(r.CopyHandles)+len(r.MoveHandles)) + len(r.Payload)
}

// EncodeReply serializes a reply envelope.
func EncodeReply(r *Reply) []byte {
	out := make([]byte, ReplySize(r))
	binary.LittleEndian.PutUint32(out[0:], uint32(r.Result))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(r.CopyHandles)))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(r.MoveHandles)))
	binary.LittleEndian.PutUint32(out[12:], uint32(len(r.Payload)))
	off := putHandles(out, replyHeaderSize, r.CopyHandles)
	off = putHandles(out, off, r.MoveHandles)
	copy(out[off:], r.Payload)
	return out
}

// DecodeReply parses a reply envelope.
func DecodeReply(data []byte) (*Reply, error) {
	if len(data) < replyHeaderSize {
		return nil, errors.OutOfBounds(errors.PhaseDecode, replyHeaderSize, len(data), 0)
	}
	rc := binary.LittleEndian.Uint32(data[0:])
	nc := binary.LittleEndian.Uint32(data[4:])
	nm := binary.LittleEndian.Uint32(data[8:])
	np := binary.LittleEndian.Uint32(data[12:])
	if nc > MaxMessageHandles || nm > MaxMessageHandles {
		return nil, errors.InvalidData(errors.PhaseDecode, fmt.Sprintf("handle counts %d/%d exceed %d", nc, nm, MaxMessageHandles))
	}
	if err := checkCounts(nc+nm, np); err != nil {
		return nil, err
	}
	need := replyHeaderSize + 4*int(nc+nm) + int(np)
	if len(data) < need {
		return nil, errors.OutOfBounds(errors.PhaseDecode, need, len(data), 0)
	}
	copies, off := getHandles(data, replyHeaderSize, int(nc))
	moves, off := getHandles(data, off, int(nm))
	payload := make([]byte, np)
	copy(payload, data[off:off+int(np)])
	return &Reply{
		Result:      result.Code(rc),
		CopyHandles: copies,
		MoveHandles: moves,
		Payload:     payload,
	}, nil
}

func checkCounts(handles, payload uint32) error {
	if handles > MaxMessageHandles {
		return errors.InvalidData(errors.PhaseDecode, fmt.Sprintf("handle count %d exceeds %d", handles, MaxMessageHandles))
	}
	if payload > MaxWirePayload {
		return errors.InvalidData(errors.PhaseDecode, fmt.Sprintf("payload length %d exceeds %d", payload, MaxWirePayload))
	}
	return nil
}

func putHandles(out []byte, off int, hs []kernel.Handle) int {
	for _, h := range hs {
		binary.LittleEndian.PutUint32(out[off:], uint32(h))
		off += 4
	}
	return off
}

func getHandles(data []byte, off, n int) ([]kernel.Handle, int) {
	if n == 0 {
		return nil, off
	}
	hs := make([]kernel.Handle, n)
	for i := range hs {
		hs[i] = kernel.Handle(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	return hs, off
}
