package ipc

import (
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
)

const (
	// DefaultResponseCapacity is the raw payload budget of one reply.
	DefaultResponseCapacity = 0x100

	// MaxMessageHandles bounds handles per direction in one message.
	MaxMessageHandles = 15
)

// Call is the inbound envelope of one IPC request.
type Call struct {
	Payload []byte
	Handles []kernel.Handle
	Command uint32
}

// Reply is the outbound envelope. It is always fully populated: a failed
// call carries its result with an empty payload and no handles.
type Reply struct {
	Payload     []byte
	CopyHandles []kernel.Handle
	MoveHandles []kernel.Handle
	Result      result.Code
}

// Handles returns copy handles followed by move handles.
func (r *Reply) Handles() []kernel.Handle {
	out := make([]kernel.Handle, 0, len(r.CopyHandles)+len(r.MoveHandles))
	out = append(out, r.CopyHandles...)
	return append(out, r.MoveHandles...)
}
