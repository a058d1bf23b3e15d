package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hle/bridge/internal/guestmod"
	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
)

// ProbeName is the module name the client's guest is loaded under.
const ProbeName = "hle-probe"

// Scratch layout of the probe guest's single memory page.
const (
	scratchHandle  = 0x0
	scratchLen     = 0x4
	scratchName    = 0x40
	scratchMessage = 0x100
	messageCap     = 0x8000 - scratchMessage
	scratchReply   = 0x8000
	replyCap       = 0x8000
)

// ProbeModule returns a guest module that re-exports every "hle" import
// under the same name and exports one page of memory.
func ProbeModule() []byte {
	b := guestmod.New(HostModule)
	for _, sig := range Signatures() {
		b.AddFunc(sig.Name, sig.Params, sig.Results)
	}
	return b.Build()
}

// Client issues calls through a probe guest, taking the same path through
// guest memory and the host module that a real guest does. A Client is
// safe for concurrent use; calls are serialized.
type Client struct {
	guest *Guest
	mu    sync.Mutex
}

// NewClient loads a probe guest into r.
func NewClient(ctx context.Context, r *Runner) (*Client, error) {
	g, err := r.Load(ctx, ProbeName, ProbeModule())
	if err != nil {
		return nil, err
	}
	return &Client{guest: g}, nil
}

// Guest returns the probe guest.
func (c *Client) Guest() *Guest { return c.guest }

func (c *Client) invoke(ctx context.Context, fn string, args ...uint64) (result.Code, error) {
	res, err := c.guest.Call(ctx, fn, args...)
	if err != nil {
		return 0, err
	}
	return result.Code(api.DecodeU32(res[0])), nil
}

// Connect opens a session to the named port.
func (c *Client) Connect(ctx context.Context, name string) (kernel.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(name) > maxServiceName {
		return 0, statusError(result.NotFound, FuncConnect)
	}
	mem := c.guest.Memory()
	if err := mem.Write(scratchName, []byte(name)); err != nil {
		return 0, err
	}
	code, err := c.invoke(ctx, FuncConnect, scratchName, uint64(len(name)), scratchHandle)
	if err != nil {
		return 0, err
	}
	if err := statusError(code, FuncConnect); err != nil {
		return 0, err
	}
	h, err := mem.ReadU32(scratchHandle)
	if err != nil {
		return 0, err
	}
	return kernel.Handle(h), nil
}

// Call sends one request on session and decodes the reply. Transport
// failures are errors; a dispatched call's result travels in the reply.
func (c *Client) Call(ctx context.Context, session kernel.Handle, call *ipc.Call) (*ipc.Reply, error) {
	msg, err := ipc.EncodeCall(call)
	if err != nil {
		return nil, err
	}
	if len(msg) > messageCap {
		return nil, errors.InvalidInput(errors.PhaseBridge, "message exceeds probe scratch area")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mem := c.guest.Memory()
	if err := mem.Write(scratchMessage, msg); err != nil {
		return nil, err
	}
	code, err := c.invoke(ctx, FuncCall,
		uint64(session), scratchMessage, uint64(len(msg)), scratchReply, replyCap, scratchLen)
	if err != nil {
		return nil, err
	}
	if err := statusError(code, FuncCall); err != nil {
		return nil, err
	}
	n, err := mem.ReadU32(scratchLen)
	if err != nil {
		return nil, err
	}
	data, err := mem.Read(scratchReply, n)
	if err != nil {
		return nil, err
	}
	return ipc.DecodeReply(data)
}

// Wait blocks until the event behind h is signalled. A negative timeout
// waits without a deadline.
func (c *Client) Wait(ctx context.Context, h kernel.Handle, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, err := c.invoke(ctx, FuncWait, uint64(h), api.EncodeI64(int64(timeout)))
	if err != nil {
		return err
	}
	return statusError(code, FuncWait)
}

// Clear resets the event behind h.
func (c *Client) Clear(ctx context.Context, h kernel.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, err := c.invoke(ctx, FuncClear, uint64(h))
	if err != nil {
		return err
	}
	return statusError(code, FuncClear)
}

// Close closes a handle in the registry's table.
func (c *Client) Close(ctx context.Context, h kernel.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, err := c.invoke(ctx, FuncClose, uint64(h))
	if err != nil {
		return err
	}
	return statusError(code, FuncClose)
}

// statusError turns a non-zero guest status into an error carrying the code.
func statusError(code result.Code, op string) error {
	if code.Succeeded() {
		return nil
	}
	return result.Wrap(code, errors.New(errors.PhaseBridge, errors.KindFault).Detail("%s returned %s", op, code).Build())
}
