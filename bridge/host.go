package bridge

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hle"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
)

// HostModule is the import module name guests link against.
const HostModule = "hle"

// Exported host function names.
const (
	FuncConnect = "connect"
	FuncCall    = "call"
	FuncWait    = "wait"
	FuncClose   = "close"
	FuncClear   = "clear"
)

// maxServiceName bounds the name a guest may pass to connect.
const maxServiceName = 64

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// Signature describes one host function for guest module synthesis.
type Signature struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Signatures lists the host functions in export order.
func Signatures() []Signature {
	return []Signature{
		{FuncConnect, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}},
		{FuncCall, []api.ValueType{i32, i32, i32, i32, i32, i32}, []api.ValueType{i32}},
		{FuncWait, []api.ValueType{i32, i64}, []api.ValueType{i32}},
		{FuncClose, []api.ValueType{i32}, []api.ValueType{i32}},
		{FuncClear, []api.ValueType{i32}, []api.ValueType{i32}},
	}
}

// host implements the "hle" functions against one registry.
type host struct {
	reg *service.Registry
	log *zap.Logger
}

func (h *host) instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	fns := map[string]api.GoModuleFunc{
		FuncConnect: h.connect,
		FuncCall:    h.call,
		FuncWait:    h.wait,
		FuncClose:   h.close,
		FuncClear:   h.clear,
	}
	builder := rt.NewHostModuleBuilder(HostModule)
	for _, sig := range Signatures() {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(fns[sig.Name], sig.Params, sig.Results).
			Export(sig.Name)
	}
	return builder.Instantiate(ctx)
}

func status(stack []uint64, code result.Code) {
	stack[0] = uint64(code)
}

func (h *host) connect(_ context.Context, mod api.Module, stack []uint64) {
	namePtr, nameLen, outPtr := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	mem := WrapMemory(mod.Memory())
	if mem == nil {
		status(stack, result.InvalidPointer)
		return
	}
	if nameLen > maxServiceName {
		status(stack, result.NotFound)
		return
	}
	name, err := mem.Read(namePtr, nameLen)
	if err != nil {
		status(stack, result.FromError(err))
		return
	}
	session, err := h.reg.Open(string(name))
	if err != nil {
		h.log.Debug("connect failed", zap.String("service", string(name)), zap.Error(err))
		status(stack, result.FromError(err))
		return
	}
	if err := mem.WriteU32(outPtr, uint32(session)); err != nil {
		_ = h.reg.Close(session)
		status(stack, result.FromError(err))
		return
	}
	status(stack, result.Success)
}

func (h *host) call(ctx context.Context, mod api.Module, stack []uint64) {
	session := kernel.Handle(api.DecodeU32(stack[0]))
	msgPtr, msgLen := api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	outPtr, outCap, outLenPtr := api.DecodeU32(stack[3]), api.DecodeU32(stack[4]), api.DecodeU32(stack[5])

	mem := WrapMemory(mod.Memory())
	if mem == nil {
		status(stack, result.InvalidPointer)
		return
	}
	msg, err := mem.Read(msgPtr, msgLen)
	if err != nil {
		status(stack, result.FromError(err))
		return
	}
	c, err := ipc.DecodeCall(msg)
	if err != nil {
		status(stack, result.FromError(err))
		return
	}
	reply, err := h.reg.Call(ctx, session, c)
	if err != nil {
		status(stack, result.FromError(err))
		return
	}
	status(stack, h.deliver(mem, reply, outPtr, outCap, outLenPtr))
}

// deliver writes an encoded reply into guest memory. A reply that cannot be
// delivered has its handles closed so nothing leaks into the table.
func (h *host) deliver(mem hle.Memory, reply *ipc.Reply, outPtr, outCap, outLenPtr uint32) result.Code {
	data := ipc.EncodeReply(reply)
	if err := mem.WriteU32(outLenPtr, uint32(len(data))); err != nil {
		h.discard(reply)
		return result.FromError(err)
	}
	if uint32(len(data)) > outCap {
		h.discard(reply)
		return result.ResponseTooLarge
	}
	if err := mem.Write(outPtr, data); err != nil {
		h.discard(reply)
		return result.FromError(err)
	}
	return result.Success
}

func (h *host) discard(reply *ipc.Reply) {
	for _, handle := range reply.Handles() {
		_ = h.reg.Close(handle)
	}
}

func (h *host) event(handle kernel.Handle) (*kernel.Event, result.Code) {
	obj, err := h.reg.Handles().Resolve(handle, kernel.KindEvent)
	if err != nil {
		return nil, result.FromError(err)
	}
	ev, ok := obj.(*kernel.Event)
	if !ok {
		return nil, result.InvalidHandle
	}
	return ev, result.Success
}

func (h *host) wait(ctx context.Context, _ api.Module, stack []uint64) {
	handle := kernel.Handle(api.DecodeU32(stack[0]))
	timeout := int64(stack[1])

	ev, rc := h.event(handle)
	if rc.Failed() {
		status(stack, rc)
		return
	}

	if ev.Signaled() {
		status(stack, result.Success)
		return
	}
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout))
		defer cancel()
	}
	if err := ev.Wait(ctx); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			status(stack, result.TimedOut)
			return
		}
		h.log.Debug("wait interrupted", zap.Uint32("handle", uint32(handle)), zap.Error(err))
		status(stack, result.SessionClosed)
		return
	}
	status(stack, result.Success)
}

func (h *host) close(_ context.Context, _ api.Module, stack []uint64) {
	handle := kernel.Handle(api.DecodeU32(stack[0]))
	status(stack, result.FromError(h.reg.Close(handle)))
}

// clear resets an event so a later wait blocks until the next signal.
func (h *host) clear(_ context.Context, _ api.Module, stack []uint64) {
	ev, rc := h.event(kernel.Handle(api.DecodeU32(stack[0])))
	if rc.Succeeded() {
		ev.Clear()
	}
	status(stack, rc)
}
