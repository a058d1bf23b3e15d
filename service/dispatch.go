package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
)

// CallInfo describes one completed dispatch.
type CallInfo struct {
	Service  string
	Name     string
	Command  FunctionCode
	Result   result.Code
	Duration time.Duration
	Known    bool
	Stub     bool
}

// CallObserver is notified after every dispatch.
type CallObserver interface {
	OnCall(ctx context.Context, info CallInfo)
}

// Dispatch runs call against svc with the default response capacity and
// the package logger.
func Dispatch(ctx context.Context, env Env, svc Service, call *ipc.Call) *ipc.Reply {
	reply, _ := dispatch(ctx, env, svc, call, ipc.DefaultResponseCapacity, Logger())
	return reply
}

func dispatch(ctx context.Context, env Env, svc Service, call *ipc.Call, capacity int, log *zap.Logger) (*ipc.Reply, CallInfo) {
	start := time.Now()
	code := FunctionCode(call.Command)

	svc.Lock()
	defer svc.Unlock()

	cmds := svc.Commands()
	info := CallInfo{Service: cmds.Name(), Command: code}
	if cmd, ok := cmds.Lookup(code); ok {
		info.Name, info.Stub, info.Known = cmd.Name, cmd.Stub, true
	}

	var resolver ipc.HandleResolver
	if env != nil {
		if t := env.Handles(); t != nil {
			resolver = t
		}
	}
	req := ipc.NewRequest(call, resolver)
	resp := ipc.NewResponse(capacity)
	defer req.Release()
	defer resp.Release()

	c := NewContext(ctx, env, log).with(info.Service, code)
	rc := invoke(cmds, code, c, req, resp)
	if rc.Succeeded() {
		rc = req.Result()
	}
	if rc.Succeeded() {
		rc = resp.Result()
	}

	reply := &ipc.Reply{Result: rc}
	if rc.Succeeded() {
		copies, moves, err := install(env, resp)
		if err != nil {
			reply.Result = result.FromError(err)
			log.Warn("handle install failed",
				zap.String("service", info.Service),
				zap.Uint32("cmd", uint32(code)),
				zap.Error(err))
		} else {
			reply.Payload = resp.Payload()
			reply.CopyHandles = copies
			reply.MoveHandles = moves
		}
	} else {
		_, moves := resp.Pending()
		dropAll(moves)
	}

	info.Result = reply.Result
	info.Duration = time.Since(start)
	logCall(log, info)
	return reply, info
}

func invoke(cmds Commands, code FunctionCode, c *Context, req *ipc.Request, resp *ipc.Response) (rc result.Code) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Fault(cmds.Name(), uint32(code), r)
			c.Logger().Error("handler panicked", zap.Any("panic", r), zap.Error(err))
			rc = result.HandlerFault
		}
	}()
	rc, _ = cmds.invoke(code, c, req, resp)
	return rc
}

// install places queued output objects into the caller's handle table. It is
// all-or-nothing: on failure every handle inserted so far is removed.
func install(env Env, resp *ipc.Response) (copies, moves []kernel.Handle, err error) {
	qc, qm := resp.Pending()
	if len(qc)+len(qm) == 0 {
		return nil, nil, nil
	}
	if env == nil || env.Handles() == nil {
		dropAll(qm)
		return nil, nil, errors.NotInitialized(errors.PhaseKernel, "handle table")
	}
	table := env.Handles()
	var installed []kernel.Handle
	rollback := func() {
		for i := len(installed) - 1; i >= 0; i-- {
			table.Remove(installed[i])
		}
	}
	for _, obj := range qc {
		h, err := table.Insert(obj)
		if err != nil {
			rollback()
			dropAll(qm)
			return nil, nil, err
		}
		installed = append(installed, h)
		copies = append(copies, h)
	}
	for i, obj := range qm {
		h, err := table.Insert(obj)
		if err != nil {
			rollback()
			dropAll(qm[i:])
			return nil, nil, err
		}
		installed = append(installed, h)
		moves = append(moves, h)
	}
	return copies, moves, nil
}

// dropAll releases move objects that will never reach a handle table.
func dropAll(objs []kernel.Object) {
	for _, obj := range objs {
		if d, ok := obj.(kernel.Dropper); ok {
			d.Drop()
		}
	}
}

func logCall(log *zap.Logger, info CallInfo) {
	fields := []zap.Field{
		zap.String("service", info.Service),
		zap.Uint32("cmd", uint32(info.Command)),
		zap.Stringer("result", info.Result),
	}
	switch {
	case !info.Known:
		log.Warn("unknown command", fields...)
	case info.Result == result.HandlerFault:
		log.Error("command faulted", append(fields, zap.String("name", info.Name))...)
	case info.Stub:
		log.Debug("stubbed command", append(fields, zap.String("name", info.Name))...)
	case info.Result.Failed():
		log.Debug("command failed", append(fields, zap.String("name", info.Name))...)
	}
}
