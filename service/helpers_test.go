package service

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
)

// probe records which handler ran; every entry writes its own code.
type probe struct {
	Base
	calls   []FunctionCode
	value   uint32
	event   LazyEvent
	spawned *probe
	dropped int
}

func (p *probe) Commands() Commands { return probeTable.Bind(p) }
func (p *probe) Drop()              { p.dropped++ }

func (p *probe) SnapshotState() ([]byte, error) {
	return EncodeState(struct{ Value uint32 }{p.value})
}

func (p *probe) RestoreState(data []byte) error {
	var st struct{ Value uint32 }
	if err := DecodeState(data, &st); err != nil {
		return err
	}
	p.value = st.Value
	return nil
}

func record(code FunctionCode) Handler[*probe] {
	return func(p *probe, _ *Context, _ *ipc.Request, resp *ipc.Response) result.Code {
		p.calls = append(p.calls, code)
		resp.U32(uint32(code))
		return result.Success
	}
}

var probeTable = MustTable("IProbe",
	Entry[*probe]{Code: 0, Name: "Zero", Handler: record(0), Out: []wit.Type{wit.U32{}}},
	Entry[*probe]{Code: 1, Name: "One", Handler: record(1), Out: []wit.Type{wit.U32{}}},
	Entry[*probe]{Code: 0x41, Name: "Idle", Handler: record(0x41), Out: []wit.Type{wit.U32{}}, Stub: true},
	Entry[*probe]{Code: 10, Name: "Set", In: []wit.Type{wit.U32{}}, Handler: func(p *probe, _ *Context, req *ipc.Request, _ *ipc.Response) result.Code {
		v := req.U32()
		if rc := req.Result(); rc.Failed() {
			return rc
		}
		p.value = v
		return result.Success
	}},
	Entry[*probe]{Code: 11, Name: "Get", Out: []wit.Type{wit.U32{}}, Handler: func(p *probe, _ *Context, _ *ipc.Request, resp *ipc.Response) result.Code {
		resp.U32(p.value)
		return result.Success
	}},
	Entry[*probe]{Code: 20, Name: "GetEvent", Handler: func(p *probe, _ *Context, _ *ipc.Request, resp *ipc.Response) result.Code {
		resp.CopyHandle(p.event.Get())
		return result.Success
	}},
	Entry[*probe]{Code: 21, Name: "Spawn", Handler: func(p *probe, _ *Context, _ *ipc.Request, resp *ipc.Response) result.Code {
		p.spawned = &probe{}
		resp.MoveHandle(p.spawned)
		return result.Success
	}},
	Entry[*probe]{Code: 24, Name: "Pair", Handler: func(p *probe, _ *Context, _ *ipc.Request, resp *ipc.Response) result.Code {
		p.spawned = &probe{}
		resp.CopyHandle(p.event.Get())
		resp.MoveHandle(p.spawned)
		return result.Success
	}},
	Entry[*probe]{Code: 22, Name: "EventThenFail", Handler: func(p *probe, _ *Context, _ *ipc.Request, resp *ipc.Response) result.Code {
		resp.U32(1)
		resp.CopyHandle(p.event.Get())
		return result.OutOfResource
	}},
	Entry[*probe]{Code: 23, Name: "Overflow", Handler: func(_ *probe, _ *Context, _ *ipc.Request, resp *ipc.Response) result.Code {
		for i := 0; i < 100; i++ {
			resp.U64(uint64(i))
		}
		return result.Success
	}},
	Entry[*probe]{Code: 30, Name: "Panic", Handler: func(_ *probe, _ *Context, _ *ipc.Request, _ *ipc.Response) result.Code {
		panic("boom")
	}},
	Entry[*probe]{Code: 31, Name: "TakeEvent", Handler: func(p *probe, _ *Context, req *ipc.Request, resp *ipc.Response) result.Code {
		obj := req.Object(kernel.KindEvent)
		if rc := req.Result(); rc.Failed() {
			return rc
		}
		resp.Bool(obj.(*kernel.Event) == p.event.Peek())
		return result.Success
	}},
)

// testEnv is a minimal Env over a private handle table.
type testEnv struct {
	table  *kernel.HandleTable
	shared map[string]Service
}

func newTestEnv(limit int) *testEnv {
	return &testEnv{table: kernel.NewHandleTable(limit), shared: map[string]Service{}}
}

func (e *testEnv) Handles() *kernel.HandleTable { return e.table }

func (e *testEnv) Shared(name string) (Service, error) {
	if svc, ok := e.shared[name]; ok {
		return svc, nil
	}
	return nil, errors.NotFound(errors.PhaseDispatch, "service", name)
}
