package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/services"
	"github.com/wippyai/hle/services/am"
)

type fixture struct {
	reg    *service.Registry
	runner *Runner
	client *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := service.NewRegistry(service.Options{})
	require.NoError(t, services.Install(reg, services.Options{}))

	runner, err := NewRunner(ctx, reg, &Config{MemoryLimitPages: 16})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = runner.Close(ctx)
		_ = reg.Shutdown()
	})

	client, err := NewClient(ctx, runner)
	require.NoError(t, err)
	return &fixture{reg: reg, runner: runner, client: client}
}

// selfController walks appletOE -> IApplicationProxy -> ISelfController.
func (f *fixture) selfController(t *testing.T) kernel.Handle {
	t.Helper()
	ctx := context.Background()
	port, err := f.client.Connect(ctx, am.Port)
	require.NoError(t, err)

	reply, err := f.client.Call(ctx, port, &ipc.Call{Command: 0, Payload: make([]byte, 8)})
	require.NoError(t, err)
	require.Equal(t, result.Success, reply.Result)
	require.Len(t, reply.MoveHandles, 1)

	reply, err = f.client.Call(ctx, reply.MoveHandles[0], &ipc.Call{Command: 1})
	require.NoError(t, err)
	require.Equal(t, result.Success, reply.Result)
	require.Len(t, reply.MoveHandles, 1)
	return reply.MoveHandles[0]
}

func TestClient_CallThroughGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	self := f.selfController(t)

	reply, err := f.client.Call(ctx, self, &ipc.Call{Command: 0x3E, Payload: []byte{7, 0, 0, 0}})
	require.NoError(t, err)
	require.Equal(t, result.Success, reply.Result)

	reply, err = f.client.Call(ctx, self, &ipc.Call{Command: 0x3F})
	require.NoError(t, err)
	assert.Equal(t, result.Success, reply.Result)
	assert.Equal(t, []byte{7, 0, 0, 0}, reply.Payload)

	reply, err = f.client.Call(ctx, self, &ipc.Call{Command: 0xFFFF})
	require.NoError(t, err)
	assert.Equal(t, result.UnknownCommandID, reply.Result)
	assert.Empty(t, reply.Payload)
}

func TestClient_ConnectUnknownPort(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Connect(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, result.NotFound, result.FromError(err))

	_, err = f.client.Connect(context.Background(), string(make([]byte, maxServiceName+1)))
	assert.Equal(t, result.NotFound, result.FromError(err))
}

func TestClient_WaitSignalledEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	self := f.selfController(t)

	reply, err := f.client.Call(ctx, self, &ipc.Call{Command: 0x9})
	require.NoError(t, err)
	require.Len(t, reply.CopyHandles, 1)

	require.NoError(t, f.client.Wait(ctx, reply.CopyHandles[0], 0))
}

func TestClient_WaitTimesOutThenWakes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	self := f.selfController(t)

	reply, err := f.client.Call(ctx, self, &ipc.Call{Command: 0x5B})
	require.NoError(t, err)
	require.Len(t, reply.CopyHandles, 1)
	ev := reply.CopyHandles[0]

	err = f.client.Wait(ctx, ev, 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, result.TimedOut, result.FromError(err))

	svc, err := f.reg.Service(self)
	require.NoError(t, err)
	go func() {
		time.Sleep(10 * time.Millisecond)
		svc.(*am.SelfController).AddSuspendedTicks(5)
	}()
	require.NoError(t, f.client.Wait(ctx, ev, -1))

	reply, err = f.client.Call(ctx, self, &ipc.Call{Command: 0x5A})
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0, 0, 0, 0, 0, 0, 0}, reply.Payload)
}

func TestClient_ClearRearmsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	self := f.selfController(t)

	reply, err := f.client.Call(ctx, self, &ipc.Call{Command: 0x5B})
	require.NoError(t, err)
	require.Len(t, reply.CopyHandles, 1)
	ev := reply.CopyHandles[0]

	svc, err := f.reg.Service(self)
	require.NoError(t, err)
	svc.(*am.SelfController).AddSuspendedTicks(1)
	require.NoError(t, f.client.Wait(ctx, ev, 0))
	require.NoError(t, f.client.Wait(ctx, ev, 0), "signal persists until cleared")

	require.NoError(t, f.client.Clear(ctx, ev))
	err = f.client.Wait(ctx, ev, 10*time.Millisecond)
	assert.Equal(t, result.TimedOut, result.FromError(err))

	svc.(*am.SelfController).AddSuspendedTicks(1)
	require.NoError(t, f.client.Wait(ctx, ev, 0))

	err = f.client.Clear(ctx, self)
	assert.Equal(t, result.InvalidHandle, result.FromError(err))
	err = f.client.Clear(ctx, 0xFFFF)
	assert.Equal(t, result.InvalidHandle, result.FromError(err))
}

func TestClient_WaitOnSession(t *testing.T) {
	f := newFixture(t)
	port, err := f.client.Connect(context.Background(), am.Port)
	require.NoError(t, err)

	err = f.client.Wait(context.Background(), port, time.Millisecond)
	assert.Equal(t, result.InvalidHandle, result.FromError(err))
}

func TestClient_Close(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	port, err := f.client.Connect(ctx, am.Port)
	require.NoError(t, err)
	require.Equal(t, 1, f.reg.Handles().Len())

	require.NoError(t, f.client.Close(ctx, port))
	assert.Equal(t, 0, f.reg.Handles().Len())

	err = f.client.Close(ctx, port)
	assert.Equal(t, result.InvalidHandle, result.FromError(err))

	_, err = f.client.Call(ctx, port, &ipc.Call{Command: 0})
	assert.Equal(t, result.InvalidHandle, result.FromError(err))
}

func TestHost_MalformedMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	port, err := f.client.Connect(ctx, am.Port)
	require.NoError(t, err)

	g := f.client.Guest()
	require.NoError(t, g.Memory().Write(scratchMessage, []byte{1, 2, 3}))
	res, err := g.Call(ctx, FuncCall, uint64(port), scratchMessage, 3, scratchReply, replyCap, scratchLen)
	require.NoError(t, err)
	assert.Equal(t, result.InvalidRequestSize, result.Code(api.DecodeU32(res[0])))
}

func TestHost_BadPointer(t *testing.T) {
	f := newFixture(t)
	g := f.client.Guest()

	res, err := g.Call(context.Background(), FuncConnect, 0xFFFFFFF0, 8, scratchHandle)
	require.NoError(t, err)
	assert.Equal(t, result.InvalidPointer, result.Code(api.DecodeU32(res[0])))
	assert.Equal(t, 0, f.reg.Handles().Len())
}

func TestHost_ReplyTooLargeDropsHandles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	port, err := f.client.Connect(ctx, am.Port)
	require.NoError(t, err)

	msg, err := ipc.EncodeCall(&ipc.Call{Command: 0, Payload: make([]byte, 8)})
	require.NoError(t, err)
	g := f.client.Guest()
	require.NoError(t, g.Memory().Write(scratchMessage, msg))

	res, err := g.Call(ctx, FuncCall, uint64(port), scratchMessage, uint64(len(msg)), scratchReply, 4, scratchLen)
	require.NoError(t, err)
	assert.Equal(t, result.ResponseTooLarge, result.Code(api.DecodeU32(res[0])))

	n, err := g.Memory().ReadU32(scratchLen)
	require.NoError(t, err)
	assert.Equal(t, uint32(20), n)
	assert.Equal(t, 1, f.reg.Handles().Len())
}

func TestRunner_LoadInvalidModule(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Load(context.Background(), "bad", []byte{0, 1, 2, 3})
	require.Error(t, err)
}

func TestGuest_MissingExport(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Guest().Call(context.Background(), "nope")
	require.Error(t, err)
}

func TestMemory_Bounds(t *testing.T) {
	f := newFixture(t)
	mem := f.client.Guest().Memory()
	require.Equal(t, uint32(65536), mem.Size())

	require.NoError(t, mem.WriteU32(8, 0xCAFEBABE))
	v, err := mem.ReadU32(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), v)

	_, err = mem.Read(mem.Size()-2, 4)
	assert.Equal(t, result.InvalidPointer, result.FromError(err))
	assert.Error(t, mem.Write(mem.Size(), []byte{1}))
	_, err = mem.ReadU32(mem.Size() - 3)
	assert.Error(t, err)
	assert.Error(t, mem.WriteU32(mem.Size()-3, 1))
}
