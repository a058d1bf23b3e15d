package am

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/services/am/mocks"
	"github.com/wippyai/hle/services/hosbinder"
)

type fixture struct {
	reg  *service.Registry
	self *SelfController
	h    kernel.Handle
}

func newFixture(t *testing.T, withDisplay bool) *fixture {
	t.Helper()
	reg := service.NewRegistry(service.Options{})
	if withDisplay {
		require.NoError(t, reg.Register(service.Registration{
			Name: hosbinder.Name, Port: true, Shared: true, New: hosbinder.Factory(64),
		}))
	}
	self := NewSelfController()
	h, err := reg.Attach(self)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Shutdown() })
	return &fixture{reg: reg, self: self, h: h}
}

func (f *fixture) call(t *testing.T, code uint32, payload ...byte) *ipc.Reply {
	t.Helper()
	reply, err := f.reg.Call(context.Background(), f.h, &ipc.Call{Command: code, Payload: payload})
	require.NoError(t, err)
	return reply
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestSelfController_IdleTimeDetectionExtension(t *testing.T) {
	f := newFixture(t, false)

	reply := f.call(t, 0x3E, le32(7)...)
	require.Equal(t, result.Success, reply.Result)
	assert.Empty(t, reply.Payload)

	reply = f.call(t, 0x3F)
	require.Equal(t, result.Success, reply.Result)
	assert.Equal(t, le32(7), reply.Payload)
}

func TestSelfController_SetGetRoundTrip(t *testing.T) {
	f := newFixture(t, false)

	for _, v := range []uint32{0, 1, 0x80000000, math.MaxUint32} {
		require.Equal(t, result.Success, f.call(t, 0x3E, le32(v)...).Result)
		assert.Equal(t, le32(v), f.call(t, 0x3F).Payload)
	}

	for _, v := range []byte{1, 0} {
		require.Equal(t, result.Success, f.call(t, 0x44, v).Result)
		assert.Equal(t, []byte{v}, f.call(t, 0x45).Payload)
	}
}

func TestSelfController_MalformedSetKeepsValue(t *testing.T) {
	f := newFixture(t, false)
	require.Equal(t, result.Success, f.call(t, 0x3E, le32(7)...).Result)

	reply := f.call(t, 0x3E, 9, 0)
	assert.Equal(t, result.InvalidRequestSize, reply.Result)
	assert.Equal(t, le32(7), f.call(t, 0x3F).Payload)

	assert.Equal(t, result.InvalidRequestSize, f.call(t, 0x44).Result)
	assert.Equal(t, []byte{0}, f.call(t, 0x45).Payload)
}

func TestSelfController_SuspendedTicks(t *testing.T) {
	f := newFixture(t, false)

	reply := f.call(t, 0x5A)
	require.Equal(t, result.Success, reply.Result)
	assert.Equal(t, make([]byte, 8), reply.Payload)

	evReply := f.call(t, 0x5B)
	require.Len(t, evReply.CopyHandles, 1)
	obj, ok := f.reg.Handles().GetTyped(evReply.CopyHandles[0], kernel.KindEvent)
	require.True(t, ok)
	ev := obj.(*kernel.Event)
	assert.False(t, ev.Signaled())

	f.self.AddSuspendedTicks(19200000)
	f.self.AddSuspendedTicks(0)
	assert.True(t, ev.Signaled())
	assert.Equal(t, uint64(1), ev.SignalCount())
	reply = f.call(t, 0x5A)
	assert.Equal(t, uint64(19200000), binary.LittleEndian.Uint64(reply.Payload))

	f.self.AddSuspendedTicks(math.MaxUint64)
	reply = f.call(t, 0x5A)
	assert.Equal(t, uint64(math.MaxUint64), binary.LittleEndian.Uint64(reply.Payload))
}

func TestSelfController_LaunchableEvent(t *testing.T) {
	f := newFixture(t, false)
	a := f.call(t, 0x9)
	b := f.call(t, 0x9)
	require.Len(t, a.CopyHandles, 1)
	require.Len(t, b.CopyHandles, 1)

	ea, _ := f.reg.Handles().GetTyped(a.CopyHandles[0], kernel.KindEvent)
	eb, _ := f.reg.Handles().GetTyped(b.CopyHandles[0], kernel.KindEvent)
	require.NotNil(t, ea)
	assert.Same(t, ea, eb)
	assert.True(t, ea.(*kernel.Event).Signaled())
}

func TestSelfController_ExitLocking(t *testing.T) {
	f := newFixture(t, false)
	require.Equal(t, result.Success, f.call(t, 0x1).Result)
	assert.True(t, f.self.ExitLocked())
	require.Equal(t, result.Success, f.call(t, 0x2).Result)
	assert.False(t, f.self.ExitLocked())

	assert.False(t, f.self.ExitRequested())
	require.Equal(t, result.Success, f.call(t, 0x0).Result)
	assert.True(t, f.self.ExitRequested())
}

func TestSelfController_Illuminance(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, []byte{0}, f.call(t, 0x43).Payload)

	reply := f.call(t, 0x47)
	require.Equal(t, result.Success, reply.Result)
	require.Len(t, reply.Payload, 8)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(reply.Payload))
	assert.Equal(t, ambientLux, math.Float32frombits(binary.LittleEndian.Uint32(reply.Payload[4:])))
}

func TestSelfController_StubsAreInert(t *testing.T) {
	f := newFixture(t, false)
	before, err := f.self.SnapshotState()
	require.NoError(t, err)

	stubs := selfControllerTable.Stubs()
	require.Len(t, stubs, 10)
	for _, code := range stubs {
		// stubs acknowledge regardless of the arguments supplied
		for _, payload := range [][]byte{nil, {1, 2, 3, 4}} {
			reply := f.call(t, uint32(code), payload...)
			assert.Equal(t, result.Success, reply.Result, "code 0x%X", code)
			assert.Empty(t, reply.Payload)
			assert.Empty(t, reply.Handles())
		}
	}

	after, err := f.self.SnapshotState()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSelfController_UnknownCommand(t *testing.T) {
	f := newFixture(t, false)
	for _, code := range []uint32{0x3, 0x11, 0x3D, 0x46, 0x83, 0xFFFF} {
		reply := f.call(t, code)
		assert.Equal(t, result.UnknownCommandID, reply.Result)
		assert.Empty(t, reply.Payload)
	}
}

func TestSelfController_CreateManagedDisplayLayer(t *testing.T) {
	f := newFixture(t, true)
	const n = 32
	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		reply := f.call(t, 0x28)
		require.Equal(t, result.Success, reply.Result)
		require.Len(t, reply.Payload, 8)
		id := binary.LittleEndian.Uint64(reply.Payload)
		assert.False(t, seen[id], "layer %d issued twice", id)
		seen[id] = true
	}
}

func TestSelfController_CreateManagedDisplayLayer_Exhausted(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 64; i++ {
		require.Equal(t, result.Success, f.call(t, 0x28).Result)
	}
	reply := f.call(t, 0x28)
	assert.Equal(t, result.TooManyLayers, reply.Result)
	assert.Empty(t, reply.Payload)
}

func TestSelfController_CreateManagedDisplayLayer_NoProvider(t *testing.T) {
	f := newFixture(t, false)
	reply := f.call(t, 0x28)
	assert.Equal(t, result.NotFound, reply.Result)
}

func TestSelfController_CreateManagedDisplayLayer_Provider(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mocks.NewMockLayerProvider(ctrl)
	gomock.InOrder(
		provider.EXPECT().CreateLayer(uint64(0)).Return(uint64(0x1234), nil),
		provider.EXPECT().CreateLayer(uint64(0)).Return(uint64(0), result.Wrap(result.TooManyLayers, nil)),
		provider.EXPECT().DestroyLayer(uint64(0x1234)).Return(nil),
	)

	f := newFixture(t, false)
	f.self.display.Set(provider)

	reply := f.call(t, 0x28)
	require.Equal(t, result.Success, reply.Result)
	assert.Equal(t, uint64(0x1234), binary.LittleEndian.Uint64(reply.Payload))

	reply = f.call(t, 0x28)
	assert.Equal(t, result.TooManyLayers, reply.Result)
	assert.Equal(t, []uint64{0x1234}, f.self.Layers())

	require.NoError(t, f.reg.Close(f.h))
	assert.Empty(t, f.self.Layers())
}

func TestSelfController_CloseReleasesLayers(t *testing.T) {
	reg := service.NewRegistry(service.Options{})
	require.NoError(t, reg.Register(service.Registration{
		Name: hosbinder.Name, Port: true, Shared: true, New: hosbinder.Factory(2),
	}))
	t.Cleanup(func() { _ = reg.Shutdown() })
	svc, err := reg.Shared(hosbinder.Name)
	require.NoError(t, err)
	driver := svc.(*hosbinder.Driver)

	seen := make(map[uint64]bool)
	for round := 0; round < 3; round++ {
		h, err := reg.Attach(NewSelfController())
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			reply, err := reg.Call(context.Background(), h, &ipc.Call{Command: 0x28})
			require.NoError(t, err)
			require.Equal(t, result.Success, reply.Result, "round %d", round)
			id := binary.LittleEndian.Uint64(reply.Payload)
			assert.False(t, seen[id], "layer %d issued twice", id)
			seen[id] = true
		}
		assert.Equal(t, 2, driver.Layers())
		require.NoError(t, reg.Close(h))
		assert.Equal(t, 0, driver.Layers())
	}
}

func TestSelfController_DropWithoutDisplay(t *testing.T) {
	s := NewSelfController()
	s.Drop()
	assert.Empty(t, s.Layers())
}

func TestSelfController_Snapshot(t *testing.T) {
	f := newFixture(t, false)
	require.Equal(t, result.Success, f.call(t, 0x3E, le32(11)...).Result)
	require.Equal(t, result.Success, f.call(t, 0x44, 1).Result)
	f.self.AddSuspendedTicks(5)

	snap, err := f.reg.Snapshot()
	require.NoError(t, err)

	require.Equal(t, result.Success, f.call(t, 0x3E, le32(0)...).Result)
	require.Equal(t, result.Success, f.call(t, 0x44, 0).Result)
	require.NoError(t, f.reg.Restore(snap))

	assert.Equal(t, le32(11), f.call(t, 0x3F).Payload)
	assert.Equal(t, []byte{1}, f.call(t, 0x45).Payload)
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(f.call(t, 0x5A).Payload))
}

func TestSelfController_RestoreSignalsTickChange(t *testing.T) {
	f := newFixture(t, false)
	snap, err := f.reg.Snapshot()
	require.NoError(t, err)

	ev := f.self.suspendedTickEvent.Get()
	f.self.AddSuspendedTicks(100)
	ev.Clear()

	require.NoError(t, f.reg.Restore(snap))
	assert.True(t, ev.Signaled(), "rewinding the tick value is a change")
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(f.call(t, 0x5A).Payload))

	ev.Clear()
	require.NoError(t, f.reg.Restore(snap))
	assert.False(t, ev.Signaled(), "unchanged value does not signal")
}
