package services

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/services/hosbinder"
)

func newRegistry(t *testing.T, opts Options) *service.Registry {
	t.Helper()
	reg := service.NewRegistry(service.Options{})
	require.NoError(t, Install(reg, opts))
	t.Cleanup(func() { _ = reg.Shutdown() })
	return reg
}

func instances(t *testing.T, reg *service.Registry) map[string]service.Service {
	t.Helper()
	out := make(map[string]service.Service)
	for _, r := range reg.Registrations() {
		svc, err := reg.Instantiate(r.Name)
		require.NoError(t, err)
		out[r.Name] = svc
	}
	return out
}

func TestInstall(t *testing.T) {
	reg := newRegistry(t, Options{})
	var names []string
	for _, r := range reg.Registrations() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"IApplicationProxy", "ISelfController", "appletOE", "caps:su", "dispdrv"}, names)
}

func TestInstall_Enabled(t *testing.T) {
	reg := newRegistry(t, Options{Enabled: []string{"caps:su"}})
	_, ok := reg.Lookup("caps:su")
	assert.True(t, ok)
	_, ok = reg.Lookup("appletOE")
	assert.False(t, ok)
	_, ok = reg.Lookup(SelfController)
	assert.True(t, ok, "internal interfaces are always available")

	err := Install(service.NewRegistry(service.Options{}), Options{Enabled: []string{"nvdrv"}})
	assert.Error(t, err)
}

func TestEveryCommandDispatches(t *testing.T) {
	reg := newRegistry(t, Options{})
	ctx := context.Background()
	for name, svc := range instances(t, reg) {
		h, err := reg.Attach(svc)
		require.NoError(t, err)
		for _, cmd := range svc.Commands().List() {
			size, err := ipc.Size(cmd.In)
			require.NoError(t, err)
			reply, err := reg.Call(ctx, h, &ipc.Call{Command: uint32(cmd.Code), Payload: make([]byte, size)})
			require.NoError(t, err)
			assert.Equal(t, result.Success, reply.Result, "%s.%s", name, cmd.Name)

			outSize, err := ipc.Size(cmd.Out)
			require.NoError(t, err)
			assert.Len(t, reply.Payload, outSize, "%s.%s output layout", name, cmd.Name)
		}
	}
}

func TestUnknownCodeInEveryTable(t *testing.T) {
	reg := newRegistry(t, Options{})
	all := instances(t, reg)

	used := make(map[service.FunctionCode]bool)
	for _, svc := range all {
		for _, cmd := range svc.Commands().List() {
			used[cmd.Code] = true
		}
	}
	codes := []service.FunctionCode{0xFFFFFFFF, 0x7FFF}
	for c := service.FunctionCode(0); c < 0x100; c++ {
		if !used[c] {
			codes = append(codes, c)
			break
		}
	}

	ctx := context.Background()
	for name, svc := range all {
		h, err := reg.Attach(svc)
		require.NoError(t, err)
		for _, code := range codes {
			require.False(t, used[code])
			reply, err := reg.Call(ctx, h, &ipc.Call{Command: uint32(code)})
			require.NoError(t, err)
			assert.Equal(t, result.UnknownCommandID, reply.Result, "%s 0x%X", name, code)
			assert.Empty(t, reply.Payload)
			assert.Empty(t, reply.Handles())
		}
	}
}

func TestFingerprintsAreStable(t *testing.T) {
	a := instances(t, newRegistry(t, Options{}))
	b := instances(t, newRegistry(t, Options{}))
	for name, svc := range a {
		assert.Equal(t, svc.Commands().Fingerprint(), b[name].Commands().Fingerprint(), name)
	}
}

func TestCatalog_LayersFreedOnClose(t *testing.T) {
	reg := newRegistry(t, Options{})
	seen := make(map[uint64]bool)
	for session := 0; session < 3; session++ {
		svc, err := reg.Instantiate(SelfController)
		require.NoError(t, err)
		h, err := reg.Attach(svc)
		require.NoError(t, err)
		for i := 0; i < hosbinder.DefaultMaxLayers; i++ {
			reply, err := reg.Call(context.Background(), h, &ipc.Call{Command: 0x28})
			require.NoError(t, err)
			require.Equal(t, result.Success, reply.Result, "session %d call %d", session, i)
			id := binary.LittleEndian.Uint64(reply.Payload)
			require.False(t, seen[id], "layer %d issued twice", id)
			seen[id] = true
		}
		require.NoError(t, reg.Close(h))
	}
	assert.Len(t, seen, 3*hosbinder.DefaultMaxLayers)
}
