package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/hle/bridge"
	"github.com/wippyai/hle/config"
	"github.com/wippyai/hle/debugapi"
	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/services"
	"github.com/wippyai/hle/trace"
)

// host wires one registry to its optional trace store and bridge.
type host struct {
	cfg    *config.Config
	log    *zap.Logger
	reg    *service.Registry
	store  *trace.Store
	runner *bridge.Runner
	client *bridge.Client
	caller debugapi.Caller
}

func newHost(ctx context.Context, cfg *config.Config, log *zap.Logger, viaBridge bool) (*host, error) {
	service.SetLogger(log.Named("service"))
	bridge.SetLogger(log.Named("bridge"))

	reg := service.NewRegistry(service.Options{
		Logger:           log.Named("registry"),
		MaxHandles:       cfg.Kernel.MaxHandles,
		ResponseCapacity: cfg.IPC.ResponseCapacity,
	})
	if err := services.Install(reg, services.Options{
		Enabled:   cfg.Services.Enabled,
		MaxLayers: cfg.Display.MaxLayers,
	}); err != nil {
		return nil, err
	}
	h := &host{cfg: cfg, log: log, reg: reg, caller: reg}

	if cfg.Trace.Path != "" {
		store, err := trace.Open(ctx, cfg.Trace.Path, log.Named("trace"))
		if err != nil {
			h.close(ctx)
			return nil, err
		}
		h.store = store
		reg.Observe(store.Observer(reg.ID()))
	}

	if viaBridge {
		if err := h.startBridge(ctx); err != nil {
			h.close(ctx)
			return nil, err
		}
		h.caller = h.client
	}
	return h, nil
}

func (h *host) startBridge(ctx context.Context) error {
	if h.runner != nil {
		return nil
	}
	runner, err := bridge.NewRunner(ctx, h.reg, &bridge.Config{MemoryLimitPages: h.cfg.Bridge.MemoryLimitPages})
	if err != nil {
		return err
	}
	client, err := bridge.NewClient(ctx, runner)
	if err != nil {
		_ = runner.Close(ctx)
		return err
	}
	h.runner, h.client = runner, client
	return nil
}

// open returns a session on name. Ports are connected through the caller's
// path; internal interfaces are instantiated and attached directly.
func (h *host) open(ctx context.Context, name string) (kernel.Handle, error) {
	reg, ok := h.reg.Lookup(name)
	if ok && reg.Port && h.client != nil {
		return h.client.Connect(ctx, name)
	}
	if ok && reg.Port {
		return h.reg.Open(name)
	}
	svc, err := h.reg.Instantiate(name)
	if err != nil {
		return 0, err
	}
	return h.reg.Attach(svc)
}

// call encodes args against the command's input fields and sends it.
func (h *host) call(ctx context.Context, session kernel.Handle, code uint32, args []string) (*ipc.Reply, service.Command, bool, error) {
	svc, err := h.reg.Service(session)
	if err != nil {
		return nil, service.Command{}, false, err
	}
	cmd, known := svc.Commands().Lookup(service.FunctionCode(code))
	call := &ipc.Call{Command: code}
	if known {
		call.Payload, err = ipc.EncodeArgs(cmd.In, args)
		if err != nil {
			return nil, cmd, known, err
		}
	}
	reply, err := h.caller.Call(ctx, session, call)
	return reply, cmd, known, err
}

func (h *host) snapshot(ctx context.Context) (string, error) {
	if h.store == nil {
		return "", errors.NotInitialized(errors.PhaseConfig, "trace store")
	}
	data, err := h.reg.Snapshot()
	if err != nil {
		return "", err
	}
	return h.store.SaveSnapshot(ctx, h.reg.ID().String(), data)
}

func (h *host) close(ctx context.Context) {
	if h.runner != nil {
		_ = h.runner.Close(ctx)
	}
	_ = h.reg.Shutdown()
	if h.store != nil {
		_ = h.store.Close()
	}
}

func buildLogger(cfg config.LogConfig, tty bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format := cfg.Format
	if format == "" {
		format = "json"
		if tty {
			format = "console"
		}
	}
	var zc zap.Config
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func parseCode(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid command code %q", s)
	}
	return uint32(v), nil
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func formatReply(reply *ipc.Reply, cmd service.Command, known bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result: %s\n", reply.Result)
	if len(reply.Payload) > 0 {
		fmt.Fprintf(&b, "Payload: %s\n", hex.EncodeToString(reply.Payload))
	}
	if known && reply.Result.Succeeded() && len(cmd.Out) > 0 {
		if values, err := ipc.DecodeValues(cmd.Out, reply.Payload); err == nil {
			fmt.Fprintf(&b, "Values: %v %s\n", values, ipc.Signature(cmd.Out))
		}
	}
	if len(reply.CopyHandles) > 0 {
		fmt.Fprintf(&b, "Copy handles: %v\n", reply.CopyHandles)
	}
	if len(reply.MoveHandles) > 0 {
		fmt.Fprintf(&b, "Move handles: %v\n", reply.MoveHandles)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCommand(c service.Command) string {
	s := fmt.Sprintf("0x%02X %s%s", uint32(c.Code), c.Name, ipc.Signature(c.In))
	if len(c.Out) > 0 {
		s += " -> " + ipc.Signature(c.Out)
	}
	if c.Stub {
		s += " [stub]"
	}
	return s
}
