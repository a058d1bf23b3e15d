package bridge

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hle"
	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/service"
)

// Config holds runtime settings for guests.
type Config struct {
	// MemoryLimitPages caps each guest memory in 64KB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages uint32
}

// Runner hosts guests that share one registry, i.e. one emulated process.
type Runner struct {
	runtime wazero.Runtime
	reg     *service.Registry
	log     *zap.Logger
}

// NewRunner creates a runtime and instantiates the "hle" host module
// backed by reg.
func NewRunner(ctx context.Context, reg *service.Registry, cfg *Config) (*Runner, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	log := Logger().With(zap.Stringer("registry", reg.ID()))
	h := &host{reg: reg, log: log}
	if _, err := h.instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseBridge, errors.KindNotInitialized, err, "instantiate host module")
	}
	return &Runner{runtime: rt, reg: reg, log: log}, nil
}

// Registry returns the registry guests call into.
func (r *Runner) Registry() *service.Registry { return r.reg }

// Load compiles and instantiates a guest module under name.
func (r *Runner) Load(ctx context.Context, name string, wasm []byte) (*Guest, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBridge, errors.KindInvalidData, err, "compile guest "+name)
	}
	mod, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBridge, errors.KindNotInitialized, err, "instantiate guest "+name)
	}
	r.log.Debug("guest loaded", zap.String("guest", name), zap.Uint32("memory", memorySize(mod)))
	return &Guest{mod: mod, name: name}, nil
}

// Close releases the runtime and every guest loaded into it.
func (r *Runner) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

func memorySize(mod api.Module) uint32 {
	if mem := mod.Memory(); mem != nil {
		return mem.Size()
	}
	return 0
}

// Guest is one instantiated guest module.
type Guest struct {
	mod  api.Module
	name string
}

// Name returns the module name given to Load.
func (g *Guest) Name() string { return g.name }

// Memory returns the guest's linear memory, or nil if it has none.
func (g *Guest) Memory() hle.Memory { return WrapMemory(g.mod.Memory()) }

// Call invokes an exported function.
func (g *Guest) Call(ctx context.Context, fn string, args ...uint64) ([]uint64, error) {
	f := g.mod.ExportedFunction(fn)
	if f == nil {
		return nil, errors.NotFound(errors.PhaseBridge, "export", fn)
	}
	res, err := f.Call(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBridge, errors.KindFault, err, g.name+"."+fn)
	}
	return res, nil
}

// Close releases the guest instance.
func (g *Guest) Close(ctx context.Context) error {
	return g.mod.Close(ctx)
}
