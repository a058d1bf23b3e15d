package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
)

// Registration declares a named service type in a registry.
type Registration struct {
	New  Factory
	Name string
	// Port makes the service connectable by name from the guest.
	Port bool
	// Shared keeps a single instance per registry, reachable through
	// Env.Shared and returned by every Open.
	Shared bool
}

// Options configures a registry.
type Options struct {
	Logger           *zap.Logger
	MaxHandles       int
	ResponseCapacity int
}

// Registry owns the service instances of one guest session collaborator:
// the handle table holding their sessions, the shared instances, and the
// registrations that create them. There is no process-wide registry.
type Registry struct {
	handles   *kernel.HandleTable
	logger    *zap.Logger
	regs      map[string]Registration
	shared    map[string]Service
	observers []CallObserver
	capacity  int
	id        uuid.UUID
	mu        sync.RWMutex
	closed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = Logger()
	}
	capacity := opts.ResponseCapacity
	if capacity <= 0 {
		capacity = ipc.DefaultResponseCapacity
	}
	id := uuid.New()
	return &Registry{
		id:       id,
		handles:  kernel.NewHandleTable(opts.MaxHandles),
		logger:   log.With(zap.String("registry", id.String())),
		regs:     make(map[string]Registration),
		shared:   make(map[string]Service),
		capacity: capacity,
	}
}

// ID identifies the registry in logs and traces.
func (r *Registry) ID() uuid.UUID { return r.id }

// Handles returns the session's handle table.
func (r *Registry) Handles() *kernel.HandleTable { return r.handles }

// Register adds a service type. Names are unique.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" || reg.New == nil {
		return errors.InvalidInput(errors.PhaseRegister, "registration needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.regs[reg.Name]; dup {
		return errors.New(errors.PhaseRegister, errors.KindDuplicate).
			Service(reg.Name).Detail("service %q already registered", reg.Name).Build()
	}
	r.regs[reg.Name] = reg
	return nil
}

// Registrations lists the registered service types ordered by name.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	out := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[name]
	return reg, ok
}

// Observe adds a call observer.
func (r *Registry) Observe(o CallObserver) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Shared returns the registry's single instance of a shared service,
// creating it on first request.
func (r *Registry) Shared(name string) (Service, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, errors.Closed(errors.PhaseDispatch, "registry")
	}
	if svc, ok := r.shared[name]; ok {
		r.mu.RUnlock()
		return svc, nil
	}
	reg, ok := r.regs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseDispatch, "service", name)
	}
	if !reg.Shared {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Service(name).Detail("service %q is not shared", name).Build()
	}

	// Factories may resolve other shared services, so create unlocked and
	// keep whichever instance lands first.
	svc, err := reg.New(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindNotInitialized, err, "create "+name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.shared[name]; ok {
		if d, ok := svc.(kernel.Dropper); ok {
			d.Drop()
		}
		return existing, nil
	}
	r.shared[name] = svc
	return svc, nil
}

// Instantiate creates an instance of a registered service, or returns the
// shared instance for shared services. The instance is not placed in the
// handle table.
func (r *Registry) Instantiate(name string) (Service, error) {
	reg, ok := r.Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseDispatch, "service", name)
	}
	if reg.Shared {
		return r.Shared(name)
	}
	svc, err := reg.New(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindNotInitialized, err, "create "+name)
	}
	return svc, nil
}

// Open connects to a port by name and returns the new session handle.
func (r *Registry) Open(name string) (kernel.Handle, error) {
	reg, ok := r.Lookup(name)
	if !ok || !reg.Port {
		return 0, errors.NotFound(errors.PhaseDispatch, "port", name)
	}
	svc, err := r.Instantiate(name)
	if err != nil {
		return 0, err
	}
	return r.Attach(svc)
}

// Attach places an existing instance in the handle table.
func (r *Registry) Attach(svc Service) (kernel.Handle, error) {
	h, err := r.handles.Insert(svc)
	if err != nil {
		if d, ok := svc.(kernel.Dropper); ok {
			d.Drop()
		}
		return 0, err
	}
	return h, nil
}

// Service resolves a session handle.
func (r *Registry) Service(h kernel.Handle) (Service, error) {
	obj, err := r.handles.Resolve(h, kernel.KindSession)
	if err != nil {
		return nil, err
	}
	svc, ok := obj.(Service)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseDispatch, uint32(h), "session is not a service")
	}
	return svc, nil
}

// Call dispatches call on the session named by h. The error is non-nil only
// when h does not name a session; every dispatched call yields a reply.
func (r *Registry) Call(ctx context.Context, h kernel.Handle, call *ipc.Call) (*ipc.Reply, error) {
	svc, err := r.Service(h)
	if err != nil {
		return nil, err
	}
	reply, info := dispatch(ctx, r, svc, call, r.capacity, r.logger)

	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, o := range observers {
		o.OnCall(ctx, info)
	}
	return reply, nil
}

// Close removes a handle from the session's table.
func (r *Registry) Close(h kernel.Handle) error {
	if _, ok := r.handles.Remove(h); !ok {
		return errors.InvalidHandle(errors.PhaseKernel, uint32(h), "close")
	}
	return nil
}

// Shutdown closes the handle table and forgets shared instances.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	shared := r.shared
	r.shared = make(map[string]Service)
	r.mu.Unlock()

	err := r.handles.Close()
	for _, svc := range shared {
		if d, ok := svc.(kernel.Dropper); ok {
			d.Drop()
		}
	}
	return err
}
