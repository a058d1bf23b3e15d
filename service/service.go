package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hle/kernel"
)

// Service is a stateful service instance, one per client session. It lives
// in the caller's handle table as a session object and is locked by the
// dispatcher for the duration of each call.
type Service interface {
	kernel.Object
	sync.Locker
	Commands() Commands
}

// Base supplies the session kind and the per-instance lock. Embed it.
type Base struct {
	mu sync.Mutex
}

func (b *Base) Kind() kernel.ObjectKind { return kernel.KindSession }
func (b *Base) Lock()                   { b.mu.Lock() }
func (b *Base) Unlock()                 { b.mu.Unlock() }

// Env is what a handler may reach beyond its own instance: the caller's
// handle table and the shared services of the session.
type Env interface {
	Handles() *kernel.HandleTable
	Shared(name string) (Service, error)
}

// Factory creates a service instance.
type Factory func(env Env) (Service, error)

// Context carries per-call state into a handler.
type Context struct {
	ctx     context.Context
	env     Env
	logger  *zap.Logger
	service string
	code    FunctionCode
}

// NewContext builds a handler context. Dispatch creates one per call; tests
// may create their own to call handlers directly.
func NewContext(ctx context.Context, env Env, logger *zap.Logger) *Context {
	if logger == nil {
		logger = Logger()
	}
	return &Context{ctx: ctx, env: env, logger: logger}
}

// Ctx returns the call's context.
func (c *Context) Ctx() context.Context { return c.ctx }

// Env returns the session environment.
func (c *Context) Env() Env { return c.env }

// Logger returns a logger annotated with the service and command.
func (c *Context) Logger() *zap.Logger { return c.logger }

// Service returns the name of the service being called.
func (c *Context) Service() string { return c.service }

// Code returns the function code being called.
func (c *Context) Code() FunctionCode { return c.code }

func (c *Context) with(service string, code FunctionCode) *Context {
	cc := *c
	cc.service = service
	cc.code = code
	cc.logger = c.logger.With(zap.String("service", service), zap.Uint32("cmd", uint32(code)))
	return &cc
}
