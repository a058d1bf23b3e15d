// Package debugapi serves a JSON view of a service registry over HTTP:
// registered services and their dispatch tables, live sessions, ad hoc
// calls and the call trace.
package debugapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/trace"
)

// Caller delivers a call to a session. Both the registry and a bridge
// client satisfy it.
type Caller interface {
	Call(ctx context.Context, session kernel.Handle, call *ipc.Call) (*ipc.Reply, error)
}

// TraceStore is the part of the trace store the API reads and writes.
type TraceStore interface {
	Calls(ctx context.Context, limit int) ([]trace.Call, error)
	StubCounts(ctx context.Context) ([]trace.CommandCount, error)
	UnknownCounts(ctx context.Context) ([]trace.CommandCount, error)
	SaveSnapshot(ctx context.Context, registry string, state []byte) (string, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
}

// Server represents the HTTP API server
type Server struct {
	startedAt time.Time
	caller    Caller
	store     TraceStore
	reg       *service.Registry
	logger    *zap.Logger
	server    *http.Server
	config    Config
}

// New creates a server over reg. A nil caller calls the registry directly;
// a nil store disables the trace and snapshot endpoints.
func New(config Config, reg *service.Registry, caller Caller, store TraceStore, logger *zap.Logger) *Server {
	if caller == nil {
		caller = reg
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:    config,
		reg:       reg,
		caller:    caller,
		store:     store,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("debug API starting", zap.String("listen", s.config.Listen))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("debug API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Get("/services", s.handleListServices)
	r.Get("/services/{name}", s.handleGetService)

	r.Get("/sessions", s.handleListSessions)
	r.Post("/sessions", s.handleOpenSession)
	r.Post("/sessions/{handle}/call", s.handleCall)
	r.Delete("/sessions/{handle}", s.handleCloseSession)

	r.Get("/trace/calls", s.handleTraceCalls)
	r.Get("/trace/stubs", s.handleTraceStubs)
	r.Get("/trace/unknown", s.handleTraceUnknown)
	r.Post("/snapshot", s.handleSnapshot)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
