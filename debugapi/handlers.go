package debugapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/trace"
)

const defaultTraceLimit = 50

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		Registry:      s.reg.ID().String(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Handles:       s.reg.Handles().Len(),
		Services:      len(s.reg.Registrations()),
	})
}

// handleListServices handles GET /services.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	regs := s.reg.Registrations()
	out := make([]ServiceSummary, 0, len(regs))
	for _, reg := range regs {
		out = append(out, ServiceSummary{Name: reg.Name, Port: reg.Port, Shared: reg.Shared})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetService handles GET /services/{name}. Non-shared services are
// instantiated just to read their table and dropped again.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reg, ok := s.reg.Lookup(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "service not found")
		return
	}
	svc, err := s.reg.Instantiate(name)
	if err != nil {
		s.logger.Error("failed to instantiate service", zap.String("service", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to instantiate service")
		return
	}
	if d, ok := svc.(kernel.Dropper); ok && !reg.Shared {
		defer d.Drop()
	}

	cmds := svc.Commands()
	detail := ServiceDetail{
		Name:        reg.Name,
		Interface:   cmds.Name(),
		Fingerprint: cmds.Fingerprint(),
		Port:        reg.Port,
		Shared:      reg.Shared,
	}
	for _, c := range cmds.List() {
		detail.Commands = append(detail.Commands, commandInfo(c))
	}
	respondJSON(w, http.StatusOK, detail)
}

func commandInfo(c service.Command) CommandInfo {
	size, _ := ipc.Size(c.In)
	return CommandInfo{
		Name:   c.Name,
		Code:   uint32(c.Code),
		In:     ipc.Signature(c.In),
		Out:    ipc.Signature(c.Out),
		InSize: size,
		Stub:   c.Stub,
	}
}

// handleListSessions handles GET /sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	out := []SessionInfo{}
	s.reg.Handles().Each(func(h kernel.Handle, obj kernel.Object) bool {
		info := SessionInfo{Handle: uint32(h), Kind: obj.Kind().String()}
		if svc, ok := obj.(service.Service); ok {
			info.Interface = svc.Commands().Name()
		}
		out = append(out, info)
		return true
	})
	respondJSON(w, http.StatusOK, out)
}

// handleOpenSession handles POST /sessions.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h, err := s.reg.Open(req.Service)
	if err != nil {
		s.writeResultError(w, err)
		return
	}
	svc, err := s.reg.Service(h)
	if err != nil {
		s.writeResultError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, SessionInfo{
		Handle:    uint32(h),
		Kind:      kernel.KindSession.String(),
		Interface: svc.Commands().Name(),
	})
}

// handleCall handles POST /sessions/{handle}/call.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	h, ok := s.handleParam(w, r)
	if !ok {
		return
	}
	svc, err := s.reg.Service(h)
	if err != nil {
		s.writeResultError(w, err)
		return
	}

	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cmd, known := svc.Commands().Lookup(service.FunctionCode(req.Command))
	call := &ipc.Call{Command: req.Command}
	switch {
	case req.Payload != "":
		call.Payload, err = hex.DecodeString(req.Payload)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "payload must be hex")
			return
		}
	case known:
		call.Payload, err = ipc.EncodeArgs(cmd.In, req.Args)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, handle := range req.Handles {
		call.Handles = append(call.Handles, kernel.Handle(handle))
	}

	reply, err := s.caller.Call(r.Context(), h, call)
	if err != nil {
		s.writeResultError(w, err)
		return
	}

	resp := CallResponse{
		Result:      reply.Result.String(),
		Code:        uint32(reply.Result),
		Payload:     hex.EncodeToString(reply.Payload),
		CopyHandles: handleList(reply.CopyHandles),
		MoveHandles: handleList(reply.MoveHandles),
	}
	if known && reply.Result.Succeeded() {
		if values, err := ipc.DecodeValues(cmd.Out, reply.Payload); err == nil {
			resp.Values = values
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCloseSession handles DELETE /sessions/{handle}.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	h, ok := s.handleParam(w, r)
	if !ok {
		return
	}
	if err := s.reg.Close(h); err != nil {
		s.writeResultError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTraceCalls handles GET /trace/calls?limit=N.
func (s *Server) handleTraceCalls(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := defaultTraceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	calls, err := s.store.Calls(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read trace", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read trace")
		return
	}
	out := make([]TraceCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, TraceCall{
			At:      c.CreatedAt,
			ID:      c.ID,
			Service: c.Service,
			Name:    c.Name,
			Command: c.Command,
			Result:  c.Result.String(),
			Micros:  c.Duration.Microseconds(),
			Known:   c.Known,
			Stub:    c.Stub,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleTraceStubs handles GET /trace/stubs.
func (s *Server) handleTraceStubs(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	counts, err := s.store.StubCounts(r.Context())
	s.writeCounts(w, counts, err)
}

// handleTraceUnknown handles GET /trace/unknown.
func (s *Server) handleTraceUnknown(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	counts, err := s.store.UnknownCounts(r.Context())
	s.writeCounts(w, counts, err)
}

// handleSnapshot handles POST /snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	data, err := s.reg.Snapshot()
	if err != nil {
		s.logger.Error("failed to snapshot registry", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to snapshot registry")
		return
	}
	id := s.reg.ID().String()
	digest, err := s.store.SaveSnapshot(r.Context(), id, data)
	if err != nil {
		s.logger.Error("failed to save snapshot", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}
	respondJSON(w, http.StatusCreated, SnapshotResponse{Registry: id, Digest: digest, Bytes: len(data)})
}

func (s *Server) handleParam(w http.ResponseWriter, r *http.Request) (kernel.Handle, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, "handle"), 0, 32)
	if err != nil || v == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid handle")
		return 0, false
	}
	return kernel.Handle(v), true
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "trace store disabled")
		return false
	}
	return true
}

func (s *Server) writeCounts(w http.ResponseWriter, counts []trace.CommandCount, err error) {
	if err != nil {
		s.logger.Error("failed to read trace counts", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read trace")
		return
	}
	out := make([]CommandCountResponse, 0, len(counts))
	for _, c := range counts {
		out = append(out, CommandCountResponse{Service: c.Service, Name: c.Name, Command: c.Command, Count: c.Count})
	}
	respondJSON(w, http.StatusOK, out)
}

// writeResultError maps a host error through its result code.
func (s *Server) writeResultError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch result.FromError(err) {
	case result.NotFound, result.InvalidHandle:
		status = http.StatusNotFound
	case result.OutOfHandles, result.OutOfResource:
		status = http.StatusServiceUnavailable
	case result.SessionClosed:
		status = http.StatusGone
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func handleList(hs []kernel.Handle) []uint32 {
	if len(hs) == 0 {
		return nil
	}
	out := make([]uint32, len(hs))
	for i, h := range hs {
		out[i] = uint32(h)
	}
	return out
}
