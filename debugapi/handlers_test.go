package debugapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
	"github.com/wippyai/hle/services"
	"github.com/wippyai/hle/services/am"
	"github.com/wippyai/hle/trace"
)

type testServer struct {
	reg *service.Registry
	srv *httptest.Server
}

func newTestServer(t *testing.T, withStore bool) *testServer {
	t.Helper()
	reg := service.NewRegistry(service.Options{})
	require.NoError(t, services.Install(reg, services.Options{}))
	t.Cleanup(func() { _ = reg.Shutdown() })

	var store TraceStore
	if withStore {
		st, err := trace.Open(context.Background(), filepath.Join(t.TempDir(), "trace.db"), zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		reg.Observe(st.Observer(reg.ID()))
		store = st
	}

	srv := httptest.NewServer(New(Config{}, reg, nil, store, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return &testServer{reg: reg, srv: srv}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) open(t *testing.T, name string) uint32 {
	t.Helper()
	var info SessionInfo
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/sessions", OpenSessionRequest{Service: name}, &info))
	return info.Handle
}

func (ts *testServer) call(t *testing.T, h uint32, req CallRequest) CallResponse {
	t.Helper()
	var resp CallResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, fmt.Sprintf("/sessions/%d/call", h), req, &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, false)
	var resp HealthzResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil, &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ts.reg.ID().String(), resp.Registry)
	assert.Equal(t, len(services.Catalog(services.Options{})), resp.Services)
}

func TestListServices(t *testing.T) {
	ts := newTestServer(t, false)
	var out []ServiceSummary
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/services", nil, &out))

	byName := map[string]ServiceSummary{}
	for _, s := range out {
		byName[s.Name] = s
	}
	assert.True(t, byName[am.Port].Port)
	assert.False(t, byName[services.SelfController].Port)
}

func TestGetService(t *testing.T) {
	ts := newTestServer(t, false)
	var detail ServiceDetail
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/services/"+services.SelfController, nil, &detail))

	assert.Equal(t, "ISelfController", detail.Interface)
	assert.Contains(t, detail.Fingerprint, "blake3:")
	require.Len(t, detail.Commands, 23)

	var ext CommandInfo
	for _, c := range detail.Commands {
		if c.Code == 0x3E {
			ext = c
		}
	}
	assert.Equal(t, "SetIdleTimeDetectionExtension", ext.Name)
	assert.Equal(t, "(u32)", ext.In)
	assert.Equal(t, 4, ext.InSize)

	var e ErrorResponse
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/services/nope", nil, &e))
}

func TestSessionCallFlow(t *testing.T) {
	ts := newTestServer(t, false)
	port := ts.open(t, am.Port)

	resp := ts.call(t, port, CallRequest{Command: 0, Args: []string{"0x51"}})
	require.Equal(t, "Success", resp.Result)
	require.Len(t, resp.MoveHandles, 1)

	resp = ts.call(t, resp.MoveHandles[0], CallRequest{Command: 1})
	require.Len(t, resp.MoveHandles, 1)
	self := resp.MoveHandles[0]

	resp = ts.call(t, self, CallRequest{Command: 0x3E, Args: []string{"7"}})
	assert.Equal(t, uint32(0), resp.Code)

	resp = ts.call(t, self, CallRequest{Command: 0x3F})
	assert.Equal(t, "07000000", resp.Payload)
	require.Len(t, resp.Values, 1)
	assert.EqualValues(t, 7, resp.Values[0])

	resp = ts.call(t, self, CallRequest{Command: 0x3E, Payload: "0700"})
	assert.Equal(t, uint32(result.InvalidRequestSize), resp.Code)

	resp = ts.call(t, self, CallRequest{Command: 0x999})
	assert.Equal(t, uint32(result.UnknownCommandID), resp.Code)
	assert.Empty(t, resp.Payload)

	var sessions []SessionInfo
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/sessions", nil, &sessions))
	assert.Len(t, sessions, 3)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, fmt.Sprintf("/sessions/%d", self), nil, nil))
	var e ErrorResponse
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, fmt.Sprintf("/sessions/%d", self), nil, &e))
}

func TestCallErrors(t *testing.T) {
	ts := newTestServer(t, false)
	var e ErrorResponse

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/sessions/abc/call", CallRequest{}, &e))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/sessions/99/call", CallRequest{}, &e))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/sessions", OpenSessionRequest{Service: "nope"}, &e))

	port := ts.open(t, am.Port)
	path := fmt.Sprintf("/sessions/%d/call", port)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, path, CallRequest{Payload: "zz"}, &e))
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, path, CallRequest{Command: 0, Args: []string{"x"}}, &e))
}

func TestTraceEndpoints(t *testing.T) {
	ts := newTestServer(t, true)
	h := ts.open(t, "caps:su")

	ts.call(t, h, CallRequest{Command: 0x20, Args: []string{"0", "0"}})
	ts.call(t, h, CallRequest{Command: 0x77})

	var calls []TraceCall
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/trace/calls?limit=10", nil, &calls))
	require.Len(t, calls, 2)
	assert.Equal(t, uint32(0x77), calls[0].Command)
	assert.False(t, calls[0].Known)

	var unknown []CommandCountResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/trace/unknown", nil, &unknown))
	require.Len(t, unknown, 1)
	assert.Equal(t, 1, unknown[0].Count)

	var snap SnapshotResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/snapshot", nil, &snap))
	assert.Contains(t, snap.Digest, "blake3:")
	assert.Positive(t, snap.Bytes)

	var e ErrorResponse
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/trace/calls?limit=-1", nil, &e))
}

func TestTraceDisabled(t *testing.T) {
	ts := newTestServer(t, false)
	var e ErrorResponse
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/trace/calls", nil, &e))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/snapshot", nil, &e))
}
