package debugapi

import "time"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	Registry      string `json:"registry"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Handles       int    `json:"handles"`
	Services      int    `json:"services"`
}

// ServiceSummary is one entry of GET /services.
type ServiceSummary struct {
	Name   string `json:"name"`
	Port   bool   `json:"port"`
	Shared bool   `json:"shared"`
}

// CommandInfo describes one dispatch entry.
type CommandInfo struct {
	Name   string `json:"name"`
	In     string `json:"in"`
	Out    string `json:"out"`
	Code   uint32 `json:"code"`
	Stub   bool   `json:"stub,omitempty"`
	InSize int    `json:"in_size"`
}

// ServiceDetail is returned by GET /services/{name}.
type ServiceDetail struct {
	Name        string        `json:"name"`
	Interface   string        `json:"interface"`
	Fingerprint string        `json:"fingerprint"`
	Commands    []CommandInfo `json:"commands"`
	Port        bool          `json:"port"`
	Shared      bool          `json:"shared"`
}

// OpenSessionRequest is the body of POST /sessions.
type OpenSessionRequest struct {
	Service string `json:"service"`
}

// SessionInfo describes one live handle.
type SessionInfo struct {
	Kind      string `json:"kind"`
	Interface string `json:"interface,omitempty"`
	Handle    uint32 `json:"handle"`
}

// CallRequest is the body of POST /sessions/{handle}/call. Args are parsed
// against the command's input fields; Payload, hex encoded, is sent as is
// and wins when both are given.
type CallRequest struct {
	Payload string   `json:"payload,omitempty"`
	Args    []string `json:"args,omitempty"`
	Handles []uint32 `json:"handles,omitempty"`
	Command uint32   `json:"command"`
}

// CallResponse reports one reply.
type CallResponse struct {
	Result      string   `json:"result"`
	Payload     string   `json:"payload"`
	Values      []any    `json:"values,omitempty"`
	CopyHandles []uint32 `json:"copy_handles,omitempty"`
	MoveHandles []uint32 `json:"move_handles,omitempty"`
	Code        uint32   `json:"code"`
}

// TraceCall is one entry of GET /trace/calls.
type TraceCall struct {
	At      time.Time `json:"at"`
	ID      string    `json:"id"`
	Service string    `json:"service"`
	Name    string    `json:"name,omitempty"`
	Result  string    `json:"result"`
	Command uint32    `json:"command"`
	Micros  int64     `json:"duration_us"`
	Known   bool      `json:"known"`
	Stub    bool      `json:"stub,omitempty"`
}

// CommandCountResponse is one entry of the stub and unknown tallies.
type CommandCountResponse struct {
	Service string `json:"service"`
	Name    string `json:"name,omitempty"`
	Command uint32 `json:"command"`
	Count   int    `json:"count"`
}

// SnapshotResponse is returned by POST /snapshot.
type SnapshotResponse struct {
	Registry string `json:"registry"`
	Digest   string `json:"digest"`
	Bytes    int    `json:"bytes"`
}
