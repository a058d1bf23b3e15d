// Package ipc provides the message envelopes and the bounds-checked views
// handlers use to decode requests and encode responses.
//
// # Envelopes
//
// A Call carries a function code, a raw little-endian argument payload and
// a list of input handles. A Reply carries the result code, the raw output
// payload and the handles installed for the caller:
//
//	call := &ipc.Call{Command: 0x3E, Payload: []byte{7, 0, 0, 0}}
//
// EncodeCall/DecodeCall and EncodeReply/DecodeReply convert envelopes to
// and from the flat wire format used across the guest bridge.
//
// # Views
//
// Request and Response are single-use cursors created for one call. Reads
// and writes advance monotonically and are checked against the declared
// length; the first violation latches an error and every later access
// fails. Once the call completes the views are released and refuse further
// use:
//
//	ext := req.U32()
//	if rc := req.Result(); rc.Failed() {
//	    return rc
//	}
//	resp.U64(layerID)
//
// # Layout
//
// Command field descriptors are WIT primitive types (wit.U8, wit.U32, ...).
// Width, Size, EncodeArgs and DecodeValues compute and apply the fixed
// little-endian layout those descriptors imply.
package ipc
