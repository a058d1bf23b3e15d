// Package bridge lets WebAssembly guests issue IPC calls against a
// service registry.
//
// The host module "hle" exports five functions to guests:
//
//	connect(name_ptr, name_len, out_handle_ptr i32) -> i32
//	call(session, msg_ptr, msg_len, out_ptr, out_cap, out_len_ptr i32) -> i32
//	wait(handle i32, timeout_ns i64) -> i32
//	close(handle i32) -> i32
//	clear(handle i32) -> i32
//
// Every function returns a packed result code; zero is success. Messages
// use the ipc wire format. call writes the encoded reply to out_ptr and its
// length to out_len_ptr; when out_cap is too small only the length is
// written, ResponseTooLarge is returned and the reply's handles are closed.
// wait blocks until an event handle is signalled, with a negative timeout
// meaning no deadline. It is the only blocking operation in the framework.
// Events stay signalled until the guest resets them with clear.
//
// Client drives these imports through a synthesized trampoline guest, so a
// host program can exercise the same path a real guest takes.
package bridge
