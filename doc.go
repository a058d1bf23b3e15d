// Package hle provides command dispatch and message marshaling for
// high-level emulation of guest operating system services.
//
// A guest issues an IPC call against a session; the framework matches the
// call's function code to a registered handler, gives the handler
// bounds-checked request and response views, and returns a fully populated
// reply carrying a result code.
//
// # Architecture Overview
//
//	hle/                 Root package with the guest Memory interface
//	├── result/          Guest-visible result codes
//	├── errors/          Structured host errors (phase, kind)
//	├── kernel/          Handle table and synchronization events
//	├── ipc/             Call/reply envelopes, request and response views, wire codec
//	├── service/         Dispatch tables, dispatcher, registry, snapshots
//	├── services/        Emulated services (am, capsrv, hosbinder) and the catalog
//	├── config/          YAML configuration
//	├── trace/           SQLite call trace and snapshot store
//	├── bridge/          WebAssembly guests calling services through wazero
//	├── debugapi/        HTTP inspection API
//	└── cmd/hle/         Command line and interactive console
//
// # Quick Start
//
//	reg := service.NewRegistry(service.Options{})
//	if err := services.Install(reg, services.Options{}); err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Shutdown()
//
//	h, err := reg.Open("appletOE")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := reg.Call(ctx, h, &ipc.Call{Command: 0, Payload: pid})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(reply.Result)
//
// # Result Codes
//
// Every dispatched call yields a reply. Unknown function codes return
// result.UnknownCommandID, malformed requests return
// result.InvalidRequestSize or result.InvalidHandle, and handler panics are
// recovered into result.HandlerFault. Host-side failures are *errors.Error
// values mapped to result codes by result.FromError.
//
// # Thread Safety
//
// Registries, handle tables and events are safe for concurrent use. Each
// service instance is locked for the duration of a call, so calls on one
// session are serialized while calls on different sessions run in parallel.
package hle
