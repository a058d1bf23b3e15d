// Package service implements command dispatch for emulated OS services.
//
// A service type declares its commands once, as a data-driven Table of
// (FunctionCode, handler) entries. A service instance binds that table and
// receives calls through Dispatch, which resolves the code, runs the handler
// against fresh request and response views, and converts every outcome into
// a result code and a fully populated reply.
//
// Declaring a service:
//
//	type Counter struct {
//	    service.Base
//	    value uint32
//	}
//
//	var counterTable = service.MustTable("ICounter",
//	    service.Entry[*Counter]{Code: 0, Name: "Set", In: []wit.Type{wit.U32{}},
//	        Handler: func(s *Counter, _ *service.Context, req *ipc.Request, _ *ipc.Response) result.Code {
//	            v := req.U32()
//	            if rc := req.Result(); rc.Failed() {
//	                return rc
//	            }
//	            s.value = v
//	            return result.Success
//	        }},
//	)
//
//	func (s *Counter) Commands() service.Commands { return counterTable.Bind(s) }
//
// Instances are owned by a Registry, one per guest session collaborator.
// Nothing in this package is process-global except the logger.
//
// # Ownership
//
// LazyEvent is owned by the instance that embeds it. Ref is a non-owning
// reference to another service, resolved by name through the Env on first
// use; the referenced service's lifetime is governed by the registry.
package service
