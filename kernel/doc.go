// Package kernel provides the host-side kernel objects exposed to guests:
// synchronization events and the per-process handle table.
//
// # Objects
//
// Anything installed in a handle table implements Object and reports its
// ObjectKind. Service sessions and events are the two kinds in use:
//
//	ev := kernel.NewEvent("launchable")
//	h, err := table.Insert(ev)
//
// # Handle Table
//
// HandleTable maps integer handles to objects. Handle 0 is reserved and
// always invalid. Lookups can be kind-checked:
//
//	obj, ok := table.GetTyped(h, kernel.KindEvent)
//
// The table enforces an optional capacity. Insert fails with an exhausted
// error once the limit is reached so a misbehaving guest cannot grow host
// memory without bound.
//
// # Observers
//
// Register observers to track handle lifecycle:
//
//	table.Subscribe(observer) // observer.OnHandleEvent(kernel.HandleEvent)
//
// # Events
//
// Event is a level-triggered signal. Waiters block in Wait until the event
// is signalled or their context ends; Clear resets it. Handlers never call
// Wait: waiting belongs to the guest's own wait primitive.
package kernel
