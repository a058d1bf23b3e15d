// Package hosbinder implements the display binder driver ("dispdrv").
//
// The driver is a shared service: one instance per registry, reached by
// other services through a non-owning reference. It hands out managed
// display layer identifiers and exposes the binder's native event. Buffer
// queue transactions are not emulated.
package hosbinder
