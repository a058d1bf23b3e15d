// Package errors provides structured host-side error types for hle.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Guest-visible failures are result codes (see package result);
// this package covers the Go side: table registration, handle table
// operations, configuration, the guest bridge and the trace store.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
//		Service("ISelfController").
//		Command(0x3E).
//		Detail("read of 4 bytes at offset 0 exceeds length 2").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseDecode, 8, 4, 0)
//	err := errors.Duplicate(errors.PhaseRegister, "ISelfController", 0x3E)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
