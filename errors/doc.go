// Package errors provides structured error types for the binsize engine.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the absolute byte offset for parse
// failures, the display name of the item involved, and a cause chain.
//
// The taxonomy used across the engine:
//
//	KindUnrecognizedFormat   - input matches no supported binary format
//	KindMalformed            - structurally invalid input at a known offset
//	KindItemNotReachable     - path query against a garbage item (recoverable)
//	KindDebugInfoUnavailable - DWARF missing or unusable (soft, never fatal)
//
// Use the Builder for structured construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindMalformed).
//		Offset(0x1c).
//		Detail("section size exceeds input").
//		Build()
//
// Or the convenience constructors:
//
//	err := errors.Malformed(0x1c, "section size exceeds input")
//
// Matching with the standard library compares phase and kind only:
//
//	if stderrors.Is(err, errors.ErrMalformed) { ... }
package errors
