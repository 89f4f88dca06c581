package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseLoad      Phase = "load"      // format detection and parsing
	PhaseBuild     Phase = "build"     // graph construction
	PhaseAnalyze   Phase = "analyze"   // dominators and retained sizes
	PhaseQuery     Phase = "query"     // read-only queries
	PhaseCorrelate Phase = "correlate" // debug info and disassembly
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindUnrecognizedFormat   Kind = "unrecognized_format"
	KindMalformed            Kind = "malformed_binary"
	KindItemNotReachable     Kind = "item_not_reachable"
	KindDebugInfoUnavailable Kind = "debug_info_unavailable"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindUnsupported          Kind = "unsupported"
	KindInternal             Kind = "internal"
)

// NoOffset marks an error that is not tied to a byte position.
const NoOffset = -1

// Sentinels for errors.Is; matching compares phase and kind only.
var (
	ErrUnrecognizedFormat   = &Error{Phase: PhaseLoad, Kind: KindUnrecognizedFormat, Offset: NoOffset}
	ErrMalformed            = &Error{Phase: PhaseLoad, Kind: KindMalformed, Offset: NoOffset}
	ErrItemNotReachable     = &Error{Phase: PhaseQuery, Kind: KindItemNotReachable, Offset: NoOffset}
	ErrDebugInfoUnavailable = &Error{Phase: PhaseCorrelate, Kind: KindDebugInfoUnavailable, Offset: NoOffset}
)

// Error is the structured error type used throughout the engine
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Item   string
	Detail string
	Offset int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset 0x%x", e.Offset)
	}

	if e.Item != "" {
		b.WriteString(" for ")
		b.WriteString(e.Item)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: NoOffset,
		},
	}
}

// Offset sets the absolute byte offset in the input binary
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Item sets the display name of the item involved
func (b *Builder) Item(name string) *Builder {
	b.err.Item = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the engine's error taxonomy

// UnrecognizedFormat creates an error for input matching no supported format
func UnrecognizedFormat(detail string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindUnrecognizedFormat,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Malformed creates a structural parse error at an absolute offset
func Malformed(offset int, reason string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformed,
		Offset: offset,
		Detail: reason,
	}
}

// MalformedCause creates a structural parse error wrapping a lower-level cause
func MalformedCause(offset int, reason string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformed,
		Offset: offset,
		Detail: reason,
		Cause:  cause,
	}
}

// ItemNotReachable creates the recoverable error for path queries on garbage
func ItemNotReachable(item string) *Error {
	return &Error{
		Phase:  PhaseQuery,
		Kind:   KindItemNotReachable,
		Offset: NoOffset,
		Item:   item,
		Detail: "item is not reachable from any root",
	}
}

// DebugInfoUnavailable creates the soft error reported when DWARF is absent or unusable
func DebugInfoUnavailable(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCorrelate,
		Kind:   KindDebugInfoUnavailable,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Offset: NoOffset,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Offset: NoOffset,
		Detail: what,
	}
}

// Internal creates an invariant-violation error
func Internal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Offset: NoOffset,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}
