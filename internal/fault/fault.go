// Package fault classifies the failures the analysis engine can produce.
//
// Callers branch on Kind rather than on concrete error types:
//   - Defect: a programming error (duplicate registry id, visitor invoked on the
//     wrong vertex kind, corrupt symbol table). Fatal to the current path or
//     entry point only.
//   - ResourceExhausted: a capacity limit was reached while expanding paths.
//     Recoverable at entry-point granularity.
//   - Misconfiguration: the environment cannot run an analysis at all.
//     Surfaced before any worker starts.
//   - Cancelled: timeout or shutdown. Not a failure of the analysis itself.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind tags an Error.
type Kind int

const (
	// KindUnknown is reported by KindOf for errors that carry no fault tag.
	KindUnknown Kind = iota
	KindDefect
	KindResourceExhausted
	KindMisconfiguration
	KindCancelled
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindDefect:
		return "defect"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindMisconfiguration:
		return "misconfiguration"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the single tagged error type used across the engine.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "registry.register"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Defect wraps a programming error.
func Defect(op string, format string, args ...any) error {
	return &Error{Kind: KindDefect, Op: op, Err: fmt.Errorf(format, args...)}
}

// Exhausted wraps a resource-exhaustion error.
func Exhausted(op string, err error) error {
	return &Error{Kind: KindResourceExhausted, Op: op, Err: err}
}

// Misconfigured wraps an environment misconfiguration.
func Misconfigured(op string, format string, args ...any) error {
	return &Error{Kind: KindMisconfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

// Cancelled wraps a context error (or any other interrupt cause).
func Cancelled(op string, err error) error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// KindOf returns the kind of the first fault.Error in err's chain.
// Bare context errors are reported as KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
