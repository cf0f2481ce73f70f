// Package crdterr defines the four error kinds the core surfaces to callers,
// per the engine's error handling design: InvalidPosition and
// ContainerTypeMismatch are caller mistakes, UnresolvedDependency is a
// recoverable condition, and Corruption is fatal.
package crdterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an engine error.
type Kind int

const (
	// InvalidPosition means a caller-supplied index exceeds the current
	// length of the target sequence. The caller must not retry without
	// adjusting the index; no mutation occurred.
	InvalidPosition Kind = iota
	// ContainerTypeMismatch means an operation was issued against a
	// container whose type does not support it.
	ContainerTypeMismatch
	// UnresolvedDependency means an import batch left changes pending
	// because their causal dependencies never arrived. Not fatal: a later
	// import carrying the missing changes may resolve it.
	UnresolvedDependency
	// Corruption means an internal invariant was violated (a stray Unknown
	// range in local state, a frontier disagreeing with the version
	// vector, malformed tree structure). Always fatal.
	Corruption
)

func (k Kind) String() string {
	switch k {
	case InvalidPosition:
		return "InvalidPosition"
	case ContainerTypeMismatch:
		return "ContainerTypeMismatch"
	case UnresolvedDependency:
		return "UnresolvedDependency"
	case Corruption:
		return "Corruption"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by the core. It carries a Kind
// so callers can branch on errors.As/Is without parsing messages.
type Error struct {
	Kind Kind
	msg  string
	// cause is populated by Wrap and printed by Error(), but Unwrap exposes
	// it so errors.Is/As still traverses through crdterr.Error.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, crdterr.ErrInvalidPosition) (or any sentinel
// below) match every *Error of the same Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an *Error of the given kind with a formatted message and no
// captured stack, for errors of any kind that have no cause to wrap.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a *Error of the given kind, wrapping cause with a captured
// stack trace via pkg/errors. Used for Corruption, where the stack is what
// makes the fatal error debuggable after the fact.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// Message-less sentinels, one per Kind, used with errors.Is for quick kind checks without
// constructing a comparison value by hand.
var (
	ErrInvalidPosition       = &Error{Kind: InvalidPosition}
	ErrContainerTypeMismatch = &Error{Kind: ContainerTypeMismatch}
	ErrUnresolvedDependency  = &Error{Kind: UnresolvedDependency}
	ErrCorruption            = &Error{Kind: Corruption}
)

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
