// Package errs defines the engine's contract-violation taxonomy.
//
// Every violation is returned to the caller as an *Error. Callers match the
// category with errors.Is against the sentinel values:
//
//	if errors.Is(err, errs.ErrBadInitState) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a contract violation.
type Kind int

const (
	KindUnknown Kind = iota
	// BadInitState: the component is (or is not) initialized/started when the
	// operation requires the opposite.
	BadInitState
	// BadState: valid operation, wrong state (double bind, release while bound,
	// commit with no active world).
	BadState
	// ThreadAffinityViolation: a GPU-affecting operation ran directly off the
	// GPU-affine goroutine.
	ThreadAffinityViolation
	// ResourceNotReady: draw/bind referencing an uncompiled or released resource.
	ResourceNotReady
)

func (k Kind) String() string {
	switch k {
	case BadInitState:
		return "bad init state"
	case BadState:
		return "bad state"
	case ThreadAffinityViolation:
		return "thread affinity violation"
	case ResourceNotReady:
		return "resource not ready"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching. They carry only a Kind.
var (
	ErrBadInitState     = &Error{Kind: BadInitState}
	ErrBadState         = &Error{Kind: BadState}
	ErrThreadAffinity   = &Error{Kind: ThreadAffinityViolation}
	ErrResourceNotReady = &Error{Kind: ResourceNotReady}
)

// Error is a contract violation raised by an engine component.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "scheduler.Start"
	Msg  string
	Err  error // optional cause
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. A sentinel with no
// Op/Msg matches every error of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
