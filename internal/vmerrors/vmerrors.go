// Package vmerrors models the VM's fatal error taxonomy: the interpreter has
// no recoverable error class, so every error constructed here carries the
// process exit code it must produce.
package vmerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which of spec's fatal error classes occurred.
type Kind string

const (
	// IllegalInstruction is raised when the interpreter dispatches an
	// opcode outside {0..5}.
	IllegalInstruction Kind = "illegal instruction"
	// IllegalPrimitive is raised when APPLY resolves to a primitive index
	// outside {0..19}.
	IllegalPrimitive Kind = "illegal primitive"
	// OutOfMemory is raised when a GC cycle fails to free enough ribs to
	// satisfy the allocation that triggered it.
	OutOfMemory Kind = "out of memory"
	// IOError is raised when getc/putc's underlying read or write fails.
	IOError Kind = "i/o error"
	// ArithmeticError is raised by primitive 17 (divide) on division by
	// zero.
	ArithmeticError Kind = "arithmetic error"
	// MalformedProgram is raised when the bootstrap decoder cannot make
	// sense of the input byte stream (spec.md scenario 1).
	MalformedProgram Kind = "malformed program"
)

// Error is the single error type the VM ever returns. It is always fatal:
// there is no recoverable error class in this system.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

// New constructs an *Error of the given kind, optionally wrapping cause with
// pkg/errors so the original stack trace survives.
func New(kind Kind, context string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Context: context, Cause: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Cause != nil && e.Context != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	case e.Context != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode maps the error's kind to the process exit status spec.md §6-7
// mandates. Illegal instructions and illegal primitives both use the single
// exit code 6 the reference spec gives to "illegal instruction"; everything
// else the VM cannot recover from (I/O, arithmetic, malformed input) exits 1,
// except out-of-memory, reserved as 7.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case IllegalInstruction, IllegalPrimitive:
		return 6
	case OutOfMemory:
		return 7
	default:
		return 1
	}
}

// Cause unwraps to the deepest underlying error, mirroring pkg/errors.Cause
// so callers can inspect the original sentinel (e.g. io.EOF) without caring
// about the wrapping this package and pkg/errors add.
func Cause(err error) error {
	return errors.Cause(err)
}
