package graph

import (
	"fmt"

	"github.com/pkg/errors"
)

// Compilation errors. Every error returned by the gradient compiler wraps one
// of these, so callers can test with errors.Is.
var (
	ErrUnregisteredKind = errors.New("no gradient rule registered for operator kind")
	ErrMissingGrad      = errors.New("missing required gradient")
	ErrArityMismatch    = errors.New("operator arity mismatch")
	ErrUnboundInput     = errors.New("backward op reads a tensor that is not yet bound")
	ErrInvalidRule      = errors.New("gradient rule violated its contract")
	ErrSeedCount        = errors.New("seed gradients do not match targets")
	ErrDuplicateKind    = errors.New("operator kind already registered")
	ErrSealed           = errors.New("registry is sealed")
	ErrLifetime         = errors.New("tensor lifetime cannot be computed")
)

// Error carries the operator and tensor an error was detected on.
type Error struct {
	Err     error  // One of the Err* sentinels
	Op      string // Operator name, or kind when unnamed
	Tensor  string // Tensor involved, if any
	Details string
}

// NewError builds an Error for op. op may be nil.
func NewError(err error, op *OpDef, tensorName, format string, args ...any) *Error {
	e := &Error{Err: err, Tensor: tensorName, Details: fmt.Sprintf(format, args...)}
	if op != nil {
		e.Op = op.Kind()
		if op.Name() != "" {
			e.Op = op.Kind() + "/" + op.Name()
		}
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg += fmt.Sprintf(": op %q", e.Op)
	}
	if e.Tensor != "" {
		msg += fmt.Sprintf(": tensor %q", e.Tensor)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Unwrap returns the sentinel error.
func (e *Error) Unwrap() error { return e.Err }
