package async

import (
	"errors"
	"fmt"
)

// CancelledError is returned by Await when the awaited promise (or the
// fiber's cancellation token) was cancelled before settlement.
type CancelledError struct {
	Message string
}

func (e *CancelledError) Error() string {
	if e.Message != "" {
		return "async: cancelled: " + e.Message
	}
	return "async: cancelled"
}

// TimeoutError is the rejection reason produced by Timeout when its
// internal timer fires before the operand promise settles.
type TimeoutError struct {
	Seconds float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("async: timed out after %gs", e.Seconds)
}

// AggregateError collects the rejection reasons of every input to a
// combinator (Any) that rejected. Errors preserves input order.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("async: all %d promises were rejected", len(e.Errors))
}

// Unwrap exposes the wrapped errors for errors.Is/errors.As traversal.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// InvalidArgumentError signals a synchronously-detected misuse of a
// constructor or combinator (e.g. a non-positive concurrency limit).
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "async: invalid argument: " + e.Message
}

// NotInFiberError is returned by operations that require fiber context
// when called outside a fiber (e.g. ValidateFiberContext).
type NotInFiberError struct {
	Message string
}

func (e *NotInFiberError) Error() string {
	if e.Message != "" {
		return "async: not in fiber: " + e.Message
	}
	return "async: not in fiber"
}

// PanicError wraps a value recovered from a panic inside a fiber body,
// task callable, or promise continuation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("async: panic recovered: %v", e.Value)
}

// Unwrap allows errors.As/errors.Is to see through to a panic value that
// was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// GenericRejection wraps a rejection reason that is neither an error, a
// string, nor a fmt.Stringer, so that Await always has something
// implementing error to return.
type GenericRejection struct {
	Reason any
}

func (e *GenericRejection) Error() string {
	return fmt.Sprintf("async: rejected: %v", e.Reason)
}

// ErrLoopClosed reports a Loop that has been shut down. Loop has no
// shutdown operation, and nothing in this package returns this error.
var ErrLoopClosed = errors.New("async: loop is closed")

// ErrReentrantRun is returned when a blocking Await attempts to drive a
// Loop that is already being driven by another call frame.
var ErrReentrantRun = errors.New("async: loop is already running")

// normalizePanicValue converts a recovered panic value into an error,
// preserving an already-error value instead of double-wrapping it.
func normalizePanicValue(v any) error {
	if err, ok := v.(error); ok {
		return &PanicError{Value: err}
	}
	return &PanicError{Value: v}
}

// NormalizeReason converts a promise rejection reason into an error
// suitable for returning from Await. Reasons that are already errors pass
// through unchanged; strings and fmt.Stringer values become plain errors
// carrying that text; anything else (including nil) is wrapped in
// GenericRejection.
func NormalizeReason(reason any) error {
	switch v := reason.(type) {
	case nil:
		return &GenericRejection{Reason: nil}
	case error:
		return v
	case string:
		return errors.New(v)
	case fmt.Stringer:
		return errors.New(v.String())
	default:
		return &GenericRejection{Reason: reason}
	}
}
