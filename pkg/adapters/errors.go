package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureClass separates provider errors the dispatcher may retry from
// those it must surface immediately.
type FailureClass string

const (
	FailureTransient FailureClass = "transient"
	FailurePermanent FailureClass = "permanent"
)

// Error is a classified provider failure.
type Error struct {
	Provider string
	Class    FailureClass
	Code     string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Code, e.Class)
	}
	return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Code, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable provider failure.
func Transient(provider, code string, err error) *Error {
	return &Error{Provider: provider, Class: FailureTransient, Code: code, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(provider, code string, err error) *Error {
	return &Error{Provider: provider, Class: FailurePermanent, Code: code, Err: err}
}

// IsTransient reports whether the dispatcher may retry after err.
// Deadline expiry and network timeouts count as transient; unclassified
// errors do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class == FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// Classify returns the failure class recorded on dispatch results.
func Classify(err error) FailureClass {
	if IsTransient(err) {
		return FailureTransient
	}
	return FailurePermanent
}
