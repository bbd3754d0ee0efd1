// Package herr defines the closed set of error kinds used across
// Hearth's runtime fabric, so workers and the RPC layer can decide
// retry eligibility and the edge can map errors to status classes
// without string-sniffing.
package herr

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error categories from the error handling
// design: each maps to a retry/edge-surface policy, not to any one
// component's internal representation.
type Kind string

const (
	// Validation covers bad input to an entry point. Surfaces as a
	// 400-class failure at the edge.
	Validation Kind = "validation"
	// NotFound covers an id lookup miss. 404-class at the edge.
	NotFound Kind = "not_found"
	// Conflict covers a duplicate id or duplicate tool/task name.
	Conflict Kind = "conflict"
	// Transient covers IO failure to a store or the LLM facade.
	// Eligible for retry in worker contexts.
	Transient Kind = "transient"
	// Permanent covers a schema violation or malformed plan. Never
	// retried.
	Permanent Kind = "permanent"
	// Timeout covers a planner/tool wait, health probe, or LLM call
	// that ran past its deadline.
	Timeout Kind = "timeout"
	// Disabled covers a tool-set or tool that is administratively
	// disabled.
	Disabled Kind = "disabled"
	// Internal covers anything unexpected; always logged with
	// context, surfaced as a generic failure at the edge.
	Internal Kind = "internal"
)

// Error is a Kind-tagged error that wraps an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// Retryable reports whether a worker should retry after this error.
// Only Transient errors are retryable; everything else — including
// plain, unwrapped errors — is treated as terminal.
func Retryable(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == Transient
}
