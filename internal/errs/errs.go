// Package errs defines the stable error taxonomy used across the kanban
// core: every operation that can fail reports one of five kinds so the
// JSON-RPC layer can map it to a wire error without inspecting message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the five stable error categories.
type Kind string

const (
	InvalidArgument  Kind = "invalid-argument"
	NotFound         Kind = "not-found"
	PermissionDenied Kind = "permission-denied"
	Conflict         Kind = "conflict"
	Internal         Kind = "internal"
)

// Error carries a Kind plus a human-readable detail. It wraps an optional
// underlying cause so %w unwrapping keeps working through the stack.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

func new(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

func Invalid(format string, args ...any) *Error    { return new(InvalidArgument, format, args...) }
func NotFoundf(format string, args ...any) *Error  { return new(NotFound, format, args...) }
func Permission(format string, args ...any) *Error { return new(PermissionDenied, format, args...) }
func Conflictf(format string, args ...any) *Error  { return new(Conflict, format, args...) }
func Internalf(format string, args ...any) *Error  { return new(Internal, format, args...) }

func WrapInvalid(cause error, format string, args ...any) *Error {
	return wrap(InvalidArgument, cause, format, args...)
}
func WrapNotFound(cause error, format string, args ...any) *Error {
	return wrap(NotFound, cause, format, args...)
}
func WrapPermission(cause error, format string, args ...any) *Error {
	return wrap(PermissionDenied, cause, format, args...)
}
func WrapConflict(cause error, format string, args ...any) *Error {
	return wrap(Conflict, cause, format, args...)
}
func WrapInternal(cause error, format string, args ...any) *Error {
	return wrap(Internal, cause, format, args...)
}

// KindOf extracts the Kind from err, defaulting to Internal for anything
// that was not constructed through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
