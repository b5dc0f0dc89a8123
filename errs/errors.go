// Package errs defines the error vocabulary from spec.md §7: transport,
// middleware, abort, plugin-configuration, and lifecycle-hook errors.
//
// Grounded on the teacher's schemas.BifrostError / schemas.ErrorField
// split (core/schemas/bifrost.go): a single mostly-nil struct
// discriminated by which optional field is populated, rather than a
// sum-type/tagged-union encoding. Cause wraps the underlying error so
// errors.Is/errors.As work against it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error per spec.md §7's five error kinds.
type Kind string

const (
	KindTransport      Kind = "transport"
	KindMiddleware     Kind = "middleware"
	KindAbort          Kind = "abort"
	KindPluginConfig   Kind = "plugin_config"
	KindLifecycleHook  Kind = "lifecycle_hook"
)

// Error is the error type surfaced at execute()/lifecycle call
// boundaries (spec.md §7's propagation policy: "the core does not
// swallow errors").
type Error struct {
	Kind       Kind
	Message    string
	StatusCode *int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a *Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Transport wraps a transport-reported error (spec.md §7.1).
func Transport(statusCode *int, message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, StatusCode: statusCode, Cause: cause}
}

// Aborted constructs the error representing a cancelled request
// (spec.md §7.3): status 0, aborted true.
func Aborted() *Error {
	return &Error{Kind: KindAbort, Message: "request aborted"}
}

// IsAborted reports whether err represents a cancellation.
func IsAborted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindAbort
	}
	return false
}

// PluginConfig constructs a plugin-graph construction error (spec.md
// §7.4): unknown dependency or cycle.
func PluginConfig(message string) *Error {
	return &Error{Kind: KindPluginConfig, Message: message}
}

// LifecycleHook wraps an error raised synchronously from a lifecycle
// hook (spec.md §7.5).
func LifecycleHook(plugin string, cause error) *Error {
	return &Error{Kind: KindLifecycleHook, Message: fmt.Sprintf("lifecycle hook failed for plugin %q", plugin), Cause: cause}
}
