// Package errors defines the structured error taxonomy shared by every
// component of the transaction index. Callers branch on Kind, never on
// error strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a closed taxonomy of error categories.
type Kind string

const (
	// InvalidInput covers address format, block range ordering, and
	// pagination bound violations.
	InvalidInput Kind = "invalid_input"
	// NotFound covers addresses with no known info or no persisted balance.
	NotFound Kind = "not_found"
	// Conflict covers uniqueness violations that are treated as success
	// for inserts performed under ON CONFLICT DO NOTHING.
	Conflict Kind = "conflict"
	// UpstreamTimeout covers an explorer query-timeout or an RPC deadline.
	UpstreamTimeout Kind = "upstream_timeout"
	// UpstreamTransient covers network errors, 5xx responses, and upstream
	// rate limiting.
	UpstreamTransient Kind = "upstream_transient"
	// UpstreamInvalid covers malformed upstream payloads.
	UpstreamInvalid Kind = "upstream_invalid"
	// StorageError covers a durable store that is unavailable or a
	// constraint violation other than Conflict.
	StorageError Kind = "storage_error"
	// CacheError covers a KV store that is unavailable. Never surfaced to
	// a caller; always downgraded to a cache miss.
	CacheError Kind = "cache_error"
	// Internal covers programmer errors.
	Internal Kind = "internal"
)

// httpStatus maps each Kind to the status code a hypothetical HTTP
// collaborator would use. The core never formats HTTP responses itself.
var httpStatus = map[Kind]int{
	InvalidInput:      http.StatusBadRequest,
	NotFound:          http.StatusNotFound,
	Conflict:          http.StatusConflict,
	UpstreamTimeout:   http.StatusGatewayTimeout,
	UpstreamTransient: http.StatusBadGateway,
	UpstreamInvalid:   http.StatusBadGateway,
	StorageError:      http.StatusInternalServerError,
	CacheError:        http.StatusInternalServerError,
	Internal:          http.StatusInternalServerError,
}

// Error is the structured error value every fallible package returns.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "resolver.resolve"
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s (%v)", e.Op, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap makes Error compatible with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver
// for chaining at the call site.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind of err, defaulting to Internal for errors that
// were not constructed through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// Is reports whether err (or something it wraps) is an Error of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// HTTPStatus returns the status code a hypothetical HTTP collaborator
// would map this error's Kind to.
func HTTPStatus(err error) int {
	status, ok := httpStatus[KindOf(err)]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

// IsRetryable reports whether the serving path or a worker should attempt
// a bounded retry rather than surfacing the error immediately.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case UpstreamTimeout, UpstreamTransient, StorageError:
		return true
	default:
		return false
	}
}
