package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error surfaced by the coordinator
type Kind string

const (
	// KindNotFound means no such vector or database exists
	KindNotFound Kind = "not_found"

	// KindDimensionMismatch means a vector or probe length does not match
	// the declared database dimension
	KindDimensionMismatch Kind = "dimension_mismatch"

	// KindUnavailable means no reachable shard can serve the request
	KindUnavailable Kind = "unavailable"

	// KindTimeout means the deadline expired before the request completed
	KindTimeout Kind = "timeout"

	// KindInvalidConfig means a submitted cluster config was rejected
	KindInvalidConfig Kind = "invalid_config"

	// KindConflict means a database already exists with a different dimension
	KindConflict Kind = "conflict"

	// KindProtocol means a storage node returned a malformed response
	KindProtocol Kind = "protocol"

	// KindInternal is an unexpected failure
	KindInternal Kind = "internal"
)

// Error carries a kind alongside a message and an optional cause
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the kind from an error chain. Errors without an
// attached kind report KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
