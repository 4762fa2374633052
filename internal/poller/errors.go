package poller

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three failure classes. A [FetchError] unwraps to
// exactly one of them, so callers can use errors.Is.
var (
	// ErrTransport covers connection, timeout and body read failures.
	ErrTransport = errors.New("transport failure")

	// ErrProtocol covers any HTTP status other than 200.
	ErrProtocol = errors.New("unexpected HTTP status")

	// ErrSchema covers invalid JSON and missing or mistyped fields.
	ErrSchema = errors.New("unexpected response shape")
)

// FailureKind names the failure class of a [FetchError].
type FailureKind string

const (
	KindTransport FailureKind = "transport"
	KindProtocol  FailureKind = "protocol"
	KindSchema    FailureKind = "schema"
)

// sentinel maps a kind to its sentinel error.
func (k FailureKind) sentinel() error {
	switch k {
	case KindProtocol:
		return ErrProtocol
	case KindSchema:
		return ErrSchema
	default:
		return ErrTransport
	}
}

// FetchError describes why a single server was dropped from a cycle.
type FetchError struct {
	// Address is the server address as configured (host:port).
	Address string

	// Path is the remote endpoint that failed ("/system_stats" or "/queue").
	// Empty when the address itself could not be turned into a URL.
	Path string

	// Kind is the failure class.
	Kind FailureKind

	// StatusCode is the HTTP status for protocol failures, zero otherwise.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s%s: %s: %v", e.Address, e.Path, e.Kind.sentinel(), e.Err)
}

// Unwrap exposes both the kind's sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}
