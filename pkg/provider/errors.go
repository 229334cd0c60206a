package provider

import (
	"errors"
	"fmt"
	"sync"

	"github.com/omnidrive/omnidrive/pkg/metrics"
)

// Code categorizes adapter failures. API layers translate codes to their
// own status values; the orchestrator uses them to decide what is
// retryable (only CodeConnection is).
type Code int

const (
	// CodeConfig indicates invalid or missing provider configuration.
	// Raised before any connection attempt; never retried.
	CodeConfig Code = iota

	// CodeConnection indicates a transient transport failure (dial error,
	// dropped connection, timeout). Retryable at the chunk-transfer layer.
	CodeConnection

	// CodeNotFound indicates the remote entity does not exist.
	CodeNotFound

	// CodeUnsupported indicates the backend lacks the capability for this
	// operation. Callers should have consulted the registry's capability
	// descriptor first. Never downgraded to a no-op.
	CodeUnsupported

	// CodeConflict indicates the remote destination is already occupied.
	CodeConflict

	// CodeIO covers remaining backend failures (permission, corrupt
	// response, unexpected state). Not retried.
	CodeIO
)

func (c Code) String() string {
	switch c {
	case CodeConfig:
		return "config"
	case CodeConnection:
		return "connection"
	case CodeNotFound:
		return "not_found"
	case CodeUnsupported:
		return "unsupported"
	case CodeConflict:
		return "conflict"
	case CodeIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error wraps every failure crossing the adapter boundary with the backend
// identity and operation context needed for diagnostics. The underlying
// transport error stays reachable through Unwrap for logging but is never
// matched on by callers - they branch on Code.
type Error struct {
	// Backend is the backend type tag ("local", "ftp", "webdav", "s3",
	// "telegram").
	Backend string

	// Op is the adapter operation that failed ("upload_file", "move", ...).
	Op string

	// RemoteID is the remote id (or ids, comma-joined) involved, if any.
	RemoteID string

	// Code is the failure category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Err is the wrapped cause, typically a raw transport error.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s (%s)", e.Backend, e.Op, e.Message, e.Code)
	if e.RemoteID != "" {
		msg = fmt.Sprintf("%s %s %q: %s (%s)", e.Backend, e.Op, e.RemoteID, e.Message, e.Code)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// adapterFailures is built on first use so it lands in the metrics
// registry chosen at startup.
var adapterFailures = sync.OnceValue(metrics.NewAdapterMetrics)

// NewError builds an adapter error. Message falls back to the cause's text
// so call sites can pass an empty message when the cause says enough.
// Every error built here counts toward the adapter failure metric.
func NewError(backend, op, remoteID string, code Code, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	adapterFailures().OperationFailed(backend, code.String())
	return &Error{
		Backend:  backend,
		Op:       op,
		RemoteID: remoteID,
		Code:     code,
		Message:  message,
		Err:      cause,
	}
}

// IsCode reports whether err is an adapter *Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
