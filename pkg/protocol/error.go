package protocol

import (
	"errors"
	"fmt"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// Temporary returns true if the operation failed because of a spurious interruption and may
	// be retried immediately at the call site that produced it.
	Temporary() bool

	// Timeout returns true if the operation did not complete before the configured timeout. The
	// socket remains open and the operation may be retried.
	Timeout() bool
}

// ErrorKind is the portable classification of a native socket failure. ErrorKind values are
// themselves errors, so callers can write errors.Is(err, protocol.Closed).
type ErrorKind int

const (
	InvalidAddress ErrorKind = iota + 1
	InvalidState
	AddressInUse
	PermissionDenied
	ResourceExhausted
	ConnectionRefused
	HostUnreachable
	Timeout
	Interrupted
	BrokenPipe
	Closed
	Unsupported
	AlreadyConnected
)

var kindMessages = map[ErrorKind]string{
	InvalidAddress:    "invalid address",
	InvalidState:      "invalid socket state",
	AddressInUse:      "address already in use",
	PermissionDenied:  "permission denied",
	ResourceExhausted: "no socket resources available",
	ConnectionRefused: "connection refused",
	HostUnreachable:   "host unreachable",
	Timeout:           "operation timed out",
	Interrupted:       "operation interrupted",
	BrokenPipe:        "broken pipe",
	Closed:            "use of closed socket",
	Unsupported:       "operation not supported",
	AlreadyConnected:  "socket already connected",
}

func (k ErrorKind) Error() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return fmt.Sprintf("unknown socket error kind %d", int(k))
}

func (k ErrorKind) Temporary() bool {
	return k == Interrupted
}

func (k ErrorKind) Timeout() bool {
	return k == Timeout
}

// SocketError records the operation that failed, its portable classification, and the native
// error (if any) that caused it.
type SocketError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError returns a *SocketError. The native error err may be nil.
func NewError(kind ErrorKind, op string, err error) error {
	return &SocketError{Kind: kind, Op: op, Err: err}
}

func (e *SocketError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the ErrorKind of e.
func (e *SocketError) Is(target error) bool {
	if kind, ok := target.(ErrorKind); ok {
		return kind == e.Kind
	}
	return false
}

func (e *SocketError) Temporary() bool {
	return e.Kind.Temporary()
}

func (e *SocketError) Timeout() bool {
	return e.Kind.Timeout()
}

// KindOf returns the ErrorKind carried by err, or 0 if err does not carry one.
func KindOf(err error) ErrorKind {
	var sockErr *SocketError
	if errors.As(err, &sockErr) {
		return sockErr.Kind
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return 0
}

// Temporary returns true if err indicates a spurious interruption.
func Temporary(err error) bool {
	var e Error
	if errors.As(err, &e) && e.Temporary() {
		return true
	}
	return false
}

// IsTimeout returns true if err indicates a timed-out operation on a socket that is still open.
func IsTimeout(err error) bool {
	var e Error
	if errors.As(err, &e) && e.Timeout() {
		return true
	}
	return false
}

// ShouldRetry returns true if the client should immediately reissue the operation that
// triggered err. Only Interrupted qualifies; timeouts are left to the caller's policy.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return Temporary(err)
}
