//go:build linux

package shim

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/teslamotors/btsocket/pkg/protocol"
)

var errnoKinds = map[unix.Errno]protocol.ErrorKind{
	unix.EMFILE:  protocol.ResourceExhausted,
	unix.ENFILE:  protocol.ResourceExhausted,
	unix.ENOBUFS: protocol.ResourceExhausted,
	unix.ENOMEM:  protocol.ResourceExhausted,

	unix.EACCES: protocol.PermissionDenied,
	unix.EPERM:  protocol.PermissionDenied,

	unix.EAFNOSUPPORT:    protocol.Unsupported,
	unix.EPFNOSUPPORT:    protocol.Unsupported,
	unix.EPROTONOSUPPORT: protocol.Unsupported,
	unix.ESOCKTNOSUPPORT: protocol.Unsupported,
	unix.EOPNOTSUPP:      protocol.Unsupported,
	unix.ENODEV:          protocol.Unsupported,

	unix.EADDRINUSE:    protocol.AddressInUse,
	unix.EADDRNOTAVAIL: protocol.InvalidAddress,

	unix.ECONNREFUSED: protocol.ConnectionRefused,

	unix.EHOSTUNREACH: protocol.HostUnreachable,
	unix.EHOSTDOWN:    protocol.HostUnreachable,
	unix.ENETUNREACH:  protocol.HostUnreachable,
	unix.ENETDOWN:     protocol.HostUnreachable,

	unix.ETIMEDOUT: protocol.Timeout,
	unix.EAGAIN:    protocol.Timeout,

	unix.EINTR: protocol.Interrupted,

	unix.EPIPE:        protocol.BrokenPipe,
	unix.ECONNRESET:   protocol.BrokenPipe,
	unix.ECONNABORTED: protocol.BrokenPipe,

	unix.EBADF: protocol.Closed,

	unix.EISCONN:  protocol.AlreadyConnected,
	unix.EALREADY: protocol.AlreadyConnected,

	unix.ENOTCONN:     protocol.InvalidState,
	unix.EBADFD:       protocol.InvalidState,
	unix.EDESTADDRREQ: protocol.InvalidState,
	unix.ENOTSOCK:     protocol.InvalidState,
}

// EINVAL means different things depending on the call that produced it.
var einvalKinds = map[string]protocol.ErrorKind{
	OpBind:    protocol.InvalidAddress,
	OpConnect: protocol.InvalidAddress,
}

func errnoKind(op string, errno unix.Errno) protocol.ErrorKind {
	if errno == unix.EINVAL {
		if kind, ok := einvalKinds[op]; ok {
			return kind
		}
		return protocol.InvalidState
	}
	if kind, ok := errnoKinds[errno]; ok {
		return kind
	}
	return protocol.InvalidState
}

// classify converts a native error into a *protocol.SocketError. Errors that are already
// classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sockErr *protocol.SocketError
	if errors.As(err, &sockErr) {
		return err
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return protocol.NewError(errnoKind(op, errno), op, errno)
	}
	return protocol.NewError(protocol.InvalidState, op, err)
}
