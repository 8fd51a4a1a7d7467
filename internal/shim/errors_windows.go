//go:build windows

package shim

import (
	"errors"
	"syscall"

	"github.com/teslamotors/btsocket/pkg/protocol"
)

// winerror.h
const (
	wsaeintr             syscall.Errno = 10004
	wsaebadf             syscall.Errno = 10009
	wsaeacces            syscall.Errno = 10013
	wsaefault            syscall.Errno = 10014
	wsaeinval            syscall.Errno = 10022
	wsaemfile            syscall.Errno = 10024
	wsaewouldblock       syscall.Errno = 10035
	wsaeinprogress       syscall.Errno = 10036
	wsaealready          syscall.Errno = 10037
	wsaenotsock          syscall.Errno = 10038
	wsaedestaddrreq      syscall.Errno = 10039
	wsaeprototype        syscall.Errno = 10041
	wsaenoprotoopt       syscall.Errno = 10042
	wsaeprotonosupport   syscall.Errno = 10043
	wsaesocktnosupport   syscall.Errno = 10044
	wsaeopnotsupp        syscall.Errno = 10045
	wsaepfnosupport      syscall.Errno = 10046
	wsaeafnosupport      syscall.Errno = 10047
	wsaeaddrinuse        syscall.Errno = 10048
	wsaeaddrnotavail     syscall.Errno = 10049
	wsaenetdown          syscall.Errno = 10050
	wsaenetunreach       syscall.Errno = 10051
	wsaenetreset         syscall.Errno = 10052
	wsaeconnaborted      syscall.Errno = 10053
	wsaeconnreset        syscall.Errno = 10054
	wsaenobufs           syscall.Errno = 10055
	wsaeisconn           syscall.Errno = 10056
	wsaenotconn          syscall.Errno = 10057
	wsaeshutdown         syscall.Errno = 10058
	wsaetimedout         syscall.Errno = 10060
	wsaeconnrefused      syscall.Errno = 10061
	wsaehostdown         syscall.Errno = 10064
	wsaehostunreach      syscall.Errno = 10065
	wsanotinitialised    syscall.Errno = 10093
	wsaserviceNotFound   syscall.Errno = 10108
	errorNotEnoughMemory syscall.Errno = 8
)

var errnoKinds = map[syscall.Errno]protocol.ErrorKind{
	wsaemfile:            protocol.ResourceExhausted,
	wsaenobufs:           protocol.ResourceExhausted,
	errorNotEnoughMemory: protocol.ResourceExhausted,

	wsaeacces: protocol.PermissionDenied,

	wsaeprototype:      protocol.Unsupported,
	wsaenoprotoopt:     protocol.Unsupported,
	wsaeprotonosupport: protocol.Unsupported,
	wsaesocktnosupport: protocol.Unsupported,
	wsaeopnotsupp:      protocol.Unsupported,
	wsaepfnosupport:    protocol.Unsupported,
	wsaeafnosupport:    protocol.Unsupported,

	wsaeaddrinuse:    protocol.AddressInUse,
	wsaeaddrnotavail: protocol.InvalidAddress,
	wsaefault:        protocol.InvalidAddress,

	wsaeconnrefused:    protocol.ConnectionRefused,
	wsaserviceNotFound: protocol.ConnectionRefused,

	wsaenetdown:     protocol.HostUnreachable,
	wsaenetunreach:  protocol.HostUnreachable,
	wsaehostdown:    protocol.HostUnreachable,
	wsaehostunreach: protocol.HostUnreachable,

	wsaetimedout:   protocol.Timeout,
	wsaewouldblock: protocol.Timeout,

	wsaeintr: protocol.Interrupted,

	wsaenetreset:    protocol.BrokenPipe,
	wsaeconnaborted: protocol.BrokenPipe,
	wsaeconnreset:   protocol.BrokenPipe,
	wsaeshutdown:    protocol.BrokenPipe,

	// Winsock reports operations on a closed SOCKET as WSAENOTSOCK.
	wsaebadf:    protocol.Closed,
	wsaenotsock: protocol.Closed,

	wsaeisconn:  protocol.AlreadyConnected,
	wsaealready: protocol.AlreadyConnected,

	wsaenotconn:       protocol.InvalidState,
	wsaedestaddrreq:   protocol.InvalidState,
	wsaeinprogress:    protocol.InvalidState,
	wsanotinitialised: protocol.InvalidState,
}

var einvalKinds = map[string]protocol.ErrorKind{
	OpBind:    protocol.InvalidAddress,
	OpConnect: protocol.InvalidAddress,
}

func errnoKind(op string, errno syscall.Errno) protocol.ErrorKind {
	if errno == wsaeinval {
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
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return protocol.NewError(errnoKind(op, errno), op, errno)
	}
	return protocol.NewError(protocol.InvalidState, op, err)
}
