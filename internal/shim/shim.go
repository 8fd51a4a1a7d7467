// Package shim isolates every native Bluetooth socket call behind the [Platform] interface.
//
// Exactly one native implementation is compiled per target: POSIX Bluetooth sockets on Linux and
// Windows Sockets Bluetooth extensions on Windows. Other targets get a backend that reports
// protocol.Unsupported. Native constants, struct layouts and error codes never leave this
// package; every error a Platform returns is a *protocol.SocketError.
package shim

import (
	"time"

	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

// Handle is an opaque native socket handle (a file descriptor or a SOCKET).
type Handle uintptr

// Direction selects which half of a connection to shut down.
type Direction int

const (
	ShutdownRead Direction = iota + 1
	ShutdownWrite
	ShutdownBoth
)

func (d Direction) String() string {
	switch d {
	case ShutdownRead:
		return "read"
	case ShutdownWrite:
		return "write"
	case ShutdownBoth:
		return "both"
	}
	return "invalid"
}

// Option enumerates the socket options a Platform understands.
type Option int

const (
	// OptionReadTimeout bounds blocking receives and accepts. The value is in nanoseconds; zero
	// disables the timeout.
	OptionReadTimeout Option = iota + 1
	// OptionWriteTimeout bounds blocking sends, in nanoseconds.
	OptionWriteTimeout
	// OptionNonBlocking is 1 if calls that would block fail immediately with protocol.Timeout.
	OptionNonBlocking
	// OptionError reads (and clears) the pending native error as a protocol.ErrorKind, or 0.
	// It cannot be set.
	OptionError
)

func (o Option) String() string {
	switch o {
	case OptionReadTimeout:
		return "read_timeout"
	case OptionWriteTimeout:
		return "write_timeout"
	case OptionNonBlocking:
		return "non_blocking"
	case OptionError:
		return "error"
	}
	return "invalid"
}

// Names of operations, used as SocketError.Op.
const (
	OpOpen     = "open"
	OpBind     = "bind"
	OpConnect  = "connect"
	OpListen   = "listen"
	OpAccept   = "accept"
	OpSend     = "send"
	OpRecv     = "recv"
	OpPeek     = "peek"
	OpShutdown = "shutdown"
	OpClose    = "close"
	OpSetOpt   = "setsockopt"
	OpGetOpt   = "getsockopt"
	OpSockname = "getsockname"
	OpPeername = "getpeername"
)

// DefaultBacklog is the listen backlog used when callers do not choose one.
const DefaultBacklog = 128

// Platform translates portable socket operations into native calls.
//
// Implementations must not retry or swallow native errors: every failure is classified into
// exactly one protocol.ErrorKind and returned. Send and Recv make a single native call and may
// transfer fewer bytes than requested. Recv returning 0 with a nil error signals an orderly
// shutdown by the peer. Peek behaves like Recv but leaves the data queued. Operations on a
// handle that has already been closed fail with protocol.Closed.
//
// A Platform is safe for concurrent use on distinct handles.
type Platform interface {
	Open(p protocol.Protocol) (Handle, error)
	Bind(h Handle, addr btaddr.Addr, port uint16) error
	// Connect blocks until the connection is established. A zero timeout blocks indefinitely.
	Connect(h Handle, addr btaddr.Addr, port uint16, timeout time.Duration) error
	Listen(h Handle, backlog int) error
	Accept(h Handle) (conn Handle, peer btaddr.Addr, port uint16, err error)
	Send(h Handle, b []byte) (int, error)
	Recv(h Handle, b []byte) (int, error)
	Peek(h Handle, b []byte) (int, error)
	Shutdown(h Handle, how Direction) error
	Close(h Handle) error
	SetOption(h Handle, opt Option, value int64) error
	GetOption(h Handle, opt Option) (int64, error)
	LocalAddr(h Handle) (btaddr.Addr, uint16, error)
	PeerAddr(h Handle) (btaddr.Addr, uint16, error)
}

// DurationValue converts a timeout option value to a time.Duration.
func DurationValue(v int64) time.Duration {
	return time.Duration(v)
}

// BoolValue converts a boolean to an option value.
func BoolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
