// Package socket provides blocking RFCOMM and L2CAP stream sockets.
//
// A [Socket] is a connected stream created by [Dial] or [Listener.Accept]. Both wrap a
// [RawSocket], which owns the native handle and guarantees it is released exactly once. Every
// error carries a protocol.ErrorKind:
//
//	if errors.Is(err, protocol.ConnectionRefused) {
//		// nothing is listening on that channel
//	}
package socket

import (
	"fmt"
	"io"
	"time"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/internal/shim"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

// Socket is a connected Bluetooth stream. It implements io.ReadWriteCloser.
type Socket struct {
	raw   *RawSocket
	local Endpoint
	peer  Endpoint
}

var _ io.ReadWriteCloser = (*Socket)(nil)

// Dialer contains options for connecting to a remote device. The zero value connects with no
// timeout using the host's Bluetooth stack.
type Dialer struct {
	// Platform performs native calls. Nil selects the host's native backend.
	Platform shim.Platform
	// Timeout bounds connection establishment. Zero blocks until the stack gives up.
	Timeout time.Duration
	// ReadTimeout and WriteTimeout are applied to the connected socket when non-zero.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dial connects to port on the device at addr.
func Dial(addr btaddr.Addr, proto protocol.Protocol, port uint16) (*Socket, error) {
	var d Dialer
	return d.Dial(addr, proto, port)
}

// DialTimeout is like Dial but fails with protocol.Timeout if the connection is not established
// within timeout.
func DialTimeout(addr btaddr.Addr, proto protocol.Protocol, port uint16, timeout time.Duration) (*Socket, error) {
	d := Dialer{Timeout: timeout}
	return d.Dial(addr, proto, port)
}

// Dial connects to port on the device at addr. The native handle is released before any error
// is returned.
func (d *Dialer) Dial(addr btaddr.Addr, proto protocol.Protocol, port uint16) (*Socket, error) {
	if addr.IsAny() {
		return nil, protocol.NewError(protocol.InvalidAddress, shim.OpConnect, fmt.Errorf("cannot connect to %s", addr))
	}
	if err := protocol.ValidatePort(proto, port, false); err != nil {
		return nil, err
	}
	raw, err := OpenRaw(d.Platform, proto)
	if err != nil {
		return nil, err
	}
	if err := raw.platform.Connect(raw.handle, addr, port, d.Timeout); err != nil {
		log.Debug("socket: connect to %s/%d failed: %s", addr, port, err)
		raw.release()
		return nil, err
	}
	if d.ReadTimeout > 0 {
		if err := raw.SetReadTimeout(d.ReadTimeout); err != nil {
			raw.release()
			return nil, err
		}
	}
	if d.WriteTimeout > 0 {
		if err := raw.SetWriteTimeout(d.WriteTimeout); err != nil {
			raw.release()
			return nil, err
		}
	}
	localAddr, localPort, err := raw.platform.LocalAddr(raw.handle)
	if err != nil {
		raw.release()
		return nil, err
	}
	s := &Socket{
		raw:   raw,
		local: Endpoint{Protocol: proto, Addr: localAddr, Port: localPort},
		peer:  Endpoint{Protocol: proto, Addr: addr, Port: port},
	}
	log.Info("Connected to %s over %s", s.peer, proto)
	return s, nil
}

// Read reads up to len(b) bytes. After the peer shuts down its write direction, or after
// Shutdown(ShutdownRead), a read yields no bytes; following the io.Reader convention this is
// reported as 0, io.EOF rather than 0, nil.
func (s *Socket) Read(b []byte) (int, error) {
	return s.raw.Read(b)
}

// Peek reads up to len(b) bytes without removing them, so the next Read returns the same data.
// Timeouts and end of stream behave exactly as for Read.
func (s *Socket) Peek(b []byte) (int, error) {
	return s.raw.Peek(b)
}

// Write writes all of b, issuing as many native sends as needed. On error it returns the number
// of bytes that were sent.
func (s *Socket) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := s.raw.Write(b[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Close releases the connection and wakes any Read blocked in another goroutine. Subsequent
// calls fail with protocol.Closed.
func (s *Socket) Close() error {
	return s.raw.close(func() {
		if s.raw.readShut.Load() && s.raw.writeShut.Load() {
			return
		}
		if err := s.raw.platform.Shutdown(s.raw.handle, shim.ShutdownBoth); err != nil {
			log.Debug("socket: shutdown of %s before close: %s", s.peer, err)
		}
	})
}

// Shutdown disables reads, writes or both.
func (s *Socket) Shutdown(how shim.Direction) error {
	return s.raw.Shutdown(how)
}

// LocalAddr returns the local endpoint.
func (s *Socket) LocalAddr() Endpoint {
	return s.local
}

// PeerAddr returns the remote endpoint.
func (s *Socket) PeerAddr() Endpoint {
	return s.peer
}

// Protocol returns the transport s was dialed or accepted with.
func (s *Socket) Protocol() protocol.Protocol {
	return s.raw.Protocol()
}

// Raw returns the underlying RawSocket, which remains owned by s.
func (s *Socket) Raw() *RawSocket {
	return s.raw
}

// SetReadTimeout bounds blocking reads. Zero disables the timeout.
func (s *Socket) SetReadTimeout(d time.Duration) error {
	return s.raw.SetReadTimeout(d)
}

// ReadTimeout returns the current read timeout, or 0 if reads block indefinitely.
func (s *Socket) ReadTimeout() (time.Duration, error) {
	return s.raw.ReadTimeout()
}

// SetWriteTimeout bounds blocking writes. Zero disables the timeout.
func (s *Socket) SetWriteTimeout(d time.Duration) error {
	return s.raw.SetWriteTimeout(d)
}

// WriteTimeout returns the current write timeout.
func (s *Socket) WriteTimeout() (time.Duration, error) {
	return s.raw.WriteTimeout()
}

// SetNonBlocking switches s into or out of non-blocking mode. In non-blocking mode a Read with
// no data available fails with protocol.Timeout.
func (s *Socket) SetNonBlocking(nonblocking bool) error {
	return s.raw.SetNonBlocking(nonblocking)
}

// TakeError returns and clears the pending socket error.
func (s *Socket) TakeError() error {
	return s.raw.TakeError()
}
