package socket

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/internal/shim"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

const opTakeError = "take error"

// RawSocket owns exactly one native socket handle.
//
// A RawSocket is Open from construction until Close, after which every method fails with
// protocol.Closed without reaching the platform. Read and Write make a single native call. Close
// and Shutdown may be called while another goroutine is blocked in Read or Write.
type RawSocket struct {
	platform shim.Platform
	handle   shim.Handle
	proto    protocol.Protocol

	closeOnce sync.Once
	closed    atomic.Bool

	readShut  atomic.Bool
	writeShut atomic.Bool
}

// OpenRaw creates a new native socket for proto.
func OpenRaw(platform shim.Platform, proto protocol.Protocol) (*RawSocket, error) {
	if platform == nil {
		platform = shim.Default()
	}
	h, err := platform.Open(proto)
	if err != nil {
		return nil, err
	}
	return newRaw(platform, h, proto), nil
}

func newRaw(platform shim.Platform, h shim.Handle, proto protocol.Protocol) *RawSocket {
	return &RawSocket{platform: platform, handle: h, proto: proto}
}

func closedError(op string) error {
	return protocol.NewError(protocol.Closed, op, nil)
}

// Handle returns the native handle. It remains owned by r.
func (r *RawSocket) Handle() shim.Handle {
	return r.handle
}

// Protocol returns the transport r was opened with.
func (r *RawSocket) Protocol() protocol.Protocol {
	return r.proto
}

// Read receives up to len(b) bytes. It returns 0, io.EOF once the peer has shut down its write
// direction or after r's read direction has been shut down.
func (r *RawSocket) Read(b []byte) (int, error) {
	return r.recv(shim.OpRecv, r.platform.Recv, b)
}

// Peek is like Read but leaves the received bytes queued for the next Read.
func (r *RawSocket) Peek(b []byte) (int, error) {
	return r.recv(shim.OpPeek, r.platform.Peek, b)
}

func (r *RawSocket) recv(op string, native func(shim.Handle, []byte) (int, error), b []byte) (int, error) {
	if r.closed.Load() {
		return 0, closedError(op)
	}
	if r.readShut.Load() {
		return 0, io.EOF
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := native(r.handle, b)
	if err != nil {
		if r.closed.Load() {
			return 0, closedError(op)
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write sends a prefix of b and returns its length. After ShutdownWrite it fails with
// protocol.InvalidState.
func (r *RawSocket) Write(b []byte) (int, error) {
	if r.closed.Load() {
		return 0, closedError(shim.OpSend)
	}
	if r.writeShut.Load() {
		return 0, protocol.NewError(protocol.InvalidState, shim.OpSend, errors.New("write direction is shut down"))
	}
	n, err := r.platform.Send(r.handle, b)
	if err != nil && r.closed.Load() {
		return 0, closedError(shim.OpSend)
	}
	return n, err
}

// Shutdown disables one or both directions of the connection. Shutting down a direction that
// is already shut down fails with protocol.InvalidState; ShutdownBoth fails only if both are.
func (r *RawSocket) Shutdown(how shim.Direction) error {
	if r.closed.Load() {
		return closedError(shim.OpShutdown)
	}
	read := how == shim.ShutdownRead || how == shim.ShutdownBoth
	write := how == shim.ShutdownWrite || how == shim.ShutdownBoth
	if !read && !write {
		return protocol.NewError(protocol.InvalidState, shim.OpShutdown, errors.New("invalid direction"))
	}
	if (!read || r.readShut.Load()) && (!write || r.writeShut.Load()) {
		return protocol.NewError(protocol.InvalidState, shim.OpShutdown, errors.New(how.String()+" direction already shut down"))
	}
	if err := r.platform.Shutdown(r.handle, how); err != nil {
		return err
	}
	if read {
		r.readShut.Store(true)
	}
	if write {
		r.writeShut.Store(true)
	}
	return nil
}

// Close releases the native handle. Only the first call reaches the platform; later calls fail
// with protocol.Closed.
func (r *RawSocket) Close() error {
	return r.close(nil)
}

// close runs prepare, if set, and closes the handle. Both happen at most once.
func (r *RawSocket) close(prepare func()) error {
	err := closedError(shim.OpClose)
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if prepare != nil {
			prepare()
		}
		err = r.platform.Close(r.handle)
		if err != nil {
			log.Warning("socket: closing handle %d: %s", r.handle, err)
		} else {
			log.Debug("socket: closed handle %d", r.handle)
		}
	})
	return err
}

// release closes r on a failure path, logging rather than returning a close error so the
// original failure reaches the caller.
func (r *RawSocket) release() {
	_ = r.Close()
}

func (r *RawSocket) setOption(opt shim.Option, value int64) error {
	if r.closed.Load() {
		return closedError(shim.OpSetOpt)
	}
	return r.platform.SetOption(r.handle, opt, value)
}

func (r *RawSocket) getOption(opt shim.Option) (int64, error) {
	if r.closed.Load() {
		return 0, closedError(shim.OpGetOpt)
	}
	return r.platform.GetOption(r.handle, opt)
}

// SetReadTimeout bounds blocking reads and accepts. Zero disables the timeout.
func (r *RawSocket) SetReadTimeout(d time.Duration) error {
	return r.setOption(shim.OptionReadTimeout, int64(d))
}

// ReadTimeout returns the current read timeout, or 0 if reads block indefinitely.
func (r *RawSocket) ReadTimeout() (time.Duration, error) {
	v, err := r.getOption(shim.OptionReadTimeout)
	return shim.DurationValue(v), err
}

// SetWriteTimeout bounds blocking writes. Zero disables the timeout.
func (r *RawSocket) SetWriteTimeout(d time.Duration) error {
	return r.setOption(shim.OptionWriteTimeout, int64(d))
}

// WriteTimeout returns the current write timeout.
func (r *RawSocket) WriteTimeout() (time.Duration, error) {
	v, err := r.getOption(shim.OptionWriteTimeout)
	return shim.DurationValue(v), err
}

// SetNonBlocking makes calls that would block fail immediately with protocol.Timeout.
func (r *RawSocket) SetNonBlocking(nonblocking bool) error {
	return r.setOption(shim.OptionNonBlocking, shim.BoolValue(nonblocking))
}

// NonBlocking reports whether r is in non-blocking mode.
func (r *RawSocket) NonBlocking() (bool, error) {
	v, err := r.getOption(shim.OptionNonBlocking)
	return v != 0, err
}

// TakeError returns and clears the error pending on the native socket, if any.
func (r *RawSocket) TakeError() error {
	v, err := r.getOption(shim.OptionError)
	if err != nil {
		return err
	}
	if v == 0 {
		return nil
	}
	return protocol.NewError(protocol.ErrorKind(v), opTakeError, nil)
}
