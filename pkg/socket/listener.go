package socket

import (
	"time"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/internal/shim"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

// ListenConfig contains options for listening for connections.
type ListenConfig struct {
	// Platform performs native calls. Nil selects the host's native backend.
	Platform shim.Platform
	// Backlog is the maximum number of pending connections. Zero selects shim.DefaultBacklog.
	Backlog int
}

// Listener accepts incoming connections on a bound channel or PSM.
type Listener struct {
	raw   *RawSocket
	local Endpoint
}

// Listen binds to port on the adapter at addr and starts listening. Use btaddr.Any to listen
// on every adapter and port 0 to let the stack pick a free channel or PSM.
func Listen(addr btaddr.Addr, proto protocol.Protocol, port uint16) (*Listener, error) {
	var lc ListenConfig
	return lc.Listen(addr, proto, port)
}

// Listen binds and listens. The native handle is released before any error is returned.
func (lc *ListenConfig) Listen(addr btaddr.Addr, proto protocol.Protocol, port uint16) (*Listener, error) {
	if err := protocol.ValidatePort(proto, port, true); err != nil {
		return nil, err
	}
	backlog := lc.Backlog
	if backlog <= 0 {
		backlog = shim.DefaultBacklog
	}
	raw, err := OpenRaw(lc.Platform, proto)
	if err != nil {
		return nil, err
	}
	if err := raw.platform.Bind(raw.handle, addr, port); err != nil {
		raw.release()
		return nil, err
	}
	if err := raw.platform.Listen(raw.handle, backlog); err != nil {
		raw.release()
		return nil, err
	}
	localAddr, localPort, err := raw.platform.LocalAddr(raw.handle)
	if err != nil {
		raw.release()
		return nil, err
	}
	l := &Listener{
		raw:   raw,
		local: Endpoint{Protocol: proto, Addr: localAddr, Port: localPort},
	}
	log.Info("Listening on %s over %s", l.local, proto)
	return l, nil
}

// Accept waits for the next connection. A protocol.Interrupted error is returned as is; see
// protocol.ShouldRetry.
func (l *Listener) Accept() (*Socket, error) {
	if l.raw.closed.Load() {
		return nil, closedError(shim.OpAccept)
	}
	platform := l.raw.platform
	h, peerAddr, peerPort, err := platform.Accept(l.raw.handle)
	if err != nil {
		if l.raw.closed.Load() {
			return nil, closedError(shim.OpAccept)
		}
		return nil, err
	}
	conn := newRaw(platform, h, l.raw.proto)
	localAddr, localPort, err := platform.LocalAddr(h)
	if err != nil {
		conn.release()
		return nil, err
	}
	s := &Socket{
		raw:   conn,
		local: Endpoint{Protocol: conn.proto, Addr: localAddr, Port: localPort},
		peer:  Endpoint{Protocol: conn.proto, Addr: peerAddr, Port: peerPort},
	}
	log.Info("Accepted connection from %s", s.peer)
	return s, nil
}

// SetAcceptTimeout bounds how long Accept waits. Zero waits indefinitely.
func (l *Listener) SetAcceptTimeout(d time.Duration) error {
	return l.raw.SetReadTimeout(d)
}

// LocalAddr returns the bound endpoint, including a port chosen by the stack.
func (l *Listener) LocalAddr() Endpoint {
	return l.local
}

// Protocol returns the transport l accepts connections for.
func (l *Listener) Protocol() protocol.Protocol {
	return l.raw.proto
}

// Close stops listening. Pending and future Accept calls fail with protocol.Closed.
func (l *Listener) Close() error {
	return l.raw.close(func() {
		// Closing the handle alone does not wake an Accept blocked in another goroutine on Linux.
		if err := l.raw.platform.Shutdown(l.raw.handle, shim.ShutdownBoth); err != nil {
			log.Debug("socket: shutdown of listener %s: %s", l.local, err)
		}
	})
}
