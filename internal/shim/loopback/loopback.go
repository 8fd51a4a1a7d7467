// Package loopback provides an in-memory shim.Platform. Hosts attached to the same Network can
// bind, listen, connect and exchange bytes with each other without a Bluetooth stack, which makes
// it suitable for exercising the socket layer in tests.
package loopback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teslamotors/btsocket/internal/shim"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

// First PSM handed out when an L2CAP socket binds or connects without choosing one.
const dynamicPSM = 0x1001

type binding struct {
	proto protocol.Protocol
	addr  btaddr.Addr
	port  uint16
}

type state int

const (
	stateOpen state = iota
	stateBound
	stateListening
	stateConnected
)

type socket struct {
	host   *Host
	proto  protocol.Protocol
	state  state
	closed bool

	local    btaddr.Addr
	port     uint16
	peerAddr btaddr.Addr
	peerPort uint16
	peer     *socket

	backlog int
	queue   []*socket

	inbox     []byte
	eof       bool
	peerGone  bool
	readShut  bool
	writeShut bool

	readTimeout  time.Duration
	writeTimeout time.Duration
	nonblocking  bool
	pending      protocol.ErrorKind
}

// Option configures a Network.
type Option func(*Network)

// WithMTU caps the number of bytes a single Send accepts, forcing partial writes.
func WithMTU(mtu int) Option {
	return func(n *Network) {
		n.mtu = mtu
	}
}

// WithHandleLimit makes Open fail with protocol.ResourceExhausted once limit handles are open
// across the Network.
func WithHandleLimit(limit int) Option {
	return func(n *Network) {
		n.limit = limit
	}
}

// Network is a set of hosts that can reach each other.
type Network struct {
	mu      sync.Mutex
	wake    chan struct{}
	next    shim.Handle
	hosts   map[btaddr.Addr]*Host
	sockets map[shim.Handle]*socket
	bound   map[binding]*socket
	silent  map[btaddr.Addr]bool
	mtu     int
	limit   int
}

// NewNetwork returns an empty Network.
func NewNetwork(options ...Option) *Network {
	n := &Network{
		wake:    make(chan struct{}),
		next:    3,
		hosts:   make(map[btaddr.Addr]*Host),
		sockets: make(map[shim.Handle]*socket),
		bound:   make(map[binding]*socket),
		silent:  make(map[btaddr.Addr]bool),
	}
	for _, option := range options {
		option(n)
	}
	return n
}

// Host attaches an adapter with address addr to the network, or returns the existing one.
func (n *Network) Host(addr btaddr.Addr) *Host {
	n.mu.Lock()
	defer n.mu.Unlock()
	if h, ok := n.hosts[addr]; ok {
		return h
	}
	h := &Host{net: n, addr: addr}
	n.hosts[addr] = h
	return h
}

// Silence makes addr stop answering connection attempts. Connects to it block until their
// timeout expires or the connecting handle is closed.
func (n *Network) Silence(addr btaddr.Addr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.silent[addr] = true
}

// Inject sets the pending error on h, as if the stack had reported an asynchronous failure.
func (n *Network) Inject(h shim.Handle, kind protocol.ErrorKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.sockets[h]; ok {
		s.pending = kind
	}
}

// broadcast wakes every blocked call so it can re-check its condition. Requires n.mu.
func (n *Network) broadcast() {
	close(n.wake)
	n.wake = make(chan struct{})
}

// wait releases n.mu until the network changes or deadline passes. It returns false on timeout.
func (n *Network) wait(deadline time.Time) bool {
	ch := n.wake
	n.mu.Unlock()
	defer n.mu.Lock()
	if deadline.IsZero() {
		<-ch
		return true
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func (n *Network) register(s *socket) shim.Handle {
	h := n.next
	n.next++
	n.sockets[h] = s
	return h
}

func (n *Network) lookup(op string, h shim.Handle) (*socket, error) {
	s, ok := n.sockets[h]
	if !ok {
		return nil, protocol.NewError(protocol.Closed, op, fmt.Errorf("handle %d", h))
	}
	return s, nil
}

// allocate returns a free port for proto on addr, or 0 if none is left.
func (n *Network) allocate(proto protocol.Protocol, addr btaddr.Addr) uint16 {
	if proto == protocol.RFCOMM {
		for ch := uint16(protocol.MinChannel); ch <= protocol.MaxChannel; ch++ {
			if _, ok := n.bound[binding{proto, addr, ch}]; !ok {
				return ch
			}
		}
		return 0
	}
	for psm := uint32(dynamicPSM); psm <= 0xffff; psm += 2 {
		if psm&0x100 != 0 {
			continue
		}
		if _, ok := n.bound[binding{proto, addr, uint16(psm)}]; !ok {
			return uint16(psm)
		}
	}
	return 0
}

// release disconnects s and frees everything it holds. Requires n.mu.
func (n *Network) release(s *socket) {
	s.closed = true
	if s.state >= stateBound && s.port != 0 {
		key := binding{s.proto, s.local, s.port}
		if n.bound[key] == s {
			delete(n.bound, key)
		}
	}
	for _, queued := range s.queue {
		n.release(queued)
	}
	s.queue = nil
	if s.peer != nil {
		s.peer.eof = true
		s.peer.peerGone = true
		s.peer.peer = nil
		s.peer = nil
	}
	s.inbox = nil
}

// Host is the shim.Platform of one adapter on a Network.
type Host struct {
	net  *Network
	addr btaddr.Addr
}

var _ shim.Platform = (*Host)(nil)

// Addr returns the adapter address of h.
func (h *Host) Addr() btaddr.Addr {
	return h.addr
}

// OpenHandles returns the number of handles owned by h that have not been closed.
func (h *Host) OpenHandles() int {
	h.net.mu.Lock()
	defer h.net.mu.Unlock()
	count := 0
	for _, s := range h.net.sockets {
		if s.host == h {
			count++
		}
	}
	return count
}

func (h *Host) Open(p protocol.Protocol) (shim.Handle, error) {
	if !p.Valid() {
		return 0, protocol.NewError(protocol.Unsupported, shim.OpOpen, fmt.Errorf("unknown protocol %s", p))
	}
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.limit > 0 && len(n.sockets) >= n.limit {
		return 0, protocol.NewError(protocol.ResourceExhausted, shim.OpOpen, errors.New("handle limit reached"))
	}
	return n.register(&socket{host: h, proto: p}), nil
}

func (h *Host) Bind(handle shim.Handle, addr btaddr.Addr, port uint16) error {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpBind, handle)
	if err != nil {
		return err
	}
	if s.state != stateOpen {
		return protocol.NewError(protocol.InvalidState, shim.OpBind, errors.New("socket is already bound"))
	}
	if !addr.IsAny() && addr != h.addr {
		return protocol.NewError(protocol.InvalidAddress, shim.OpBind, fmt.Errorf("%s is not a local adapter", addr))
	}
	if port == 0 {
		if port = n.allocate(s.proto, h.addr); port == 0 {
			return protocol.NewError(protocol.ResourceExhausted, shim.OpBind, errors.New("no free port"))
		}
	}
	key := binding{s.proto, h.addr, port}
	if _, ok := n.bound[key]; ok {
		return protocol.NewError(protocol.AddressInUse, shim.OpBind, fmt.Errorf("%s/%d", h.addr, port))
	}
	n.bound[key] = s
	s.state = stateBound
	s.local = h.addr
	s.port = port
	return nil
}

func (h *Host) Connect(handle shim.Handle, addr btaddr.Addr, port uint16, timeout time.Duration) error {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpConnect, handle)
	if err != nil {
		return err
	}
	switch s.state {
	case stateConnected:
		return protocol.NewError(protocol.AlreadyConnected, shim.OpConnect, nil)
	case stateListening:
		return protocol.NewError(protocol.InvalidState, shim.OpConnect, errors.New("socket is listening"))
	}

	if n.silent[addr] {
		until := deadline(timeout)
		for !s.closed {
			if !n.wait(until) {
				return protocol.NewError(protocol.Timeout, shim.OpConnect, fmt.Errorf("no response within %s", timeout))
			}
		}
		return protocol.NewError(protocol.Closed, shim.OpConnect, nil)
	}
	if _, ok := n.hosts[addr]; !ok {
		return protocol.NewError(protocol.HostUnreachable, shim.OpConnect, fmt.Errorf("no adapter %s", addr))
	}
	listener, ok := n.bound[binding{s.proto, addr, port}]
	if !ok || listener.state != stateListening {
		return protocol.NewError(protocol.ConnectionRefused, shim.OpConnect, fmt.Errorf("nothing listening on %s/%d", addr, port))
	}
	if len(listener.queue) >= listener.backlog {
		return protocol.NewError(protocol.ConnectionRefused, shim.OpConnect, errors.New("backlog full"))
	}

	if s.state == stateOpen {
		s.local = h.addr
		if s.proto == protocol.L2CAP {
			if s.port = n.allocate(s.proto, h.addr); s.port != 0 {
				n.bound[binding{s.proto, h.addr, s.port}] = s
			}
		}
	}
	server := &socket{
		host:     listener.host,
		proto:    s.proto,
		state:    stateConnected,
		local:    listener.local,
		port:     listener.port,
		peerAddr: s.local,
		peerPort: s.port,
		peer:     s,
	}
	s.state = stateConnected
	s.peer = server
	s.peerAddr = listener.local
	s.peerPort = listener.port
	listener.queue = append(listener.queue, server)
	n.broadcast()
	return nil
}

func (h *Host) Listen(handle shim.Handle, backlog int) error {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpListen, handle)
	if err != nil {
		return err
	}
	if s.state != stateBound && s.state != stateListening {
		return protocol.NewError(protocol.InvalidState, shim.OpListen, errors.New("socket is not bound"))
	}
	if backlog <= 0 {
		backlog = 1
	}
	s.state = stateListening
	s.backlog = backlog
	return nil
}

func (h *Host) Accept(handle shim.Handle) (shim.Handle, btaddr.Addr, uint16, error) {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpAccept, handle)
	if err != nil {
		return 0, btaddr.Any, 0, err
	}
	if s.state != stateListening {
		return 0, btaddr.Any, 0, protocol.NewError(protocol.InvalidState, shim.OpAccept, errors.New("socket is not listening"))
	}
	until := deadline(s.readTimeout)
	for len(s.queue) == 0 {
		if s.nonblocking {
			return 0, btaddr.Any, 0, protocol.NewError(protocol.Timeout, shim.OpAccept, errors.New("no pending connection"))
		}
		if !n.wait(until) {
			return 0, btaddr.Any, 0, protocol.NewError(protocol.Timeout, shim.OpAccept, nil)
		}
		if s.closed {
			return 0, btaddr.Any, 0, protocol.NewError(protocol.Closed, shim.OpAccept, nil)
		}
	}
	conn := s.queue[0]
	s.queue = s.queue[1:]
	return n.register(conn), conn.peerAddr, conn.peerPort, nil
}

func (h *Host) Send(handle shim.Handle, b []byte) (int, error) {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpSend, handle)
	if err != nil {
		return 0, err
	}
	if s.state != stateConnected {
		return 0, protocol.NewError(protocol.InvalidState, shim.OpSend, errors.New("socket is not connected"))
	}
	if s.writeShut || s.peerGone || s.peer == nil {
		return 0, protocol.NewError(protocol.BrokenPipe, shim.OpSend, nil)
	}
	size := len(b)
	if n.mtu > 0 && size > n.mtu {
		size = n.mtu
	}
	if size == 0 {
		return 0, nil
	}
	if !s.peer.readShut {
		s.peer.inbox = append(s.peer.inbox, b[:size]...)
	}
	n.broadcast()
	return size, nil
}

func (h *Host) Recv(handle shim.Handle, b []byte) (int, error) {
	return h.recv(shim.OpRecv, handle, b, true)
}

// Peek copies queued data into b without consuming it.
func (h *Host) Peek(handle shim.Handle, b []byte) (int, error) {
	return h.recv(shim.OpPeek, handle, b, false)
}

func (h *Host) recv(op string, handle shim.Handle, b []byte, consume bool) (int, error) {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(op, handle)
	if err != nil {
		return 0, err
	}
	if s.state != stateConnected {
		return 0, protocol.NewError(protocol.InvalidState, op, errors.New("socket is not connected"))
	}
	if len(b) == 0 {
		return 0, nil
	}
	until := deadline(s.readTimeout)
	for len(s.inbox) == 0 {
		if s.eof || s.readShut {
			return 0, nil
		}
		if s.nonblocking {
			return 0, protocol.NewError(protocol.Timeout, op, errors.New("no data available"))
		}
		if !n.wait(until) {
			return 0, protocol.NewError(protocol.Timeout, op, nil)
		}
		if s.closed {
			return 0, protocol.NewError(protocol.Closed, op, nil)
		}
	}
	count := copy(b, s.inbox)
	if consume {
		s.inbox = s.inbox[count:]
	}
	return count, nil
}

func (h *Host) Shutdown(handle shim.Handle, how shim.Direction) error {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpShutdown, handle)
	if err != nil {
		return err
	}
	if s.state != stateConnected {
		return protocol.NewError(protocol.InvalidState, shim.OpShutdown, errors.New("socket is not connected"))
	}
	switch how {
	case shim.ShutdownRead:
		s.readShut = true
		s.inbox = nil
	case shim.ShutdownWrite:
		s.writeShut = true
		if s.peer != nil {
			s.peer.eof = true
		}
	case shim.ShutdownBoth:
		s.readShut = true
		s.inbox = nil
		s.writeShut = true
		if s.peer != nil {
			s.peer.eof = true
		}
	default:
		return protocol.NewError(protocol.InvalidState, shim.OpShutdown, fmt.Errorf("invalid direction %d", how))
	}
	n.broadcast()
	return nil
}

func (h *Host) Close(handle shim.Handle) error {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpClose, handle)
	if err != nil {
		return err
	}
	delete(n.sockets, handle)
	n.release(s)
	n.broadcast()
	return nil
}

func (h *Host) SetOption(handle shim.Handle, opt shim.Option, value int64) error {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpSetOpt, handle)
	if err != nil {
		return err
	}
	switch opt {
	case shim.OptionReadTimeout, shim.OptionWriteTimeout:
		if value < 0 {
			return protocol.NewError(protocol.InvalidState, shim.OpSetOpt, fmt.Errorf("negative %s", opt))
		}
		if opt == shim.OptionReadTimeout {
			s.readTimeout = shim.DurationValue(value)
		} else {
			s.writeTimeout = shim.DurationValue(value)
		}
	case shim.OptionNonBlocking:
		s.nonblocking = value != 0
	case shim.OptionError:
		return protocol.NewError(protocol.InvalidState, shim.OpSetOpt, fmt.Errorf("%s is read-only", opt))
	default:
		return protocol.NewError(protocol.Unsupported, shim.OpSetOpt, fmt.Errorf("option %d", opt))
	}
	return nil
}

func (h *Host) GetOption(handle shim.Handle, opt shim.Option) (int64, error) {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpGetOpt, handle)
	if err != nil {
		return 0, err
	}
	switch opt {
	case shim.OptionReadTimeout:
		return int64(s.readTimeout), nil
	case shim.OptionWriteTimeout:
		return int64(s.writeTimeout), nil
	case shim.OptionNonBlocking:
		return shim.BoolValue(s.nonblocking), nil
	case shim.OptionError:
		kind := s.pending
		s.pending = 0
		return int64(kind), nil
	}
	return 0, protocol.NewError(protocol.Unsupported, shim.OpGetOpt, fmt.Errorf("option %d", opt))
}

func (h *Host) LocalAddr(handle shim.Handle) (btaddr.Addr, uint16, error) {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpSockname, handle)
	if err != nil {
		return btaddr.Any, 0, err
	}
	return s.local, s.port, nil
}

func (h *Host) PeerAddr(handle shim.Handle) (btaddr.Addr, uint16, error) {
	n := h.net
	n.mu.Lock()
	defer n.mu.Unlock()
	s, err := n.lookup(shim.OpPeername, handle)
	if err != nil {
		return btaddr.Any, 0, err
	}
	if s.state != stateConnected {
		return btaddr.Any, 0, protocol.NewError(protocol.InvalidState, shim.OpPeername, errors.New("socket is not connected"))
	}
	return s.peerAddr, s.peerPort, nil
}
