//go:build linux

package shim

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

// Default returns the BlueZ (AF_BLUETOOTH) backend.
func Default() Platform {
	return posix{}
}

type posix struct{}

func (posix) Open(p protocol.Protocol) (Handle, error) {
	family, sotype, proto, err := Resolve(p)
	if err != nil {
		return 0, err
	}
	fd, err := unix.Socket(family, sotype|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		log.Debug("shim: socket(%s) failed: %s", p, err)
		return 0, classify(OpOpen, err)
	}
	log.Debug("shim: socket(%s) = fd %d", p, fd)
	return Handle(fd), nil
}

// btproto returns the BTPROTO_* number the socket was created with.
func btproto(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PROTOCOL)
}

// sockaddr builds the native address for fd. SockaddrRFCOMM takes the address in kernel
// (reversed) order, while SockaddrL2 reverses it while encoding and expects display order.
func sockaddr(op string, fd int, addr btaddr.Addr, port uint16) (unix.Sockaddr, error) {
	proto, err := btproto(fd)
	if err != nil {
		return nil, classify(op, err)
	}
	switch proto {
	case unix.BTPROTO_RFCOMM:
		if port > 0xff {
			return nil, protocol.NewError(protocol.InvalidAddress, op, fmt.Errorf("rfcomm channel %d", port))
		}
		return &unix.SockaddrRFCOMM{Addr: addr.Reversed(), Channel: uint8(port)}, nil
	case unix.BTPROTO_L2CAP:
		return &unix.SockaddrL2{PSM: port, Addr: addr.Bytes(), AddrType: unix.BDADDR_BREDR}, nil
	}
	return nil, protocol.NewError(protocol.Unsupported, op, fmt.Errorf("socket protocol %d", proto))
}

// endpoint decodes a native address. Both decoders leave the address in kernel order.
func endpoint(op string, sa unix.Sockaddr) (btaddr.Addr, uint16, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrRFCOMM:
		return btaddr.FromReversed(sa.Addr), uint16(sa.Channel), nil
	case *unix.SockaddrL2:
		return btaddr.FromReversed(sa.Addr), sa.PSM, nil
	}
	return btaddr.Any, 0, protocol.NewError(protocol.Unsupported, op, fmt.Errorf("unexpected address type %T", sa))
}

func (posix) Bind(h Handle, addr btaddr.Addr, port uint16) error {
	fd := int(h)
	sa, err := sockaddr(OpBind, fd, addr, port)
	if err != nil {
		return err
	}
	// Allows a listener to be recreated on the same channel without waiting for the kernel to
	// release the previous one. Active listeners still conflict.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		log.Warning("shim: fd %d: SO_REUSEADDR: %s", fd, err)
	}
	err = unix.Bind(fd, sa)
	log.Debug("shim: bind(fd %d, %s/%d): %v", fd, addr, port, err)
	return classify(OpBind, err)
}

func (p posix) Connect(h Handle, addr btaddr.Addr, port uint16, timeout time.Duration) error {
	fd := int(h)
	sa, err := sockaddr(OpConnect, fd, addr, port)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		err = unix.Connect(fd, sa)
		log.Debug("shim: connect(fd %d, %s/%d): %v", fd, addr, port, err)
		return classify(OpConnect, err)
	}
	return p.connectTimeout(fd, sa, timeout)
}

func (posix) connectTimeout(fd int, sa unix.Sockaddr, timeout time.Duration) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return classify(OpConnect, err)
	}
	blocking := flags&unix.O_NONBLOCK == 0
	if blocking {
		if err := unix.SetNonblock(fd, true); err != nil {
			return classify(OpConnect, err)
		}
	}
	err = unix.Connect(fd, sa)
	if blocking {
		if restoreErr := unix.SetNonblock(fd, false); restoreErr != nil {
			return classify(OpConnect, restoreErr)
		}
	}
	log.Debug("shim: connect(fd %d, timeout %s): %v", fd, timeout, err)
	switch err {
	case nil:
		return nil
	case unix.EINPROGRESS, unix.EAGAIN:
	default:
		return classify(OpConnect, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return protocol.NewError(protocol.Timeout, OpConnect, fmt.Errorf("no response within %s", timeout))
		}
		ms := int(remaining / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return classify(OpConnect, err)
		}
		if n == 0 {
			continue
		}
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return classify(OpConnect, err)
		}
		if soErr != 0 {
			return classify(OpConnect, unix.Errno(soErr))
		}
		if fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
			return protocol.NewError(protocol.ConnectionRefused, OpConnect, fmt.Errorf("hangup without pending error"))
		}
		return nil
	}
}

func (posix) Listen(h Handle, backlog int) error {
	err := unix.Listen(int(h), backlog)
	log.Debug("shim: listen(fd %d, %d): %v", h, backlog, err)
	if err == unix.EBADFD || err == unix.EINVAL {
		return protocol.NewError(protocol.InvalidState, OpListen, fmt.Errorf("socket is not bound: %w", err))
	}
	return classify(OpListen, err)
}

func (posix) Accept(h Handle) (Handle, btaddr.Addr, uint16, error) {
	nfd, sa, err := unix.Accept4(int(h), unix.SOCK_CLOEXEC)
	if err != nil {
		log.Debug("shim: accept(fd %d): %s", h, err)
		return 0, btaddr.Any, 0, classify(OpAccept, err)
	}
	peer, port, err := endpoint(OpAccept, sa)
	if err != nil {
		unix.Close(nfd)
		return 0, btaddr.Any, 0, err
	}
	log.Debug("shim: accept(fd %d) = fd %d from %s/%d", h, nfd, peer, port)
	return Handle(nfd), peer, port, nil
}

func (posix) Send(h Handle, b []byte) (int, error) {
	n, err := unix.SendmsgN(int(h), b, nil, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		return 0, classify(OpSend, err)
	}
	return n, nil
}

func (posix) Peek(h Handle, b []byte) (int, error) {
	n, _, err := unix.Recvfrom(int(h), b, unix.MSG_PEEK)
	if err != nil {
		return 0, classify(OpPeek, err)
	}
	return n, nil
}

func (posix) Recv(h Handle, b []byte) (int, error) {
	n, err := unix.Read(int(h), b)
	if err != nil {
		return 0, classify(OpRecv, err)
	}
	return n, nil
}

var shutdownHow = map[Direction]int{
	ShutdownRead:  unix.SHUT_RD,
	ShutdownWrite: unix.SHUT_WR,
	ShutdownBoth:  unix.SHUT_RDWR,
}

func (posix) Shutdown(h Handle, how Direction) error {
	native, ok := shutdownHow[how]
	if !ok {
		return protocol.NewError(protocol.InvalidState, OpShutdown, fmt.Errorf("invalid direction %d", how))
	}
	err := unix.Shutdown(int(h), native)
	log.Debug("shim: shutdown(fd %d, %s): %v", h, how, err)
	return classify(OpShutdown, err)
}

func (posix) Close(h Handle) error {
	err := unix.Close(int(h))
	log.Debug("shim: close(fd %d): %v", h, err)
	return classify(OpClose, err)
}

var timeoutOptions = map[Option]int{
	OptionReadTimeout:  unix.SO_RCVTIMEO,
	OptionWriteTimeout: unix.SO_SNDTIMEO,
}

func (posix) SetOption(h Handle, opt Option, value int64) error {
	fd := int(h)
	if name, ok := timeoutOptions[opt]; ok {
		if value < 0 {
			return protocol.NewError(protocol.InvalidState, OpSetOpt, fmt.Errorf("negative %s", opt))
		}
		tv := unix.NsecToTimeval(value)
		if value > 0 && tv.Sec == 0 && tv.Usec == 0 {
			tv.Usec = 1
		}
		return classify(OpSetOpt, unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, name, &tv))
	}
	switch opt {
	case OptionNonBlocking:
		return classify(OpSetOpt, unix.SetNonblock(fd, value != 0))
	case OptionError:
		return protocol.NewError(protocol.InvalidState, OpSetOpt, fmt.Errorf("%s is read-only", opt))
	}
	return protocol.NewError(protocol.Unsupported, OpSetOpt, fmt.Errorf("option %d", opt))
}

func (posix) GetOption(h Handle, opt Option) (int64, error) {
	fd := int(h)
	if name, ok := timeoutOptions[opt]; ok {
		tv, err := unix.GetsockoptTimeval(fd, unix.SOL_SOCKET, name)
		if err != nil {
			return 0, classify(OpGetOpt, err)
		}
		return tv.Nano(), nil
	}
	switch opt {
	case OptionNonBlocking:
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
		if err != nil {
			return 0, classify(OpGetOpt, err)
		}
		return BoolValue(flags&unix.O_NONBLOCK != 0), nil
	case OptionError:
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return 0, classify(OpGetOpt, err)
		}
		if soErr == 0 {
			return 0, nil
		}
		return int64(errnoKind(OpGetOpt, unix.Errno(soErr))), nil
	}
	return 0, protocol.NewError(protocol.Unsupported, OpGetOpt, fmt.Errorf("option %d", opt))
}

func (posix) LocalAddr(h Handle) (btaddr.Addr, uint16, error) {
	sa, err := unix.Getsockname(int(h))
	if err != nil {
		return btaddr.Any, 0, classify(OpSockname, err)
	}
	return endpoint(OpSockname, sa)
}

func (posix) PeerAddr(h Handle) (btaddr.Addr, uint16, error) {
	sa, err := unix.Getpeername(int(h))
	if err != nil {
		return btaddr.Any, 0, classify(OpPeername, err)
	}
	return endpoint(OpPeername, sa)
}
