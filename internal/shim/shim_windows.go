//go:build windows

package shim

import (
	"encoding/binary"
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

const (
	invalidSocket = ^uintptr(0)

	wsaFlagOverlapped      = 0x01
	wsaFlagNoHandleInherit = 0x80

	solSocket  = 0xffff
	soSndTimeo = 0x1005
	soRcvTimeo = 0x1006
	soError    = 0x1007

	fionbio = 0x8004667e
	msgPeek = 0x2

	sdReceive = 0
	sdSend    = 1
	sdBoth    = 2

	pollWrNorm = 0x0010
	pollErr    = 0x0001
	pollHup    = 0x0002

	btPortAny = ^uint32(0)

	// SOCKADDR_BTH is byte-packed: family(2) btAddr(8) serviceClassId(16) port(4).
	sockaddrBthLen = 30
)

var (
	modws2_32 = windows.NewLazySystemDLL("ws2_32.dll")

	procBind        = modws2_32.NewProc("bind")
	procConnect     = modws2_32.NewProc("connect")
	procAccept      = modws2_32.NewProc("accept")
	procGetsockname = modws2_32.NewProc("getsockname")
	procGetpeername = modws2_32.NewProc("getpeername")
	procIoctlsocket = modws2_32.NewProc("ioctlsocket")
	procWSAPoll     = modws2_32.NewProc("WSAPoll")
)

type sockaddrBth [sockaddrBthLen]byte

func newSockaddrBth(addr btaddr.Addr, port uint16) *sockaddrBth {
	var sa sockaddrBth
	binary.LittleEndian.PutUint16(sa[0:], afBth)
	binary.LittleEndian.PutUint64(sa[2:], addr.Uint64())
	nativePort := uint32(port)
	if port == 0 {
		nativePort = btPortAny
	}
	binary.LittleEndian.PutUint32(sa[26:], nativePort)
	return &sa
}

func (sa *sockaddrBth) endpoint() (btaddr.Addr, uint16) {
	addr := btaddr.FromUint64(binary.LittleEndian.Uint64(sa[2:]))
	return addr, uint16(binary.LittleEndian.Uint32(sa[26:]))
}

type wsaPollFd struct {
	fd      uintptr
	events  int16
	revents int16
}

var (
	startupOnce sync.Once
	startupErr  error
)

func startup() error {
	startupOnce.Do(func() {
		var data windows.WSAData
		startupErr = windows.WSAStartup(uint32(0x0202), &data)
	})
	return startupErr
}

var defaultPlatform = &winsock{}

// Default returns the Windows Sockets (AF_BTH) backend.
func Default() Platform {
	return defaultPlatform
}

type winsock struct {
	// Winsock cannot report whether FIONBIO is set, so the last value set is tracked here.
	nonblocking sync.Map
}

// callErr turns the result of an int-returning ws2_32 proc into an error.
func callErr(r uintptr, e error) error {
	if int32(r) != -1 {
		return nil
	}
	if errno, ok := e.(syscall.Errno); ok && errno != 0 {
		return errno
	}
	return syscall.EINVAL
}

func (w *winsock) Open(p protocol.Protocol) (Handle, error) {
	if err := startup(); err != nil {
		return 0, classify(OpOpen, err)
	}
	family, sotype, proto, err := Resolve(p)
	if err != nil {
		return 0, err
	}
	s, err := windows.WSASocket(int32(family), int32(sotype), int32(proto), nil, 0, wsaFlagOverlapped|wsaFlagNoHandleInherit)
	if err != nil {
		log.Debug("shim: WSASocket(%s) failed: %s", p, err)
		return 0, classify(OpOpen, err)
	}
	log.Debug("shim: WSASocket(%s) = %d", p, s)
	return Handle(s), nil
}

func (w *winsock) Bind(h Handle, addr btaddr.Addr, port uint16) error {
	sa := newSockaddrBth(addr, port)
	r, _, e := procBind.Call(uintptr(h), uintptr(unsafe.Pointer(&sa[0])), sockaddrBthLen)
	err := callErr(r, e)
	log.Debug("shim: bind(%d, %s/%d): %v", h, addr, port, err)
	return classify(OpBind, err)
}

func (w *winsock) Connect(h Handle, addr btaddr.Addr, port uint16, timeout time.Duration) error {
	sa := newSockaddrBth(addr, port)
	if timeout <= 0 {
		r, _, e := procConnect.Call(uintptr(h), uintptr(unsafe.Pointer(&sa[0])), sockaddrBthLen)
		err := callErr(r, e)
		log.Debug("shim: connect(%d, %s/%d): %v", h, addr, port, err)
		return classify(OpConnect, err)
	}

	wasNonBlocking := w.isNonBlocking(h)
	if !wasNonBlocking {
		if err := w.setNonBlocking(h, true); err != nil {
			return classify(OpConnect, err)
		}
	}
	r, _, e := procConnect.Call(uintptr(h), uintptr(unsafe.Pointer(&sa[0])), sockaddrBthLen)
	err := callErr(r, e)
	if !wasNonBlocking {
		if restoreErr := w.setNonBlocking(h, false); restoreErr != nil {
			return classify(OpConnect, restoreErr)
		}
	}
	log.Debug("shim: connect(%d, %s/%d, timeout %s): %v", h, addr, port, timeout, err)
	if err == nil {
		return nil
	}
	if err != wsaewouldblock {
		return classify(OpConnect, err)
	}

	ms := int32(timeout / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	fds := []wsaPollFd{{fd: uintptr(h), events: pollWrNorm}}
	r, _, e = procWSAPoll.Call(uintptr(unsafe.Pointer(&fds[0])), 1, uintptr(ms))
	if err := callErr(r, e); err != nil {
		return classify(OpConnect, err)
	}
	if r == 0 {
		return protocol.NewError(protocol.Timeout, OpConnect, fmt.Errorf("no response within %s", timeout))
	}
	if fds[0].revents&(pollErr|pollHup) != 0 {
		kind, err := w.GetOption(h, OptionError)
		if err != nil {
			return err
		}
		if kind != 0 {
			return protocol.NewError(protocol.ErrorKind(kind), OpConnect, nil)
		}
		return protocol.NewError(protocol.ConnectionRefused, OpConnect, fmt.Errorf("hangup without pending error"))
	}
	return nil
}

func (w *winsock) Listen(h Handle, backlog int) error {
	err := windows.Listen(windows.Handle(h), backlog)
	log.Debug("shim: listen(%d, %d): %v", h, backlog, err)
	if err == wsaeinval {
		return protocol.NewError(protocol.InvalidState, OpListen, fmt.Errorf("socket is not bound: %w", err))
	}
	return classify(OpListen, err)
}

func (w *winsock) Accept(h Handle) (Handle, btaddr.Addr, uint16, error) {
	var sa sockaddrBth
	salen := int32(sockaddrBthLen)
	r, _, e := procAccept.Call(uintptr(h), uintptr(unsafe.Pointer(&sa[0])), uintptr(unsafe.Pointer(&salen)))
	if r == invalidSocket {
		err := callErr(invalidSocket, e)
		log.Debug("shim: accept(%d): %s", h, err)
		return 0, btaddr.Any, 0, classify(OpAccept, err)
	}
	peer, port := sa.endpoint()
	log.Debug("shim: accept(%d) = %d from %s/%d", h, r, peer, port)
	return Handle(r), peer, port, nil
}

func (w *winsock) Send(h Handle, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	buf := windows.WSABuf{Len: uint32(len(b)), Buf: &b[0]}
	var sent uint32
	if err := windows.WSASend(windows.Handle(h), &buf, 1, &sent, 0, nil, nil); err != nil {
		return 0, classify(OpSend, err)
	}
	return int(sent), nil
}

func (w *winsock) Recv(h Handle, b []byte) (int, error) {
	return w.recv(OpRecv, h, b, 0)
}

func (w *winsock) Peek(h Handle, b []byte) (int, error) {
	return w.recv(OpPeek, h, b, msgPeek)
}

func (w *winsock) recv(op string, h Handle, b []byte, flags uint32) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	buf := windows.WSABuf{Len: uint32(len(b)), Buf: &b[0]}
	var received uint32
	if err := windows.WSARecv(windows.Handle(h), &buf, 1, &received, &flags, nil, nil); err != nil {
		return 0, classify(op, err)
	}
	return int(received), nil
}

var shutdownHow = map[Direction]int{
	ShutdownRead:  sdReceive,
	ShutdownWrite: sdSend,
	ShutdownBoth:  sdBoth,
}

func (w *winsock) Shutdown(h Handle, how Direction) error {
	native, ok := shutdownHow[how]
	if !ok {
		return protocol.NewError(protocol.InvalidState, OpShutdown, fmt.Errorf("invalid direction %d", how))
	}
	err := windows.Shutdown(windows.Handle(h), native)
	log.Debug("shim: shutdown(%d, %s): %v", h, how, err)
	return classify(OpShutdown, err)
}

func (w *winsock) Close(h Handle) error {
	err := windows.Closesocket(windows.Handle(h))
	w.nonblocking.Delete(h)
	log.Debug("shim: closesocket(%d): %v", h, err)
	return classify(OpClose, err)
}

func (w *winsock) isNonBlocking(h Handle) bool {
	v, ok := w.nonblocking.Load(h)
	return ok && v.(bool)
}

func (w *winsock) setNonBlocking(h Handle, nonblocking bool) error {
	arg := uint32(BoolValue(nonblocking))
	r, _, e := procIoctlsocket.Call(uintptr(h), fionbio, uintptr(unsafe.Pointer(&arg)))
	if err := callErr(r, e); err != nil {
		return err
	}
	w.nonblocking.Store(h, nonblocking)
	return nil
}

var timeoutOptions = map[Option]int32{
	OptionReadTimeout:  soRcvTimeo,
	OptionWriteTimeout: soSndTimeo,
}

func (w *winsock) SetOption(h Handle, opt Option, value int64) error {
	if name, ok := timeoutOptions[opt]; ok {
		if value < 0 {
			return protocol.NewError(protocol.InvalidState, OpSetOpt, fmt.Errorf("negative %s", opt))
		}
		// SO_RCVTIMEO and SO_SNDTIMEO are DWORD milliseconds on Windows.
		ms := uint32(time.Duration(value) / time.Millisecond)
		if value > 0 && ms == 0 {
			ms = 1
		}
		err := windows.Setsockopt(windows.Handle(h), solSocket, name, (*byte)(unsafe.Pointer(&ms)), 4)
		return classify(OpSetOpt, err)
	}
	switch opt {
	case OptionNonBlocking:
		return classify(OpSetOpt, w.setNonBlocking(h, value != 0))
	case OptionError:
		return protocol.NewError(protocol.InvalidState, OpSetOpt, fmt.Errorf("%s is read-only", opt))
	}
	return protocol.NewError(protocol.Unsupported, OpSetOpt, fmt.Errorf("option %d", opt))
}

func (w *winsock) GetOption(h Handle, opt Option) (int64, error) {
	if name, ok := timeoutOptions[opt]; ok {
		var ms uint32
		size := int32(4)
		if err := windows.Getsockopt(windows.Handle(h), solSocket, name, (*byte)(unsafe.Pointer(&ms)), &size); err != nil {
			return 0, classify(OpGetOpt, err)
		}
		return int64(time.Duration(ms) * time.Millisecond), nil
	}
	switch opt {
	case OptionNonBlocking:
		return BoolValue(w.isNonBlocking(h)), nil
	case OptionError:
		var soErr int32
		size := int32(4)
		if err := windows.Getsockopt(windows.Handle(h), solSocket, soError, (*byte)(unsafe.Pointer(&soErr)), &size); err != nil {
			return 0, classify(OpGetOpt, err)
		}
		if soErr == 0 {
			return 0, nil
		}
		return int64(errnoKind(OpGetOpt, syscall.Errno(soErr))), nil
	}
	return 0, protocol.NewError(protocol.Unsupported, OpGetOpt, fmt.Errorf("option %d", opt))
}

func (w *winsock) LocalAddr(h Handle) (btaddr.Addr, uint16, error) {
	return w.name(procGetsockname, OpSockname, h)
}

func (w *winsock) PeerAddr(h Handle) (btaddr.Addr, uint16, error) {
	return w.name(procGetpeername, OpPeername, h)
}

func (w *winsock) name(proc *windows.LazyProc, op string, h Handle) (btaddr.Addr, uint16, error) {
	var sa sockaddrBth
	salen := int32(sockaddrBthLen)
	r, _, e := proc.Call(uintptr(h), uintptr(unsafe.Pointer(&sa[0])), uintptr(unsafe.Pointer(&salen)))
	if err := callErr(r, e); err != nil {
		return btaddr.Any, 0, classify(op, err)
	}
	addr, port := sa.endpoint()
	return addr, port, nil
}
