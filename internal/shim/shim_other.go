//go:build !linux && !windows

package shim

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

var errNoBackend = fmt.Errorf("bluetooth sockets are not available on %s", runtime.GOOS)

// Resolve always fails on targets without a native backend.
func Resolve(p protocol.Protocol) (family, sotype, proto int, err error) {
	return 0, 0, 0, protocol.NewError(protocol.Unsupported, OpOpen, errNoBackend)
}

// Default returns a backend that fails every call with protocol.Unsupported.
func Default() Platform {
	return unsupported{}
}

type unsupported struct{}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sockErr *protocol.SocketError
	if errors.As(err, &sockErr) {
		return err
	}
	return protocol.NewError(protocol.Unsupported, op, err)
}

func fail(op string) error {
	return protocol.NewError(protocol.Unsupported, op, errNoBackend)
}

func (unsupported) Open(p protocol.Protocol) (Handle, error) {
	_, _, _, err := Resolve(p)
	return 0, err
}

func (unsupported) Bind(Handle, btaddr.Addr, uint16) error { return fail(OpBind) }

func (unsupported) Connect(Handle, btaddr.Addr, uint16, time.Duration) error {
	return fail(OpConnect)
}

func (unsupported) Listen(Handle, int) error { return fail(OpListen) }

func (unsupported) Accept(Handle) (Handle, btaddr.Addr, uint16, error) {
	return 0, btaddr.Any, 0, fail(OpAccept)
}

func (unsupported) Send(Handle, []byte) (int, error) { return 0, fail(OpSend) }
func (unsupported) Recv(Handle, []byte) (int, error) { return 0, fail(OpRecv) }
func (unsupported) Peek(Handle, []byte) (int, error) { return 0, fail(OpPeek) }
func (unsupported) Shutdown(Handle, Direction) error { return fail(OpShutdown) }
func (unsupported) Close(Handle) error { return fail(OpClose) }
func (unsupported) SetOption(Handle, Option, int64) error { return fail(OpSetOpt) }

func (unsupported) GetOption(Handle, Option) (int64, error) { return 0, fail(OpGetOpt) }

func (unsupported) LocalAddr(Handle) (btaddr.Addr, uint16, error) {
	return btaddr.Any, 0, fail(OpSockname)
}

func (unsupported) PeerAddr(Handle) (btaddr.Addr, uint16, error) {
	return btaddr.Any, 0, fail(OpPeername)
}
