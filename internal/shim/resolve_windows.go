//go:build windows

package shim

import (
	"errors"
	"fmt"

	"github.com/teslamotors/btsocket/pkg/protocol"
)

// ws2bth.h
const (
	afBth          = 32
	sockStream     = 1
	bthprotoRfcomm = 0x0003
	bthprotoL2cap  = 0x0100
)

// Resolve maps p to the native (family, type, protocol) triple passed to WSASocket. Windows
// Sockets exposes RFCOMM only; L2CAP is reserved for kernel-mode profile drivers.
func Resolve(p protocol.Protocol) (family, sotype, proto int, err error) {
	switch p {
	case protocol.RFCOMM:
		return afBth, sockStream, bthprotoRfcomm, nil
	case protocol.L2CAP:
		return 0, 0, 0, protocol.NewError(protocol.Unsupported, OpOpen, errors.New("l2cap sockets are not available through Windows Sockets"))
	}
	return 0, 0, 0, protocol.NewError(protocol.Unsupported, OpOpen, fmt.Errorf("unknown protocol %s", p))
}
