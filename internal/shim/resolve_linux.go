//go:build linux

package shim

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/teslamotors/btsocket/pkg/protocol"
)

// Resolve maps p to the native (family, type, protocol) triple passed to socket(2).
//
// L2CAP uses SOCK_SEQPACKET, the connection-oriented L2CAP socket type BlueZ supports in every
// channel mode; reads never merge two packets, which still satisfies the stream contract.
func Resolve(p protocol.Protocol) (family, sotype, proto int, err error) {
	switch p {
	case protocol.RFCOMM:
		return unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM, nil
	case protocol.L2CAP:
		return unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET, unix.BTPROTO_L2CAP, nil
	}
	return 0, 0, 0, protocol.NewError(protocol.Unsupported, OpOpen, fmt.Errorf("unknown protocol %s", p))
}
