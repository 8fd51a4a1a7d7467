package socket

import (
	"fmt"
	"net"

	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

// Endpoint is one end of a Bluetooth connection: an adapter address and an RFCOMM channel or
// L2CAP PSM.
type Endpoint struct {
	Protocol protocol.Protocol
	Addr     btaddr.Addr
	Port     uint16
}

var _ net.Addr = Endpoint{}

// Network returns the protocol name, "rfcomm" or "l2cap".
func (e Endpoint) Network() string {
	return e.Protocol.String()
}

// String formats e as "[00:1A:7D:DA:71:13]:5".
func (e Endpoint) String() string {
	return fmt.Sprintf("[%s]:%d", e.Addr, e.Port)
}
