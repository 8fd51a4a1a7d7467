// Package protocol defines the Bluetooth transport protocols supported by btsocket and the
// portable error taxonomy every socket operation reports.
package protocol

import (
	"fmt"
	"strings"
)

// Protocol selects the Bluetooth transport used by a socket. The zero value is not a valid
// protocol.
type Protocol int

const (
	// RFCOMM is the reliable, stream-oriented serial port emulation protocol. Ports are channels.
	RFCOMM Protocol = iota + 1
	// L2CAP is the connection-oriented logical link protocol. Ports are PSMs.
	L2CAP
)

// Valid RFCOMM channels are MinChannel through MaxChannel.
const (
	MinChannel = 1
	MaxChannel = 30
)

var protocolNames = map[Protocol]string{
	RFCOMM: "rfcomm",
	L2CAP:  "l2cap",
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

// Valid returns true if p is RFCOMM or L2CAP.
func (p Protocol) Valid() bool {
	_, ok := protocolNames[p]
	return ok
}

// ParseProtocol converts a case-insensitive protocol name into a Protocol.
func ParseProtocol(name string) (Protocol, error) {
	canonical := strings.ToLower(strings.TrimSpace(name))
	for p, n := range protocolNames {
		if n == canonical {
			return p, nil
		}
	}
	return 0, NewError(Unsupported, "parse protocol", fmt.Errorf("unknown protocol '%s'", name))
}

// Set updates p from a command-line argument.
func (p *Protocol) Set(value string) error {
	parsed, err := ParseProtocol(value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ValidatePort checks that port is a legal RFCOMM channel or L2CAP PSM for p.
//
// RFCOMM channels range from 1 to 30. L2CAP PSMs must be odd and the least significant bit of
// their high byte must be clear. A zero port asks the host stack to allocate one and is only
// accepted when forBind is true.
func ValidatePort(p Protocol, port uint16, forBind bool) error {
	if port == 0 {
		if forBind {
			return nil
		}
		return NewError(InvalidAddress, "validate port", fmt.Errorf("%s port must be set", p))
	}
	switch p {
	case RFCOMM:
		if port < MinChannel || port > MaxChannel {
			return NewError(InvalidAddress, "validate port", fmt.Errorf("rfcomm channel %d outside [%d, %d]", port, MinChannel, MaxChannel))
		}
	case L2CAP:
		if port&0x0001 == 0 || port&0x0100 != 0 {
			return NewError(InvalidAddress, "validate port", fmt.Errorf("invalid l2cap psm 0x%04x", port))
		}
	default:
		return NewError(Unsupported, "validate port", fmt.Errorf("unsupported %s", p))
	}
	return nil
}
