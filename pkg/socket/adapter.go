package socket

import (
	"fmt"

	"github.com/teslamotors/btsocket/pkg/btaddr"
)

// Adapter describes a local Bluetooth controller.
type Adapter struct {
	ID      string
	Address btaddr.Addr
	Name    string
	Powered bool
}

func (a Adapter) String() string {
	state := "off"
	if a.Powered {
		state = "on"
	}
	return fmt.Sprintf("%s %s (%s) powered %s", a.ID, a.Address, a.Name, state)
}
