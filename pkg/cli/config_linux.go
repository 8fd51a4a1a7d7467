package cli

import (
	"flag"
	"fmt"

	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/socket"
)

func (c *Config) registerFlagsOsSpecific(fs *flag.FlagSet) {
	fs.StringVar(&c.AdapterID, "bt-adapter", "", "ID of the Bluetooth adapter to listen on, such as hci0, when -adapter is not set.")
}

func resolveAdapter(id string) (btaddr.Addr, error) {
	adapters, err := socket.Adapters()
	if err != nil {
		return btaddr.Any, err
	}
	for _, adapter := range adapters {
		if adapter.ID == id {
			return adapter.Address, nil
		}
	}
	return btaddr.Any, fmt.Errorf("bluetooth adapter %s not found", id)
}
