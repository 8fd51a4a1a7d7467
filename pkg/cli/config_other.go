//go:build !linux

package cli

import (
	"flag"
	"fmt"
	"runtime"

	"github.com/teslamotors/btsocket/pkg/btaddr"
)

func (c *Config) registerFlagsOsSpecific(_ *flag.FlagSet) {}

func resolveAdapter(id string) (btaddr.Addr, error) {
	return btaddr.Any, fmt.Errorf("adapter IDs such as %s are not supported on %s", id, runtime.GOOS)
}
