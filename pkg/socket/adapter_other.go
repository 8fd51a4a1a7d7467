//go:build !linux

package socket

import (
	"errors"

	"github.com/teslamotors/btsocket/pkg/protocol"
)

var errAdapterQuery = errors.New("adapter enumeration is only supported on Linux")

// Adapters is only implemented on Linux.
func Adapters() ([]Adapter, error) {
	return nil, errAdapterQuery
}

// CheckAdapter returns nil; adapter state is discovered when a socket is opened.
func CheckAdapter() error {
	return nil
}

func IsAdapterError(err error) bool {
	switch protocol.KindOf(err) {
	case protocol.Unsupported, protocol.HostUnreachable:
		return true
	}
	return false
}

func AdapterErrorHelpMessage(err error) string {
	return err.Error()
}
