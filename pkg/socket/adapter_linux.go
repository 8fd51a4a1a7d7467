package socket

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/teslamotors/btsocket/internal/log"
	"github.com/teslamotors/btsocket/pkg/btaddr"
	"github.com/teslamotors/btsocket/pkg/protocol"
)

const (
	bluezService     = "org.bluez"
	adapterInterface = "org.bluez.Adapter1"
	getManagedObjs   = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

var errNoAdapter = errors.New("no bluetooth adapter found")

// Adapters lists the controllers known to BlueZ.
func Adapters() ([]Adapter, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := bus.Object(bluezService, dbus.ObjectPath("/")).Call(getManagedObjs, 0)
	if call.Err != nil {
		return nil, fmt.Errorf("query %s: %w", bluezService, call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("decode %s objects: %w", bluezService, err)
	}

	var adapters []Adapter
	for objectPath, interfaces := range objects {
		props, ok := interfaces[adapterInterface]
		if !ok {
			continue
		}
		adapter := Adapter{ID: path.Base(string(objectPath))}
		if v, ok := props["Address"]; ok {
			text, _ := v.Value().(string)
			if adapter.Address, err = btaddr.Parse(text); err != nil {
				log.Warning("Adapter %s reports invalid address %q", adapter.ID, text)
			}
		}
		if v, ok := props["Alias"]; ok {
			adapter.Name, _ = v.Value().(string)
		}
		if v, ok := props["Powered"]; ok {
			adapter.Powered, _ = v.Value().(bool)
		}
		adapters = append(adapters, adapter)
	}
	sort.Slice(adapters, func(i, j int) bool { return adapters[i].ID < adapters[j].ID })
	log.Debug("BlueZ reports %d adapter(s)", len(adapters))
	return adapters, nil
}

// CheckAdapter returns an error unless at least one adapter is powered on.
func CheckAdapter() error {
	adapters, err := Adapters()
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		return errNoAdapter
	}
	for _, adapter := range adapters {
		if adapter.Powered {
			return nil
		}
	}
	return fmt.Errorf("adapter %s is powered off", adapters[0].ID)
}

// IsAdapterError returns true if err indicates the host has no usable Bluetooth stack.
func IsAdapterError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errNoAdapter) {
		return true
	}
	switch protocol.KindOf(err) {
	case protocol.Unsupported, protocol.HostUnreachable:
		return true
	}
	// D-Bus not found
	if strings.Contains(err.Error(), "dbus") && strings.HasSuffix(err.Error(), "no such file or directory") {
		return true
	}
	// D-Bus is running but org.bluez is not found
	if strings.Contains(err.Error(), "The name org.bluez was not provided by any .service files") {
		return true
	}
	return strings.Contains(err.Error(), "powered off")
}

func AdapterErrorHelpMessage(err error) string {
	return "Failed to use Bluetooth adapter: \n\t" + err.Error() + "\n" +
		"Make sure bluez and dbus are installed and running, and that an adapter is powered on (bluetoothctl power on).\n" +
		"If running in a container, make sure the container has access to the host's D-Bus socket and network namespace. (e.g. -v /var/run/dbus:/var/run/dbus --net=host)"
}
