package bluez

import (
	"path"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/srg/scorelink/internal/radio"
)

func (a *Adapter) handleSignal(sig *dbus.Signal) {
	if sig == nil {
		return
	}
	switch sig.Name {
	case interfacesAdded:
		a.handleInterfacesAdded(sig)
	case propertiesChanged:
		a.handlePropertiesChanged(sig)
	}
}

func (a *Adapter) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	objPath, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok || !a.owns(objPath) {
		return
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}
	props, ok := ifaces[deviceInterface]
	if !ok {
		return
	}

	ev := radio.Event{Kind: radio.EventFound}
	ev.Address, _ = stringProp(props, "Address")
	if ev.Address == "" {
		if ev.Address, ok = AddressFromPath(objPath); !ok {
			return
		}
	}
	if name, ok := deviceName(props); ok {
		ev.Name = name
		a.names.Set(objPath, name)
	}
	if rssi, ok := props["RSSI"].Value().(int16); ok {
		ev.RSSI = rssi
	}
	a.emitFound(ev)
}

func (a *Adapter) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	switch iface {
	case adapterInterface:
		if sig.Path != a.path {
			return
		}
		discovering, ok := changed["Discovering"].Value().(bool)
		if !ok || discovering {
			return
		}
		a.mu.Lock()
		was := a.discovering
		a.discovering = false
		a.mu.Unlock()
		if was {
			a.Emit(radio.Event{Kind: radio.EventFinished})
		}

	case deviceInterface:
		if !a.owns(sig.Path) {
			return
		}
		if name, ok := deviceName(changed); ok {
			a.names.Set(sig.Path, name)
		}
		rssi, ok := changed["RSSI"].Value().(int16)
		if !ok {
			return
		}
		address, ok := AddressFromPath(sig.Path)
		if !ok {
			return
		}
		a.emitFound(radio.Event{Kind: radio.EventFound, Address: address, Name: a.nameOf(sig.Path), RSSI: rssi})
	}
}

// nameOf returns the cached device name, reading it from BlueZ on a miss.
// Unnamed devices are cached as "" until a Name change arrives.
func (a *Adapter) nameOf(p dbus.ObjectPath) string {
	if name, ok := a.names.Get(p); ok {
		return name
	}
	var name string
	if a.lookupName != nil {
		name, _ = a.lookupName(p)
	}
	a.names.Set(p, name)
	return name
}

func (a *Adapter) emitFound(ev radio.Event) {
	a.mu.Lock()
	active := a.discovering
	a.mu.Unlock()
	if active {
		a.Emit(ev)
	}
}

func (a *Adapter) owns(p dbus.ObjectPath) bool {
	return strings.HasPrefix(string(p), string(a.path)+"/")
}

// AddressFromPath extracts the device address from a BlueZ device object
// path such as /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func AddressFromPath(p dbus.ObjectPath) (string, bool) {
	base := path.Base(string(p))
	if !strings.HasPrefix(base, "dev_") {
		return "", false
	}
	addr := strings.ReplaceAll(strings.TrimPrefix(base, "dev_"), "_", ":")
	if len(addr) != 17 {
		return "", false
	}
	return strings.ToUpper(addr), true
}

func stringProp(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

// deviceName ignores Alias, which BlueZ fills with the address for unnamed
// devices.
func deviceName(props map[string]dbus.Variant) (string, bool) {
	if name, ok := stringProp(props, "Name"); ok && name != "" {
		return name, true
	}
	return "", false
}
