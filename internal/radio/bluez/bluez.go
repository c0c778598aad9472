// Package bluez implements radio.Adapter discovery against the BlueZ daemon
// over the D-Bus system bus.
//
// Discovery results arrive as ObjectManager.InterfacesAdded signals for new
// devices and Properties.PropertiesChanged signals (RSSI updates) for devices
// BlueZ already knows. Stream connections are delegated to a
// radio.StreamOpener, normally the rfcomm dialer.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/groutine"
	"github.com/srg/scorelink/internal/radio"
)

const (
	busName = "org.bluez"

	adapterInterface    = "org.bluez.Adapter1"
	deviceInterface     = "org.bluez.Device1"
	propertiesInterface = "org.freedesktop.DBus.Properties"
	objectManager       = "org.freedesktop.DBus.ObjectManager"

	interfacesAdded   = objectManager + ".InterfacesAdded"
	propertiesChanged = propertiesInterface + ".PropertiesChanged"

	// DefaultAdapter is the controller used when none is configured.
	DefaultAdapter = "hci0"

	signalBuffer = 64
)

// ErrNoStreamOpener is returned by OpenStream when the adapter was built
// without a stream opener.
var ErrNoStreamOpener = errors.New("no stream opener configured")

// Adapter is a radio.Adapter backed by one BlueZ controller.
type Adapter struct {
	*radio.Broadcaster

	conn    *dbus.Conn
	path    dbus.ObjectPath
	opener  radio.StreamOpener
	logger  *logrus.Logger
	names   *hashmap.Map[dbus.ObjectPath, string]
	// lookupName resolves the name of a device first seen through an RSSI
	// change, such as one paired before this process started.
	lookupName func(dbus.ObjectPath) (string, bool)
	signals chan *dbus.Signal
	pump    *groutine.Task

	mu          sync.Mutex
	discovering bool
	closeOnce   sync.Once
}

// AdapterPath returns the object path of the named controller.
func AdapterPath(name string) dbus.ObjectPath {
	if name == "" {
		name = DefaultAdapter
	}
	return dbus.ObjectPath("/org/bluez/" + name)
}

func newAdapter(path dbus.ObjectPath, opener radio.StreamOpener, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{
		Broadcaster: radio.NewBroadcaster(),
		path:        path,
		opener:      opener,
		logger:      logger,
		names:       hashmap.New[dbus.ObjectPath, string](),
	}
}

// Connect attaches to the system bus and starts listening for discovery
// signals on the named controller.
func Connect(adapterName string, opener radio.StreamOpener, logger *logrus.Logger) (*Adapter, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, device.NewError(device.AdapterUnavailable, "connect system bus", err)
	}

	a := newAdapter(AdapterPath(adapterName), opener, logger)
	a.conn = conn
	a.lookupName = a.readName

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(objectManager), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchInterface(propertiesInterface), dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchPathNamespace(a.path)},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			_ = conn.Close()
			return nil, device.NewError(device.RegistrationFailure, "add match", err)
		}
	}

	a.signals = make(chan *dbus.Signal, signalBuffer)
	conn.Signal(a.signals)
	a.pump = groutine.Go(context.Background(), "bluez-signals", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-a.signals:
				if !ok {
					return
				}
				a.handleSignal(sig)
			}
		}
	})

	a.logger.WithField("adapter", a.path).Debug("Connected to BlueZ")
	return a, nil
}

func (a *Adapter) object() dbus.BusObject {
	return a.conn.Object(busName, a.path)
}

func (a *Adapter) readName(p dbus.ObjectPath) (string, bool) {
	v, err := a.conn.Object(busName, p).GetProperty(deviceInterface + ".Name")
	if err != nil {
		a.logger.WithError(err).WithField("device", p).Debug("Failed to read device name")
		return "", false
	}
	name, ok := v.Value().(string)
	return name, ok && name != ""
}

// IsEnabled reports whether the controller exists and is powered.
func (a *Adapter) IsEnabled() bool {
	v, err := a.object().GetProperty(adapterInterface + ".Powered")
	if err != nil {
		a.logger.WithError(err).Debug("Failed to read adapter power state")
		return false
	}
	powered, ok := v.Value().(bool)
	return ok && powered
}

// StartDiscovery starts BlueZ discovery on both transports.
func (a *Adapter) StartDiscovery() error {
	obj := a.object()

	filter := map[string]interface{}{"Transport": "auto", "DuplicateData": true}
	if err := obj.Call(adapterInterface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		a.logger.WithError(err).Debug("Failed to set discovery filter")
	}

	a.mu.Lock()
	a.discovering = true
	a.mu.Unlock()

	if err := obj.Call(adapterInterface+".StartDiscovery", 0).Err; err != nil {
		a.mu.Lock()
		a.discovering = false
		a.mu.Unlock()
		return device.NormalizeError("start discovery", fmt.Errorf("start discovery: %w", err))
	}
	return nil
}

// CancelDiscovery stops BlueZ discovery. Stopping when discovery is not
// running is not an error.
func (a *Adapter) CancelDiscovery() error {
	a.mu.Lock()
	was := a.discovering
	a.discovering = false
	a.mu.Unlock()

	if !was {
		return nil
	}
	err := a.object().Call(adapterInterface+".StopDiscovery", 0).Err
	if isNotDiscovering(err) {
		return nil
	}
	return err
}

func isNotDiscovering(err error) bool {
	var derr dbus.Error
	if !errors.As(err, &derr) {
		return false
	}
	return derr.Name == "org.bluez.Error.NotReady" || derr.Name == "org.bluez.Error.Failed"
}

// OpenStream delegates to the configured stream opener.
func (a *Adapter) OpenStream(ctx context.Context, address string, service uuid.UUID) (radio.Stream, error) {
	if a.opener == nil {
		return nil, device.NewError(device.IOFailure, "open stream", ErrNoStreamOpener)
	}
	return a.opener.OpenStream(ctx, address, service)
}

// Close stops discovery, detaches signal delivery and closes the bus
// connection.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.conn == nil {
			return
		}
		if cerr := a.CancelDiscovery(); cerr != nil {
			a.logger.WithError(cerr).Warn("Failed to stop discovery")
		}
		a.conn.RemoveSignal(a.signals)
		if a.pump != nil {
			a.pump.Cancel()
		}
		err = a.conn.Close()
	})
	return err
}
