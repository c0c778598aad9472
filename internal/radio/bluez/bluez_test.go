package bluez

import (
	"context"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/radio"
	"github.com/srg/scorelink/internal/testutils"
)

const watchPath = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

type SignalTestSuite struct {
	suite.Suite
	adapter *Adapter
	events  []radio.Event
}

func (s *SignalTestSuite) SetupTest() {
	helper := testutils.NewTestHelper(s.T())
	s.adapter = newAdapter(AdapterPath("hci0"), nil, helper.Logger)
	s.adapter.discovering = true
	s.events = nil
	_, err := s.adapter.Subscribe(func(ev radio.Event) { s.events = append(s.events, ev) })
	s.Require().NoError(err)
}

func added(p dbus.ObjectPath, props map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: "/",
		Name: interfacesAdded,
		Body: []interface{}{p, map[string]map[string]dbus.Variant{deviceInterface: props}},
	}
}

func changed(p dbus.ObjectPath, iface string, props map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: p,
		Name: propertiesChanged,
		Body: []interface{}{iface, props, []string{}},
	}
}

func (s *SignalTestSuite) TestInterfacesAddedReportsDevice() {
	// GOAL: a newly discovered device is reported with address, name and signal strength
	//
	// TEST SCENARIO: InterfacesAdded with Device1 props -> one Found event

	s.adapter.handleSignal(added(watchPath, map[string]dbus.Variant{
		"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
		"Name":    dbus.MakeVariant("WATCH-7"),
		"RSSI":    dbus.MakeVariant(int16(-48)),
	}))

	s.Require().Len(s.events, 1)
	s.Equal(radio.Event{Kind: radio.EventFound, Address: "AA:BB:CC:DD:EE:FF", Name: "WATCH-7", RSSI: -48}, s.events[0])
}

func (s *SignalTestSuite) TestRSSIUpdateUsesCachedName() {
	// GOAL: a device BlueZ already knows is reported on RSSI change with its last known name
	//
	// TEST SCENARIO: name change (no RSSI) -> nothing; RSSI change -> Found with cached name

	s.adapter.handleSignal(changed(watchPath, deviceInterface, map[string]dbus.Variant{
		"Name": dbus.MakeVariant("Sensor"),
	}))
	s.Empty(s.events, "property changes without RSSI MUST NOT be reported")

	s.adapter.handleSignal(changed(watchPath, deviceInterface, map[string]dbus.Variant{
		"RSSI": dbus.MakeVariant(int16(-60)),
	}))

	s.Require().Len(s.events, 1)
	s.Equal("AA:BB:CC:DD:EE:FF", s.events[0].Address)
	s.Equal("Sensor", s.events[0].Name)
	s.Equal(int16(-60), s.events[0].RSSI)
}

func (s *SignalTestSuite) TestRSSIUpdateForKnownDeviceReadsName() {
	// GOAL: a device BlueZ knew before we started (no InterfacesAdded) is still reported with its
	// name, so a paired watch is classified as a watch
	//
	// TEST SCENARIO: RSSI change with an empty cache -> name looked up once -> Found event
	// classified WATCH; a second RSSI change uses the cache

	lookups := 0
	s.adapter.lookupName = func(p dbus.ObjectPath) (string, bool) {
		lookups++
		s.Equal(watchPath, p)
		return "Galaxy Watch", true
	}

	rssi := changed(watchPath, deviceInterface, map[string]dbus.Variant{
		"RSSI": dbus.MakeVariant(int16(-52)),
	})
	s.adapter.handleSignal(rssi)
	s.adapter.handleSignal(rssi)

	s.Require().Len(s.events, 2)
	s.Equal("Galaxy Watch", s.events[0].Name)
	p := device.NewPeripheral(s.events[0].Address, s.events[0].Name)
	s.Equal(device.Watch, p.Class, "a known watch MUST be classified WATCH")
	s.Equal(1, lookups, "the name MUST be read from BlueZ only on a cache miss")
}

func (s *SignalTestSuite) TestRSSIUpdateForUnnamedDeviceLooksUpOnce() {
	lookups := 0
	s.adapter.lookupName = func(dbus.ObjectPath) (string, bool) {
		lookups++
		return "", false
	}

	rssi := changed(watchPath, deviceInterface, map[string]dbus.Variant{
		"RSSI": dbus.MakeVariant(int16(-70)),
	})
	s.adapter.handleSignal(rssi)
	s.adapter.handleSignal(rssi)

	s.Require().Len(s.events, 2)
	s.Empty(s.events[1].Name)
	s.Equal(1, lookups)
}

func (s *SignalTestSuite) TestIgnoresForeignAndMalformedSignals() {
	other := dbus.ObjectPath("/org/bluez/hci1/dev_11_22_33_44_55_66")

	s.adapter.handleSignal(added(other, map[string]dbus.Variant{"Address": dbus.MakeVariant("11:22:33:44:55:66")}))
	s.adapter.handleSignal(&dbus.Signal{Name: interfacesAdded, Body: []interface{}{watchPath}})
	s.adapter.handleSignal(&dbus.Signal{Name: "org.example.Other", Body: []interface{}{}})
	s.adapter.handleSignal(nil)

	s.Empty(s.events, "signals for other controllers or with bad bodies MUST be ignored")
}

func (s *SignalTestSuite) TestNoEventsWhenNotDiscovering() {
	s.adapter.discovering = false

	s.adapter.handleSignal(changed(watchPath, deviceInterface, map[string]dbus.Variant{
		"RSSI": dbus.MakeVariant(int16(-60)),
	}))

	s.Empty(s.events)
}

func (s *SignalTestSuite) TestDiscoveringFalseReportsFinishedOnce() {
	// GOAL: the platform ending discovery is reported as Finished exactly once
	//
	// TEST SCENARIO: Discovering=false twice -> one Finished event

	stop := changed(AdapterPath("hci0"), adapterInterface, map[string]dbus.Variant{
		"Discovering": dbus.MakeVariant(false),
	})
	s.adapter.handleSignal(stop)
	s.adapter.handleSignal(stop)

	s.Require().Len(s.events, 1)
	s.Equal(radio.EventFinished, s.events[0].Kind)
}

func (s *SignalTestSuite) TestCancelWithoutDiscoveryIsNoop() {
	s.adapter.discovering = false
	s.NoError(s.adapter.CancelDiscovery())
	s.NoError(s.adapter.Close(), "closing an adapter without a bus connection MUST succeed")
}

func (s *SignalTestSuite) TestOpenStreamWithoutOpener() {
	_, err := s.adapter.OpenStream(context.Background(), "AA:BB:CC:DD:EE:FF", device.SerialPortServiceID)
	s.ErrorIs(err, ErrNoStreamOpener)
}

func TestSignalTestSuite(t *testing.T) {
	suite.Run(t, new(SignalTestSuite))
}

func TestAddressFromPath(t *testing.T) {
	addr, ok := AddressFromPath("/org/bluez/hci0/dev_aa_bb_cc_dd_ee_ff")
	assert.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", addr)

	_, ok = AddressFromPath("/org/bluez/hci0")
	assert.False(t, ok)
	_, ok = AddressFromPath("/org/bluez/hci0/dev_AA_BB")
	assert.False(t, ok)
}

func TestAdapterPath(t *testing.T) {
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), AdapterPath(""))
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1"), AdapterPath("hci1"))
}

func TestIsNotDiscovering(t *testing.T) {
	assert.True(t, isNotDiscovering(dbus.Error{Name: "org.bluez.Error.Failed"}))
	assert.False(t, isNotDiscovering(dbus.Error{Name: "org.bluez.Error.InProgress"}))
	assert.False(t, isNotDiscovering(nil))
}
