// Package radio defines the capability the core consumes from the platform:
// discovery with event delivery, and stream-oriented connections.
//
// Implementations live in the bluez, goble and rfcomm subpackages; tests use
// the fake in internal/testutils.
package radio

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// EventKind distinguishes discovery events.
type EventKind int

const (
	// EventFound reports a peripheral seen during discovery. The same address
	// may be reported many times.
	EventFound EventKind = iota
	// EventFinished reports that the platform ended discovery on its own.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventFound:
		return "found"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is a raw discovery event from the adapter.
type Event struct {
	Kind    EventKind
	Address string
	Name    string
	RSSI    int16
}

// Subscription releases an event registration. Unsubscribe must tolerate
// being called more than once.
type Subscription interface {
	Unsubscribe() error
}

// Stream is an open connection to a peripheral. Input and Output are two
// halves of the same underlying connection; Close releases the connection
// itself. Closing Input must unblock a pending Read.
type Stream interface {
	Input() io.ReadCloser
	Output() io.WriteCloser
	IsConnected() bool
	Close() error
}

// Adapter is the platform radio.
type Adapter interface {
	// IsEnabled reports whether the radio is present and powered.
	IsEnabled() bool
	// Subscribe registers handler for discovery events until the returned
	// subscription is released. handler may be called from any goroutine.
	Subscribe(handler func(Event)) (Subscription, error)
	// StartDiscovery begins platform discovery.
	StartDiscovery() error
	// CancelDiscovery stops platform discovery. Cancelling when no discovery
	// is running is not an error.
	CancelDiscovery() error
	// OpenStream opens a stream connection to address for the given service.
	OpenStream(ctx context.Context, address string, service uuid.UUID) (Stream, error)
}

// StreamOpener is the connection half of Adapter. Backends that only
// discover delegate to one.
type StreamOpener interface {
	OpenStream(ctx context.Context, address string, service uuid.UUID) (Stream, error)
}

// PermissionGate reports whether the platform grants needed for discovery and
// connections have been obtained.
type PermissionGate interface {
	HasRequiredGrants() bool
}

// GateFunc adapts a function to PermissionGate.
type GateFunc func() bool

// HasRequiredGrants implements PermissionGate
func (f GateFunc) HasRequiredGrants() bool {
	return f()
}

// AllowAll is a gate for platforms without a runtime permission model.
var AllowAll PermissionGate = GateFunc(func() bool { return true })

// Granted reports whether gate allows the operation. A nil gate allows it.
func Granted(gate PermissionGate) bool {
	return gate == nil || gate.HasRequiredGrants()
}

// SubscriptionFunc adapts a release function to Subscription.
type SubscriptionFunc func() error

// Unsubscribe implements Subscription
func (f SubscriptionFunc) Unsubscribe() error {
	return f()
}
