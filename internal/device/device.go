package device

import (
	"fmt"
	"strings"
)

// Class is the kind of peripheral a session is bound to.
type Class uint8

const (
	Phone Class = iota
	Watch
)

// Classes lists every device class, in session table order.
var Classes = []Class{Phone, Watch}

// String returns the persisted representation of the class.
func (c Class) String() string {
	switch c {
	case Phone:
		return "PHONE"
	case Watch:
		return "WATCH"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// ParseClass converts a stored or user-supplied class name.
func ParseClass(s string) (Class, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PHONE":
		return Phone, nil
	case "WATCH":
		return Watch, nil
	default:
		return 0, fmt.Errorf("unknown device class %q (must be phone or watch)", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Class) UnmarshalText(b []byte) error {
	parsed, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Status is the connection status recorded for a peripheral.
type Status uint8

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ParseStatus converts a stored status string. Unknown values read as Disconnected.
func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), "connected") {
		return Connected
	}
	return Disconnected
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}

// Peripheral is a discovered or stored wireless endpoint.
//
// ID, Name and Class are fixed once the peripheral has been created; the
// remaining fields are mutable state owned by whoever holds the value.
type Peripheral struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class Class  `json:"class"`

	Status           Status  `json:"status"`
	Score            float64 `json:"score"`
	HeartRate        float64 `json:"heart_rate"`
	Owned            bool    `json:"owned"`
	Paired           bool    `json:"paired"`
	Synced           bool    `json:"synced"`
	Color            ARGB    `json:"color"`
	LiveConnected    bool    `json:"live_connected"` // session-local, never persisted
	TransportAddress string  `json:"transport_address,omitempty"`
}

// NewPeripheral builds a peripheral for a freshly discovered address.
// The class is inferred from the name and the colour from the id.
func NewPeripheral(id, name string) Peripheral {
	return Peripheral{
		ID:     id,
		Name:   name,
		Class:  Classify(name),
		Status: Disconnected,
		Color:  ColorFor(id),
	}
}

// Address returns the address used to open a stream to the peripheral.
func (p Peripheral) Address() string {
	if p.TransportAddress != "" {
		return p.TransportAddress
	}
	return p.ID
}

// DisplayName returns the name or a placeholder for unnamed peripherals.
func (p Peripheral) DisplayName() string {
	if strings.TrimSpace(p.Name) == "" {
		return "[unnamed]"
	}
	return p.Name
}

// FilterLiveConnected returns the peripherals with a live session.
func FilterLiveConnected(list []Peripheral) []Peripheral {
	out := make([]Peripheral, 0, len(list))
	for _, p := range list {
		if p.LiveConnected {
			out = append(out, p)
		}
	}
	return out
}
