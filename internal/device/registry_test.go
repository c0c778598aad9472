package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Class
	}{
		{name: "plain watch", input: "Galaxy Watch4", expected: Watch},
		{name: "upper case", input: "MYWATCH", expected: Watch},
		{name: "embedded marker", input: "smartwatch-42", expected: Watch},
		{name: "phone name", input: "Pixel 8", expected: Phone},
		{name: "empty name", input: "", expected: Phone},
		{name: "partial marker", input: "watc", expected: Phone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.input))
		})
	}
}

func TestColorFor(t *testing.T) {
	tests := []struct {
		id    string
		index int
	}{
		{id: "AA:BB:CC:DD:EE:FF", index: 0},
		{id: "CC:DD", index: 1},
		{id: "FF:EE:DD:CC:BB:AA", index: 2},
		{id: "00:11:22:33:44:55", index: 3},
		{id: "AA:BB", index: 4},
		{id: "11:22:33:44:55:66", index: 4},
		{id: "", index: 1},
		{id: "watch-1", index: 0},
		{id: "phone-1", index: 2},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, Palette[tt.index], ColorFor(tt.id), "colour for %q MUST be palette[%d]", tt.id, tt.index)
		})
	}

	t.Run("is pure", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			assert.Equal(t, ColorFor("DE:AD:BE:EF:00:01"), ColorFor("DE:AD:BE:EF:00:01"))
		}
	})

	t.Run("always in palette", func(t *testing.T) {
		for _, id := range []string{"x", "y", "zz", "a longer identifier", "ünïcode"} {
			assert.Contains(t, Palette[:], ColorFor(id))
		}
	})
}

func TestARGB(t *testing.T) {
	c := ARGB(0xFF9C27B0)
	assert.Equal(t, "#FF9C27B0", c.Hex())

	r, g, b := c.RGB()
	assert.Equal(t, uint8(0x9C), r)
	assert.Equal(t, uint8(0x27), g)
	assert.Equal(t, uint8(0xB0), b)
}

func TestNewPeripheral(t *testing.T) {
	p := NewPeripheral("AA:BB", "Fitness Watch")

	assert.Equal(t, "AA:BB", p.ID)
	assert.Equal(t, "Fitness Watch", p.Name)
	assert.Equal(t, Watch, p.Class)
	assert.Equal(t, Disconnected, p.Status)
	assert.Equal(t, Palette[4], p.Color)
	assert.False(t, p.LiveConnected)
	assert.Equal(t, "AA:BB", p.Address(), "address MUST fall back to the id")

	p.TransportAddress = "11:22"
	assert.Equal(t, "11:22", p.Address())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "[unnamed]", NewPeripheral("AA", "  ").DisplayName())
	assert.Equal(t, "Pixel", NewPeripheral("AA", "Pixel").DisplayName())
}

func TestFilterLiveConnected(t *testing.T) {
	a := NewPeripheral("A", "a")
	b := NewPeripheral("B", "b")
	b.LiveConnected = true
	c := NewPeripheral("C", "c")
	c.LiveConnected = true

	got := FilterLiveConnected([]Peripheral{a, b, c})
	assert.Equal(t, []Peripheral{b, c}, got)
	assert.Empty(t, FilterLiveConnected(nil))
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass(" watch ")
	assert.NoError(t, err)
	assert.Equal(t, Watch, c)

	c, err = ParseClass("PHONE")
	assert.NoError(t, err)
	assert.Equal(t, Phone, c)

	_, err = ParseClass("tablet")
	assert.Error(t, err)

	var decoded Class
	assert.NoError(t, decoded.UnmarshalText([]byte("WATCH")))
	assert.Equal(t, Watch, decoded)
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, Connected, ParseStatus("Connected"))
	assert.Equal(t, Disconnected, ParseStatus("disconnected"))
	assert.Equal(t, Disconnected, ParseStatus("garbage"))
}
