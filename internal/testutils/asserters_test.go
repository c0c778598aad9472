package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/scorelink/internal/device"
)

type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestJSONAsserterDefaults(t *testing.T) {
	rt := &recordingT{}
	ja := NewJSONAsserter(rt)

	ja.Assert(`{"id":"A","name":"x","extra":1}`, `{"id":"A","name":"<<PRESENCE>>"}`)
	assert.Empty(t, rt.failures, "extra keys and presence placeholders MUST be accepted by default")

	ja.Assert(`{"id":"A"}`, `{"id":"B"}`)
	assert.Len(t, rt.failures, 1)
}

func TestJSONAsserterArrays(t *testing.T) {
	rt := &recordingT{}
	ja := NewJSONAsserter(rt).WithOptions(WithIgnoreArrayOrder(true), WithIgnoredFields("color"))

	ja.Assert(`[{"id":"B","color":1},{"id":"A","color":2}]`, `[{"id":"A"},{"id":"B"}]`)
	assert.Empty(t, rt.failures)

	strict := NewJSONAsserter(rt)
	strict.Assert(`[{"id":"B"},{"id":"A"}]`, `[{"id":"A"},{"id":"B"}]`)
	assert.Len(t, rt.failures, 1, "array order MUST matter by default")
}

func TestJSONAsserterPeripherals(t *testing.T) {
	rt := &recordingT{}
	ja := NewJSONAsserter(rt)

	ja.AssertPeripherals(nil, `[]`)
	ja.AssertPeripherals([]device.Peripheral{device.NewPeripheral("AA:BB", "Watch")}, `[
		{"id": "AA:BB", "name": "Watch", "class": "WATCH", "status": "disconnected", "color": 4294924066}
	]`)
	assert.Empty(t, rt.failures)
}

func TestTextAsserter(t *testing.T) {
	rt := &recordingT{}
	ta := NewTextAsserter(rt)

	ta.Assert("line one  \n\x1b[31mline two\x1b[0m", "line one\nline two")
	assert.Empty(t, rt.failures, "trailing spaces and colour codes MUST be ignored by default")

	ta.Assert("alpha\nbeta", "alpha\ngamma")
	if assert.Len(t, rt.failures, 1) {
		assert.Contains(t, rt.failures[0], "-gamma")
		assert.Contains(t, rt.failures[0], "+beta")
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "plain", StripANSI("\x1b[1;32mplain\x1b[0m"))
	assert.Equal(t, "no codes", StripANSI("no codes"))
}
