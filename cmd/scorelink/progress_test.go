package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer is a goroutine-safe strings.Builder.
type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func TestProgressPrinterSeconds(t *testing.T) {
	countdown := NewCountdownProgressPrinter(nil, "Scanning", "Scanning", 10*time.Second)
	assert.Equal(t, 10, countdown.seconds(0))
	assert.Equal(t, 4, countdown.seconds(6300*time.Millisecond), "remaining time MUST round to the nearest second")
	assert.Equal(t, 0, countdown.seconds(11*time.Second), "an elapsed countdown MUST show zero")

	up := NewProgressPrinter(nil, "Waiting", "Waiting")
	assert.Equal(t, 3, up.seconds(3900*time.Millisecond))
}

func TestProgressPrinterLifecycle(t *testing.T) {
	// GOAL: the printer shows the prefix and phase, and a stop phase clears the line
	//
	// TEST SCENARIO: start -> initial line written -> callback with stop phase -> line cleared -> Stop again is a no-op

	buf := &syncBuffer{}
	p := NewCountdownProgressPrinter(buf, "Scanning for devices", "Scanning", time.Second, "Processing results")
	p.Start()

	assert.Contains(t, buf.String(), "Scanning for devices (Scanning...)")

	p.Callback()("Processing results")
	assert.True(t, strings.HasSuffix(buf.String(), clearLineSequence), "stop phase MUST clear the progress line")

	before := buf.String()
	p.Stop()
	assert.Equal(t, before, buf.String(), "second Stop MUST NOT write")

	assert.Panics(t, p.Start, "Start MUST NOT be allowed twice")
}

func TestProgressPrinterStopWithoutStart(t *testing.T) {
	buf := &syncBuffer{}
	p := NewProgressPrinter(buf, "Waiting", "Waiting")
	p.Stop()
	assert.Equal(t, clearLineSequence, buf.String())
}
