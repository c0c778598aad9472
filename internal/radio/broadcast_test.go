package radio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDelivery(t *testing.T) {
	// GOAL: every live subscriber receives emitted events; released ones do not
	//
	// TEST SCENARIO: two subscribers -> emit -> release one -> emit again -> counts differ

	b := NewBroadcaster()

	var mu sync.Mutex
	got := map[string][]Event{}
	record := func(name string) func(Event) {
		return func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			got[name] = append(got[name], ev)
		}
	}

	first, err := b.Subscribe(record("first"))
	require.NoError(t, err)
	_, err = b.Subscribe(record("second"))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())

	b.Emit(Event{Kind: EventFound, Address: "AA:BB:CC:DD:EE:FF", Name: "WATCH-1"})

	require.NoError(t, first.Unsubscribe())
	require.NoError(t, first.Unsubscribe(), "second release MUST be a no-op")
	assert.Equal(t, 1, b.Len())

	b.Emit(Event{Kind: EventFinished})

	assert.Len(t, got["first"], 1, "released subscriber MUST NOT receive later events")
	assert.Len(t, got["second"], 2)
	assert.Equal(t, EventFinished, got["second"][1].Kind)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "found", EventFound.String())
	assert.Equal(t, "finished", EventFinished.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}

func TestGranted(t *testing.T) {
	assert.True(t, Granted(nil), "nil gate MUST allow")
	assert.True(t, Granted(AllowAll))
	assert.False(t, Granted(GateFunc(func() bool { return false })))
}
