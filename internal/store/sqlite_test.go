package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/scorelink/internal/device"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "devices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	watch := device.NewPeripheral("AA:BB", "My Watch")
	watch.Owned = true
	watch.Paired = true
	watch.Score = 12.5
	watch.LiveConnected = true
	watch.TransportAddress = "11:11"
	require.NoError(t, s.Insert(ctx, watch))

	got, err := s.Get(ctx, "AA:BB")
	require.NoError(t, err)
	assert.Equal(t, "My Watch", got.Name)
	assert.Equal(t, device.Watch, got.Class)
	assert.Equal(t, device.Disconnected, got.Status)
	assert.Equal(t, 12.5, got.Score)
	assert.True(t, got.Owned)
	assert.True(t, got.Paired)
	assert.False(t, got.Synced)
	assert.Equal(t, device.ColorFor("AA:BB"), got.Color)
	assert.False(t, got.LiveConnected, "session-local state MUST NOT be persisted")
	assert.Empty(t, got.TransportAddress)

	assert.ErrorIs(t, s.Insert(ctx, watch), ErrExists)

	require.NoError(t, s.UpdateScore(ctx, "AA:BB", 99))
	require.NoError(t, s.UpdateHeartRate(ctx, "AA:BB", 72))
	got, err = s.Get(ctx, "AA:BB")
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.Score)
	assert.Equal(t, 72.0, got.HeartRate)

	require.NoError(t, s.Delete(ctx, "AA:BB"))
	_, err = s.Get(ctx, "AA:BB")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_MissingDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Delete(ctx, "nope"), ErrNotFound)
	assert.ErrorIs(t, s.UpdateScore(ctx, "nope", 1), ErrNotFound)
	assert.ErrorIs(t, s.UpdateHeartRate(ctx, "nope", 1), ErrNotFound)
	_, err := s.MyWatch(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListByClass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []device.Peripheral{
		device.NewPeripheral("01", "Pixel"),
		device.NewPeripheral("02", "Watch One"),
		device.NewPeripheral("03", "Galaxy"),
		device.NewPeripheral("04", "Watch Two"),
	} {
		require.NoError(t, s.Insert(ctx, p))
	}

	phones, err := s.List(ctx, device.Phone)
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "03"}, ids(phones))

	watches, err := s.List(ctx, device.Watch)
	require.NoError(t, err)
	assert.Equal(t, []string{"02", "04"}, ids(watches))
}

func TestSQLite_MyWatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ownedPhone := device.NewPeripheral("01", "Pixel")
	ownedPhone.Owned = true
	otherWatch := device.NewPeripheral("02", "Watch")
	mine := device.NewPeripheral("03", "My Watch")
	mine.Owned = true

	for _, p := range []device.Peripheral{ownedPhone, otherWatch, mine} {
		require.NoError(t, s.Insert(ctx, p))
	}

	got, err := s.MyWatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "03", got.ID)
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, device.NewPeripheral("AA", "Watch")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "AA")
	require.NoError(t, err)
	assert.Equal(t, device.Watch, got.Class)
}

func ids(list []device.Peripheral) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.ID)
	}
	return out
}
