// Package store persists known peripherals. The core consumes it through the
// Store interface; SQLite is the shipped implementation.
package store

import (
	"context"
	"errors"

	"github.com/srg/scorelink/internal/device"
)

var (
	ErrNotFound = errors.New("device not found")
	ErrExists   = errors.New("device already stored")
)

// Store is the device table. Session-local fields of device.Peripheral
// (LiveConnected, TransportAddress) are never persisted.
type Store interface {
	List(ctx context.Context, class device.Class) ([]device.Peripheral, error)
	Get(ctx context.Context, id string) (device.Peripheral, error)
	Insert(ctx context.Context, p device.Peripheral) error
	Delete(ctx context.Context, id string) error
	UpdateScore(ctx context.Context, id string, score float64) error
	UpdateHeartRate(ctx context.Context, id string, heartRate float64) error
	// MyWatch returns the owned watch, or ErrNotFound.
	MyWatch(ctx context.Context) (device.Peripheral, error)
	Close() error
}
