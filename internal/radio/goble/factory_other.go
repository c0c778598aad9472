//go:build !linux && !darwin

package goble

import (
	"errors"

	"github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return nil, errors.New("go-ble: adapter not found on this platform")
}
