package main

import (
	"errors"
	"fmt"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/store"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the session ended while a command was using it.
	ErrConnectionLost = errors.New("connection lost")
	// ErrSendFailed indicates the peripheral did not accept the data.
	ErrSendFailed = errors.New("send failed")
)

// FormatUserError turns an error into a message for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Sprintf("device not found (register it with 'scorelink devices add' or run 'scorelink scan'): %v", err)
	case errors.Is(err, store.ErrExists):
		return "device is already registered"
	}

	switch device.KindOf(err) {
	case device.AdapterUnavailable:
		return "Bluetooth adapter unavailable: is Bluetooth turned on?"
	case device.PermissionDenied:
		return fmt.Sprintf("permission denied: %v (on Linux, check membership of the 'bluetooth' group)", err)
	case device.RegistrationFailure:
		return fmt.Sprintf("could not register for discovery events: %v", err)
	case device.ParseFailure:
		return fmt.Sprintf("malformed data from device: %v", err)
	}
	return err.Error()
}
