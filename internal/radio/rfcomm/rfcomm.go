// Package rfcomm opens RFCOMM stream sockets to classic Bluetooth peripherals.
//
// The socket implementation is Linux only. Other platforms get a dialer that
// fails every OpenStream with ErrUnsupported.
package rfcomm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/radio"
)

// DefaultChannel is the RFCOMM channel serial-port peripherals listen on
// when nothing else is configured.
const DefaultChannel uint8 = 1

// ErrUnsupported is returned by OpenStream on platforms without RFCOMM sockets.
var ErrUnsupported = errors.New("rfcomm sockets are not supported on this platform")

// Dialer opens RFCOMM streams on a fixed channel. There is no SDP lookup:
// the service UUID is only logged.
type Dialer struct {
	Channel uint8
	Logger  *logrus.Logger
}

// NewDialer returns a dialer for channel. A zero channel selects DefaultChannel.
func NewDialer(channel uint8, logger *logrus.Logger) *Dialer {
	if channel == 0 {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Dialer{Channel: channel, Logger: logger}
}

// OpenStream connects to address and returns the stream.
func (d *Dialer) OpenStream(ctx context.Context, address string, service uuid.UUID) (radio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, device.NewError(device.IOFailure, "open stream", err)
	}
	d.Logger.WithFields(logrus.Fields{
		"address": address,
		"channel": d.Channel,
		"service": service.String(),
	}).Debug("Opening RFCOMM stream")

	s, err := dial(ctx, addr, d.Channel)
	if err != nil {
		return nil, device.NormalizeError("open stream", err)
	}
	return s, nil
}

// ParseAddress converts "AA:BB:CC:DD:EE:FF" into the little-endian byte
// order used by Bluetooth socket addresses.
func ParseAddress(address string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(strings.TrimSpace(address), ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid bluetooth address %q", address)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return out, fmt.Errorf("invalid bluetooth address %q", address)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid bluetooth address %q: %w", address, err)
		}
		out[5-i] = byte(b)
	}
	return out, nil
}

// FormatAddress is the inverse of ParseAddress.
func FormatAddress(addr [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		addr[5], addr[4], addr[3], addr[2], addr[1], addr[0])
}
