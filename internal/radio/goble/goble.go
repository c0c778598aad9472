// Package goble implements radio.Adapter discovery on top of go-ble.
//
// go-ble speaks BLE only, so stream connections are delegated to a
// radio.StreamOpener (normally the rfcomm dialer).
package goble

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/groutine"
	"github.com/srg/scorelink/internal/radio"
)

// ErrNoStreamOpener is returned by OpenStream when the adapter was built
// without a stream opener.
var ErrNoStreamOpener = errors.New("no stream opener configured")

// Adapter drives discovery through a ble.Device created by DeviceFactory.
type Adapter struct {
	*radio.Broadcaster

	opener radio.StreamOpener
	logger *logrus.Logger

	mu   sync.Mutex
	dev  ble.Device
	scan *groutine.Task
}

// New returns an adapter. The ble.Device is created lazily on first use.
func New(opener radio.StreamOpener, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{
		Broadcaster: radio.NewBroadcaster(),
		opener:      opener,
		logger:      logger,
	}
}

func (a *Adapter) device() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	a.dev = dev
	return dev, nil
}

// IsEnabled reports whether a ble.Device could be created.
func (a *Adapter) IsEnabled() bool {
	if _, err := a.device(); err != nil {
		a.logger.WithError(err).Debug("BLE device unavailable")
		return false
	}
	return true
}

// StartDiscovery starts a duplicate-reporting scan. Starting while a scan
// is running is a no-op.
func (a *Adapter) StartDiscovery() error {
	dev, err := a.device()
	if err != nil {
		return device.NormalizeError("start discovery", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scan != nil {
		select {
		case <-a.scan.Done():
		default:
			return nil
		}
	}

	a.scan = groutine.Go(context.Background(), "goble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, true, a.handleAdvertisement)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.logger.WithError(err).Warn("BLE scan ended with error")
		}
		a.Emit(radio.Event{Kind: radio.EventFinished})
	})
	return nil
}

func (a *Adapter) handleAdvertisement(adv ble.Advertisement) {
	addr := adv.Addr()
	if addr == nil {
		return
	}
	a.Emit(radio.Event{
		Kind:    radio.EventFound,
		Address: strings.ToUpper(addr.String()),
		Name:    adv.LocalName(),
		RSSI:    int16(adv.RSSI()),
	})
}

// CancelDiscovery stops the running scan. It does not wait for the scan
// goroutine, since it may be called from an event handler running on it.
func (a *Adapter) CancelDiscovery() error {
	a.mu.Lock()
	task := a.scan
	a.scan = nil
	a.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	return nil
}

// OpenStream delegates to the configured stream opener.
func (a *Adapter) OpenStream(ctx context.Context, address string, service uuid.UUID) (radio.Stream, error) {
	if a.opener == nil {
		return nil, device.NewError(device.IOFailure, "open stream", ErrNoStreamOpener)
	}
	return a.opener.OpenStream(ctx, address, service)
}

// Close stops discovery and releases the ble.Device.
func (a *Adapter) Close() error {
	_ = a.CancelDiscovery()

	a.mu.Lock()
	dev := a.dev
	a.dev = nil
	a.mu.Unlock()

	if dev == nil {
		return nil
	}
	return dev.Stop()
}
