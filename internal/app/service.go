// Package app wires discovery, connections and the device store together.
// It is what the CLI drives: scan, pick a peripheral, connect, and persist
// the heart rates the watch reports.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/connection"
	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/discovery"
	"github.com/srg/scorelink/internal/radio"
	"github.com/srg/scorelink/internal/store"
	"github.com/srg/scorelink/internal/telemetry"
)

// Options configures a Service. Nil component options use their defaults.
type Options struct {
	Discovery  *discovery.Options
	Connection *connection.Options
	// SampleBuffer is the capacity of the telemetry sample channel.
	SampleBuffer int
}

// Service owns a discovery engine, a connection manager and the telemetry
// feed, and persists into a store it does not own.
type Service struct {
	engine  *discovery.Engine
	manager *connection.Manager
	feed    *telemetry.Feed
	store   store.Store
	logger  *logrus.Logger

	closeOnce sync.Once
}

// New builds a service on adapter. The store stays owned by the caller.
func New(adapter radio.Adapter, gate radio.PermissionGate, st store.Store, opts Options, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.SampleBuffer <= 0 {
		opts.SampleBuffer = telemetry.DefaultSampleBuffer
	}
	feed := telemetry.NewFeed(opts.SampleBuffer)
	return &Service{
		engine:  discovery.NewEngine(adapter, gate, opts.Discovery, logger),
		manager: connection.NewManager(adapter, gate, feed, opts.Connection, logger),
		feed:    feed,
		store:   st,
		logger:  logger,
	}
}

// Engine returns the discovery engine.
func (s *Service) Engine() *discovery.Engine { return s.engine }

// Manager returns the connection manager.
func (s *Service) Manager() *connection.Manager { return s.manager }

// Feed returns the live telemetry feed.
func (s *Service) Feed() *telemetry.Feed { return s.feed }

// Scan runs one discovery session to completion and returns what it found.
// Cancelling ctx ends the session early; the partial result is returned with
// ctx's error.
func (s *Service) Scan(ctx context.Context) ([]device.Peripheral, error) {
	if err := s.engine.Start(ctx); err != nil {
		return nil, err
	}
	err := s.engine.Wait(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.engine.Stop()
	}
	return s.engine.Found(), err
}

// Devices returns every stored peripheral with LiveConnected set for those
// holding a session.
func (s *Service) Devices(ctx context.Context) ([]device.Peripheral, error) {
	live := make(map[string]bool)
	for _, p := range s.manager.Connected() {
		live[p.ID] = true
	}

	var out []device.Peripheral
	for _, c := range device.Classes {
		list, err := s.store.List(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("list %s devices: %w", c, err)
		}
		for _, p := range list {
			p.LiveConnected = live[p.ID]
			if p.LiveConnected {
				p.Status = device.Connected
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// NewDevices returns the peripherals of the last scan that are not stored yet.
func (s *Service) NewDevices(ctx context.Context) ([]device.Peripheral, error) {
	stored, err := s.Devices(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(stored))
	for _, p := range stored {
		known[p.ID] = true
	}

	found := s.engine.Found()
	out := make([]device.Peripheral, 0, len(found))
	for _, p := range found {
		if !known[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// AddDevice stores p. A peripheral with the same id yields store.ErrExists.
func (s *Service) AddDevice(ctx context.Context, p device.Peripheral) error {
	if _, err := device.ValidateAddress(p.ID); err != nil {
		return err
	}
	if p.Color == 0 {
		p.Color = device.ColorFor(p.ID)
	}
	p.LiveConnected = false
	p.Status = device.Disconnected
	if err := s.store.Insert(ctx, p); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"id": p.ID, "class": p.Class.String()}).Info("Device added")
	return nil
}

// RemoveDevice disconnects the peripheral if it holds a session, then
// deletes it from the store.
func (s *Service) RemoveDevice(ctx context.Context, id string) error {
	for _, p := range s.manager.Connected() {
		if p.ID == id {
			s.manager.Disconnect(p.Class)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("id", id).Info("Device removed")
	return nil
}

// UpdateScore sets the stored score of a peripheral.
func (s *Service) UpdateScore(ctx context.Context, id string, score float64) error {
	return s.store.UpdateScore(ctx, id, score)
}

// Resolve finds a peripheral by id, first in the store and then in the last
// scan's results.
func (s *Service) Resolve(ctx context.Context, id string) (device.Peripheral, error) {
	id, err := device.ValidateAddress(id)
	if err != nil {
		return device.Peripheral{}, err
	}
	p, err := s.store.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return device.Peripheral{}, err
	}
	for _, f := range s.engine.Found() {
		if f.ID == id {
			return f, nil
		}
	}
	return device.Peripheral{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
}

// Connect resolves id and opens a session to it.
func (s *Service) Connect(ctx context.Context, id string) (device.Peripheral, error) {
	p, err := s.Resolve(ctx, id)
	if err != nil {
		return device.Peripheral{}, err
	}
	if err := s.manager.Connect(ctx, p); err != nil {
		return p, err
	}
	if info, ok := s.manager.Session(p.Class); ok {
		p = info.Peripheral
	}
	return p, nil
}

// ConnectMyWatch opens a session to the owned watch.
func (s *Service) ConnectMyWatch(ctx context.Context) (device.Peripheral, error) {
	w, err := s.store.MyWatch(ctx)
	if err != nil {
		return device.Peripheral{}, fmt.Errorf("my watch: %w", err)
	}
	return s.Connect(ctx, w.ID)
}

// Run consumes telemetry samples until ctx is done or the feed closes,
// persisting every watch heart rate into the store.
func (s *Service) Run(ctx context.Context) error {
	samples := s.feed.Samples()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sample, ok := <-samples:
			if !ok {
				return nil
			}
			s.persist(ctx, sample)
		}
	}
}

func (s *Service) persist(ctx context.Context, sample telemetry.Sample) {
	if sample.Class != device.Watch || !sample.HasHeartRate {
		return
	}
	log := s.logger.WithFields(logrus.Fields{"id": sample.PeripheralID, "heart_rate": sample.HeartRate})
	err := s.store.UpdateHeartRate(ctx, sample.PeripheralID, float64(sample.HeartRate))
	switch {
	case err == nil:
		log.Debug("Heart rate stored")
	case errors.Is(err, store.ErrNotFound):
		log.Debug("Heart rate from unstored device ignored")
	case ctx.Err() != nil:
	default:
		log.WithError(err).Warn("Failed to store heart rate")
	}
}

// Close stops discovery, disconnects every session and closes the feed.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.engine.Stop()
		s.manager.Cleanup()
		s.feed.Close()
	})
}
