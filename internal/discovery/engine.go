// Package discovery runs the scan lifecycle: it drives the radio adapter,
// de-duplicates what it reports, bounds every scan with a timeout and
// publishes the scanning flag and the found-set as live values.
package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/groutine"
	"github.com/srg/scorelink/internal/live"
	"github.com/srg/scorelink/internal/radio"
)

// State is the discovery lifecycle state.
type State int

const (
	Idle State = iota
	Scanning
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event reports a peripheral seen for the first time in the current session.
type Event struct {
	Peripheral device.Peripheral
	RSSI       int16
}

// afterFunc arms the session timeout. Tests replace it to control time.
var afterFunc = func(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

type stopper interface {
	Stop() bool
}

// Engine owns discovery. Only one discovery session runs at a time.
type Engine struct {
	adapter radio.Adapter
	gate    radio.PermissionGate
	logger  *logrus.Logger
	opts    *Options

	mu      sync.Mutex
	state   State
	current *session

	scanning *live.Value[bool]
	found    *live.Value[[]device.Peripheral]
	events   *live.RingChannel[Event]
}

// session is the state of one scan, from Start to finish.
type session struct {
	active bool // guarded by Engine.mu
	index  *hashmap.Map[string, device.Peripheral]
	timer  stopper // guarded by Engine.mu
	done   chan struct{}

	subMu    sync.Mutex
	sub      radio.Subscription
	released bool
}

// NewEngine creates an idle engine. A nil gate allows every scan.
func NewEngine(adapter radio.Adapter, gate radio.PermissionGate, opts *Options, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	opts = opts.withDefaults()

	return &Engine{
		adapter:  adapter,
		gate:     gate,
		logger:   logger,
		opts:     opts,
		state:    Idle,
		scanning: live.NewValue(false),
		found:    live.NewValue([]device.Peripheral{}),
		events:   live.NewRingChannel[Event](opts.EventBuffer),
	}
}

// Start begins a discovery session.
//
// Calling Start while a session is scanning does nothing and returns nil;
// the running session and its found-set are left untouched. Starting after a
// finished session discards its results and scans again. Cancelling ctx
// stops the session the same way Stop does.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.adapter == nil || !e.adapter.IsEnabled() {
		return device.NewError(device.AdapterUnavailable, "discovery", errors.New("radio is missing or disabled"))
	}
	if !radio.Granted(e.gate) {
		return device.NewError(device.PermissionDenied, "discovery", errors.New("scan permission not granted"))
	}

	e.mu.Lock()
	if e.state == Scanning {
		e.mu.Unlock()
		e.logger.Debug("Discovery already running, start ignored")
		return nil
	}
	s := &session{
		active: true,
		index:  hashmap.New[string, device.Peripheral](),
		done:   make(chan struct{}),
	}
	e.current = s
	e.state = Scanning
	e.found.Store([]device.Peripheral{})
	e.scanning.Store(true)
	e.mu.Unlock()

	// Adapter calls are made without holding e.mu: an adapter may deliver
	// events synchronously.
	sub, err := e.adapter.Subscribe(func(ev radio.Event) { e.handleEvent(s, ev) })
	if err != nil {
		e.abort(s)
		e.logger.WithError(err).Error("Failed to register for discovery events")
		return device.NewError(device.RegistrationFailure, "discovery", err)
	}
	s.setSubscription(sub, e.logger)

	if err := e.adapter.StartDiscovery(); err != nil {
		e.abort(s)
		s.release(e.logger)
		e.logger.WithError(err).Error("Failed to start discovery")
		return classify("discovery", err)
	}

	e.mu.Lock()
	if s.active {
		s.timer = afterFunc(e.opts.Timeout, func() { e.finish(s, "timeout") })
	}
	e.mu.Unlock()

	if ctx.Done() != nil {
		groutine.Go(context.Background(), "discovery-ctx-watch", func(context.Context) {
			select {
			case <-ctx.Done():
				e.finish(s, "context cancelled")
			case <-s.done:
			}
		})
	}

	e.logger.WithField("timeout", e.opts.Timeout).Info("Discovery started")
	return nil
}

// Stop ends the running session. Stopping an idle or finished engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()

	if s != nil {
		e.finish(s, "stopped")
	}
}

// handleEvent receives adapter events for session s.
func (e *Engine) handleEvent(s *session, ev radio.Event) {
	switch ev.Kind {
	case radio.EventFinished:
		e.finish(s, "adapter finished")
	case radio.EventFound:
		e.handleFound(s, ev)
	}
}

func (e *Engine) handleFound(s *session, ev radio.Event) {
	if ev.Address == "" {
		return
	}

	e.mu.Lock()
	if !s.active {
		e.mu.Unlock()
		return
	}
	if _, seen := s.index.Get(ev.Address); seen {
		e.mu.Unlock()
		return
	}
	if !e.opts.accepts(ev) {
		e.mu.Unlock()
		return
	}

	p := device.NewPeripheral(ev.Address, ev.Name)
	if _, existing := s.index.GetOrInsert(ev.Address, p); existing {
		e.mu.Unlock()
		return
	}
	e.found.Update(func(old []device.Peripheral) []device.Peripheral {
		next := make([]device.Peripheral, len(old), len(old)+1)
		copy(next, old)
		return append(next, p)
	})
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"device":  p.DisplayName(),
		"address": p.ID,
		"class":   p.Class.String(),
		"rssi":    ev.RSSI,
	}).Info("Discovered new device")

	e.events.ForceSend(Event{Peripheral: p, RSSI: ev.RSSI})
}

// finish moves session s to FINISHED. Whatever the trigger, the scanning
// flag is cleared, discovery cancellation is requested and the subscription
// is released, each exactly once.
func (e *Engine) finish(s *session, reason string) {
	e.mu.Lock()
	if !s.active {
		e.mu.Unlock()
		return
	}
	s.active = false
	if s.timer != nil {
		s.timer.Stop()
	}
	if e.current == s {
		e.state = Finished
		e.scanning.Store(false)
	}
	count := s.index.Len()
	close(s.done)
	e.mu.Unlock()

	if err := e.adapter.CancelDiscovery(); err != nil {
		e.logger.WithError(err).Warn("Failed to cancel discovery")
	}
	s.release(e.logger)

	e.logger.WithFields(logrus.Fields{
		"reason":       reason,
		"device_count": count,
	}).Info("Discovery completed")
}

// abort returns the engine to IDLE after a failed start.
func (e *Engine) abort(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	if e.current == s {
		e.state = Idle
		e.found.Store([]device.Peripheral{})
		e.scanning.Store(false)
	}
}

func (s *session) setSubscription(sub radio.Subscription, logger *logrus.Logger) {
	s.subMu.Lock()
	if !s.released {
		s.sub = sub
		s.subMu.Unlock()
		return
	}
	s.subMu.Unlock()

	// The session ended while subscribing.
	if err := sub.Unsubscribe(); err != nil {
		logger.WithError(err).Warn("Failed to release discovery subscription")
	}
}

func (s *session) release(logger *logrus.Logger) {
	s.subMu.Lock()
	if s.released {
		s.subMu.Unlock()
		return
	}
	s.released = true
	sub := s.sub
	s.subMu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		logger.WithError(err).Warn("Failed to release discovery subscription")
	}
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Scanning reports whether a session is running.
func (e *Engine) Scanning() bool {
	return e.scanning.Load()
}

// ScanningValue exposes the live scanning flag.
func (e *Engine) ScanningValue() *live.Value[bool] {
	return e.scanning
}

// Found returns the found-set snapshot in discovery order. The slice is
// shared and must not be modified.
func (e *Engine) Found() []device.Peripheral {
	return e.found.Load()
}

// FoundValue exposes the live found-set.
func (e *Engine) FoundValue() *live.Value[[]device.Peripheral] {
	return e.found
}

// Events returns new-device events. Old events are dropped when the reader
// falls behind.
func (e *Engine) Events() <-chan Event {
	return e.events.C()
}

// Done is closed when the current session ends. With no session it is
// already closed.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return closedChan
	}
	return e.current.done
}

// Wait blocks until the current session ends or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-e.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// classify gives an untyped adapter error a kind.
func classify(op string, err error) error {
	err = device.NormalizeError(op, err)
	var derr *device.Error
	if errors.As(err, &derr) {
		return err
	}
	return device.NewError(device.IOFailure, op, err)
}
