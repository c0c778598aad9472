// Package connection keeps at most one live session per device class and
// exposes connect, disconnect, send and status operations over it.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/groutine"
	"github.com/srg/scorelink/internal/radio"
	"github.com/srg/scorelink/internal/telemetry"
)

const (
	DefaultReadBuffer  = telemetry.MinReadBuffer
	DefaultStopTimeout = 2 * time.Second
)

// Options configures connection behavior
type Options struct {
	ReadBuffer  int
	StopTimeout time.Duration
	Service     uuid.UUID
}

// DefaultOptions returns default connection options
func DefaultOptions() *Options {
	return &Options{
		ReadBuffer:  DefaultReadBuffer,
		StopTimeout: DefaultStopTimeout,
		Service:     device.SerialPortServiceID,
	}
}

func (o *Options) withDefaults() *Options {
	out := DefaultOptions()
	if o == nil {
		return out
	}
	if o.ReadBuffer > 0 {
		out.ReadBuffer = o.ReadBuffer
	}
	if o.StopTimeout > 0 {
		out.StopTimeout = o.StopTimeout
	}
	if o.Service != uuid.Nil {
		out.Service = o.Service
	}
	return out
}

// Manager holds the session table. Operations on one class are serialized;
// different classes proceed independently.
//
// Connect and Send have no timeout of their own: callers that need one must
// bound ctx or run Send in their own goroutine.
type Manager struct {
	adapter radio.Adapter
	gate    radio.PermissionGate
	feed    *telemetry.Feed
	parser  *telemetry.Parser
	logger  *logrus.Logger
	opts    *Options

	sessions *hashmap.Map[device.Class, *Session]
	locks    map[device.Class]*sync.Mutex

	cleanupOnce sync.Once
	now         func() time.Time
}

// NewManager creates a manager publishing telemetry into feed. A nil feed
// gets a private one; a nil gate allows every connection.
func NewManager(adapter radio.Adapter, gate radio.PermissionGate, feed *telemetry.Feed, opts *Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if feed == nil {
		feed = telemetry.NewFeed(telemetry.DefaultSampleBuffer)
	}

	locks := make(map[device.Class]*sync.Mutex, len(device.Classes))
	for _, c := range device.Classes {
		locks[c] = &sync.Mutex{}
	}

	return &Manager{
		adapter:  adapter,
		gate:     gate,
		feed:     feed,
		parser:   telemetry.NewParser(logger),
		logger:   logger,
		opts:     opts.withDefaults(),
		sessions: hashmap.New[device.Class, *Session](),
		locks:    locks,
		now:      time.Now,
	}
}

// Feed returns the telemetry feed listeners publish into.
func (m *Manager) Feed() *telemetry.Feed {
	return m.feed
}

func (m *Manager) lock(class device.Class) (*sync.Mutex, error) {
	mu, ok := m.locks[class]
	if !ok {
		return nil, fmt.Errorf("unknown device class %s", class)
	}
	mu.Lock()
	return mu, nil
}

// Connect opens a session to p, replacing any session of the same class.
// The replaced session is retired before the new stream is opened, even when
// it is connected to the same address. On failure no session is left for
// the class.
func (m *Manager) Connect(ctx context.Context, p device.Peripheral) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.adapter == nil || !m.adapter.IsEnabled() {
		return device.NewError(device.AdapterUnavailable, "connect", errors.New("radio is missing or disabled"))
	}
	if !radio.Granted(m.gate) {
		return device.NewError(device.PermissionDenied, "connect", errors.New("connect permission not granted"))
	}

	mu, err := m.lock(p.Class)
	if err != nil {
		return err
	}
	defer mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"class":   p.Class.String(),
		"address": p.Address(),
		"device":  p.DisplayName(),
	})

	if old, ok := m.sessions.Get(p.Class); ok {
		m.sessions.Del(p.Class)
		log.WithField("previous", old.peripheral.Address()).Info("Retiring previous session")
		old.close(m.logger, m.opts.StopTimeout)
	}

	log.Debug("Opening stream")
	stream, err := m.adapter.OpenStream(ctx, p.Address(), m.opts.Service)
	if err != nil {
		log.WithError(err).Error("Failed to connect")
		return connectError(err)
	}

	sess := newSession(p, stream, m.now())
	// The listener outlives the connect call; only the session stops it.
	listener, err := telemetry.StartListener(context.WithoutCancel(ctx), telemetry.ListenerConfig{
		Class:        p.Class,
		PeripheralID: p.ID,
		Input:        stream.Input(),
		Feed:         m.feed,
		Parser:       m.parser,
		BufferSize:   m.opts.ReadBuffer,
		Logger:       m.logger,
		OnExit:       func(err error) { m.onListenerExit(sess, err) },
	})
	if err != nil {
		sess.close(m.logger, m.opts.StopTimeout)
		return device.NewError(device.IOFailure, "connect", err)
	}
	sess.listener = listener
	m.sessions.Set(p.Class, sess)

	log.Info("Connected")
	return nil
}

// connectError gives an OpenStream failure its connect kind.
func connectError(err error) error {
	if device.IsKind(device.NormalizeError("connect", err), device.PermissionDenied) {
		return device.NewError(device.PermissionDenied, "connect", err)
	}
	return device.NewError(device.IOFailure, "connect", err)
}

// onListenerExit retires sess when its read loop ended on its own. The
// retirement runs on its own goroutine: the class lock may be held by a
// caller that is joining this very listener.
func (m *Manager) onListenerExit(sess *Session, err error) {
	if err == nil {
		return
	}
	class := sess.peripheral.Class
	groutine.Go(context.Background(), "retire-"+class.String(), func(context.Context) {
		mu, lerr := m.lock(class)
		if lerr != nil {
			return
		}
		defer mu.Unlock()

		cur, ok := m.sessions.Get(class)
		if !ok || cur != sess {
			return
		}
		m.sessions.Del(class)
		m.logger.WithFields(logrus.Fields{
			"class":   class.String(),
			"address": sess.peripheral.Address(),
		}).WithError(err).Info("Session ended by stream")
		sess.close(m.logger, m.opts.StopTimeout)
	})
}

// Disconnect closes the session of class. It returns true when no session
// was registered or every close succeeded, false when any close failed.
// Close errors are logged.
func (m *Manager) Disconnect(class device.Class) bool {
	mu, err := m.lock(class)
	if err != nil {
		m.logger.WithError(err).Warn("Disconnect ignored")
		return true
	}
	defer mu.Unlock()

	sess, ok := m.sessions.Get(class)
	if !ok {
		return true
	}
	m.sessions.Del(class)

	closed := sess.close(m.logger, m.opts.StopTimeout)
	m.logger.WithFields(logrus.Fields{
		"class":   class.String(),
		"address": sess.peripheral.Address(),
		"clean":   closed,
	}).Info("Disconnected")
	return closed
}

// Send writes data to the session of class. It returns false when there is
// no session or the write fails.
func (m *Manager) Send(data []byte, class device.Class) bool {
	sess, ok := m.sessions.Get(class)
	if !ok {
		m.logger.WithField("class", class.String()).Debug("Send without session")
		return false
	}
	if err := sess.write(data); err != nil {
		m.logger.WithError(err).WithField("class", class.String()).Error("Failed to send")
		return false
	}
	m.logger.WithFields(logrus.Fields{
		"class": class.String(),
		"bytes": len(data),
	}).Debug("Sent")
	return true
}

// CheckStatus reports whether class has a session whose stream is connected.
func (m *Manager) CheckStatus(class device.Class) bool {
	sess, ok := m.sessions.Get(class)
	return ok && sess.stream.IsConnected()
}

// Session returns the view of the session of class.
func (m *Manager) Session(class device.Class) (SessionInfo, bool) {
	sess, ok := m.sessions.Get(class)
	if !ok {
		return SessionInfo{}, false
	}
	return sess.Info(), true
}

// Connected returns the peripherals with a live session, in class order.
func (m *Manager) Connected() []device.Peripheral {
	out := make([]device.Peripheral, 0, len(device.Classes))
	for _, c := range device.Classes {
		if sess, ok := m.sessions.Get(c); ok {
			out = append(out, sess.peripheral)
		}
	}
	return out
}

// Cleanup disconnects every class. Only the first call has an effect.
func (m *Manager) Cleanup() {
	m.cleanupOnce.Do(func() {
		for _, c := range device.Classes {
			m.Disconnect(c)
		}
		m.logger.Debug("Connection manager cleaned up")
	})
}
