package connection

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/radio"
	"github.com/srg/scorelink/internal/telemetry"
)

// SessionInfo is a read-only view of a live session.
type SessionInfo struct {
	Peripheral  device.Peripheral
	ConnectedAt time.Time
	Connected   bool
}

// Session owns the stream of one connected peripheral and its listener.
type Session struct {
	peripheral  device.Peripheral
	stream      radio.Stream
	listener    *telemetry.Listener
	connectedAt time.Time

	writeMu sync.Mutex

	closeOnce sync.Once
	closeOK   bool
}

func newSession(p device.Peripheral, stream radio.Stream, now time.Time) *Session {
	p.Status = device.Connected
	p.LiveConnected = true
	return &Session{
		peripheral:  p,
		stream:      stream,
		connectedAt: now,
	}
}

// Info returns the session view.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Peripheral:  s.peripheral,
		ConnectedAt: s.connectedAt,
		Connected:   s.stream.IsConnected(),
	}
}

// write sends data on the output half; writes are serialized per session.
func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.stream.Output().Write(data)
	return err
}

// close releases the session. The input, the output and the connection are
// closed in that order, each attempted even when an earlier close failed.
// The listener is then joined, bounded by stopTimeout. close runs once; it
// reports whether every close succeeded.
func (s *Session) close(logger *logrus.Logger, stopTimeout time.Duration) bool {
	s.closeOnce.Do(func() {
		log := logger.WithFields(logrus.Fields{
			"class":   s.peripheral.Class.String(),
			"address": s.peripheral.Address(),
		})

		if s.listener != nil {
			s.listener.Cancel()
		}

		ok := true
		steps := []struct {
			name  string
			close func() error
		}{
			{"input", s.stream.Input().Close},
			{"output", s.stream.Output().Close},
			{"connection", s.stream.Close},
		}
		for _, step := range steps {
			if err := step.close(); err != nil {
				ok = false
				log.WithError(err).WithField("part", step.name).Warn("Failed to close stream")
			}
		}

		if s.listener != nil && !s.listener.Wait(stopTimeout) {
			log.WithField("timeout", stopTimeout).Warn("Telemetry listener did not stop in time")
		}
		s.closeOK = ok
	})
	return s.closeOK
}
