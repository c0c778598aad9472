package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/groutine"
)

// MinReadBuffer is the smallest read buffer a listener uses.
const MinReadBuffer = 1024

// ListenerConfig describes one read loop.
type ListenerConfig struct {
	Class        device.Class
	PeripheralID string
	Input        io.Reader
	Feed         *Feed
	Parser       *Parser
	BufferSize   int
	Logger       *logrus.Logger
	// OnExit is called from the listener goroutine after the read loop ends.
	// err is nil when the loop was stopped by its owner.
	OnExit func(err error)
	// Now is the sample clock; nil means time.Now.
	Now func() time.Time
}

// Listener is the supervised read loop of one connection session.
type Listener struct {
	cfg  ListenerConfig
	task *groutine.Task
}

// StartListener spawns the read loop for cfg.Input. The loop runs until a
// read fails, the input reaches EOF, or the listener is stopped. Stopping
// cancels the loop; the owner must also close cfg.Input to unblock a pending
// read.
func StartListener(ctx context.Context, cfg ListenerConfig) (*Listener, error) {
	if cfg.Input == nil {
		return nil, errors.New("listener input is nil")
	}
	if cfg.Feed == nil {
		return nil, errors.New("listener feed is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Parser == nil {
		cfg.Parser = NewParser(cfg.Logger)
	}
	if cfg.BufferSize < MinReadBuffer {
		cfg.BufferSize = MinReadBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Listener{cfg: cfg}
	name := fmt.Sprintf("telemetry-%s-%s", cfg.Class, cfg.PeripheralID)
	l.task = groutine.Go(ctx, name, l.run)
	return l, nil
}

func (l *Listener) run(ctx context.Context) {
	logger := l.cfg.Logger.WithFields(logrus.Fields{
		"class":      l.cfg.Class.String(),
		"peripheral": l.cfg.PeripheralID,
	})
	logger.Debug("Telemetry listener started")

	err := l.readLoop(ctx)
	switch {
	case err == nil:
		logger.Debug("Telemetry listener stopped")
	case errors.Is(err, io.EOF):
		logger.Info("Telemetry stream closed by peer")
	default:
		logger.WithError(err).Warn("Telemetry read failed")
	}

	if l.cfg.OnExit != nil {
		l.cfg.OnExit(err)
	}
}

func (l *Listener) readLoop(ctx context.Context) error {
	buf := make([]byte, l.cfg.BufferSize)
	for {
		n, err := l.cfg.Input.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if n > 0 {
			l.handle(string(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return device.NewError(device.IOFailure, "read", err)
		}
	}
}

func (l *Listener) handle(text string) {
	s := Sample{
		Class:        l.cfg.Class,
		PeripheralID: l.cfg.PeripheralID,
		Raw:          text,
		ReceivedAt:   l.cfg.Now(),
	}
	if l.cfg.Class == device.Watch {
		s.HeartRate, s.HasHeartRate = l.cfg.Parser.Parse(text)
	}

	l.cfg.Logger.WithFields(logrus.Fields{
		"class":      s.Class.String(),
		"peripheral": s.PeripheralID,
		"bytes":      len(text),
	}).Debug("Telemetry received")

	l.cfg.Feed.Publish(s)
}

// Done is closed once the read loop has returned and OnExit has run.
func (l *Listener) Done() <-chan struct{} {
	return l.task.Done()
}

// Cancel asks the loop to stop without waiting.
func (l *Listener) Cancel() {
	l.task.Cancel()
}

// Wait joins the loop, bounded by timeout. It reports whether the loop ended.
func (l *Listener) Wait(timeout time.Duration) bool {
	return l.task.Wait(timeout)
}
