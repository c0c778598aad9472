//go:build linux

package rfcomm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/srg/scorelink/internal/radio"
)

func dial(ctx context.Context, addr [6]byte, channel uint8) (radio.Stream, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}

	// Connect blocks until the peer answers; a cancelled ctx aborts it by
	// closing the socket underneath.
	connected := make(chan struct{})
	var aborted atomic.Bool
	go func() {
		select {
		case <-ctx.Done():
			aborted.Store(true)
			_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		case <-connected:
		}
	}()

	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel})
	close(connected)
	if err != nil {
		_ = unix.Close(fd)
		if aborted.Load() {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rfcomm connect %s: %w", FormatAddress(addr), err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm nonblock: %w", err)
	}

	s := &socketStream{file: os.NewFile(uintptr(fd), "rfcomm:"+FormatAddress(addr))}
	s.connected.Store(true)
	return s, nil
}

// socketStream is a connected RFCOMM socket. The fd is registered with the
// runtime poller so deadlines can unblock reads.
type socketStream struct {
	file      *os.File
	connected atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *socketStream) Input() io.ReadCloser   { return &socketInput{s: s} }
func (s *socketStream) Output() io.WriteCloser { return &socketOutput{s: s} }
func (s *socketStream) IsConnected() bool      { return s.connected.Load() }

func (s *socketStream) Close() error {
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		s.closeErr = s.file.Close()
		if errors.Is(s.closeErr, os.ErrClosed) {
			s.closeErr = nil
		}
	})
	return s.closeErr
}

func (s *socketStream) shutdown(how int) error {
	raw, err := s.file.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.Shutdown(int(fd), how)
	}); err != nil {
		return err
	}
	if errors.Is(serr, unix.ENOTCONN) {
		return nil
	}
	return serr
}

type socketInput struct{ s *socketStream }

func (in *socketInput) Read(p []byte) (int, error) {
	n, err := in.s.file.Read(p)
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		in.s.connected.Store(false)
	}
	return n, err
}

func (in *socketInput) Close() error {
	_ = in.s.file.SetReadDeadline(time.Now())
	if err := in.s.shutdown(unix.SHUT_RD); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

type socketOutput struct{ s *socketStream }

func (out *socketOutput) Write(p []byte) (int, error) {
	n, err := out.s.file.Write(p)
	if err != nil {
		out.s.connected.Store(false)
	}
	return n, err
}

func (out *socketOutput) Close() error {
	if err := out.s.shutdown(unix.SHUT_WR); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
