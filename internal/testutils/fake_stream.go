package testutils

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// FakeStream is an in-memory radio.Stream. The peer side is driven with
// Push and Hangup; everything written to Output is kept for inspection.
type FakeStream struct {
	mu sync.Mutex

	inR *io.PipeReader
	inW *io.PipeWriter

	written   bytes.Buffer
	connected bool
	events    []string

	writeErr       error
	inputCloseErr  error
	outputCloseErr error
	closeErr       error
}

// NewFakeStream creates a connected stream.
func NewFakeStream() *FakeStream {
	r, w := io.Pipe()
	return &FakeStream{inR: r, inW: w, connected: true}
}

// WithWriteError makes every write fail with err.
func (s *FakeStream) WithWriteError(err error) *FakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
	return s
}

// WithCloseErrors sets the errors returned when closing the input, the
// output and the connection.
func (s *FakeStream) WithCloseErrors(input, output, conn error) *FakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputCloseErr, s.outputCloseErr, s.closeErr = input, output, conn
	return s
}

// Push delivers text to the reader. It blocks until the text is read or the
// input is closed.
func (s *FakeStream) Push(text string) error {
	_, err := s.inW.Write([]byte(text))
	return err
}

// Hangup ends the input as if the peer closed the connection.
func (s *FakeStream) Hangup() {
	_ = s.inW.Close()
}

// Fail ends the input with err.
func (s *FakeStream) Fail(err error) {
	_ = s.inW.CloseWithError(err)
}

// SetConnected changes what IsConnected reports.
func (s *FakeStream) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// Written returns everything sent through Output.
func (s *FakeStream) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

// CloseOrder lists the closed parts ("input", "output", "connection") in
// the order they were closed.
func (s *FakeStream) CloseOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// Closed reports whether the connection itself has been closed.
func (s *FakeStream) Closed() bool {
	for _, e := range s.CloseOrder() {
		if e == "connection" {
			return true
		}
	}
	return false
}

func (s *FakeStream) Input() io.ReadCloser {
	return fakeInput{s}
}

func (s *FakeStream) Output() io.WriteCloser {
	return fakeOutput{s}
}

func (s *FakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	s.events = append(s.events, "connection")
	s.connected = false
	err := s.closeErr
	s.mu.Unlock()

	_ = s.inW.Close()
	return err
}

type fakeInput struct{ s *FakeStream }

func (in fakeInput) Read(p []byte) (int, error) {
	return in.s.inR.Read(p)
}

func (in fakeInput) Close() error {
	in.s.mu.Lock()
	in.s.events = append(in.s.events, "input")
	err := in.s.inputCloseErr
	in.s.mu.Unlock()

	_ = in.s.inR.Close()
	return err
}

type fakeOutput struct{ s *FakeStream }

var errOutputClosed = errors.New("output closed")

func (out fakeOutput) Write(p []byte) (int, error) {
	out.s.mu.Lock()
	defer out.s.mu.Unlock()
	if out.s.writeErr != nil {
		return 0, out.s.writeErr
	}
	for _, e := range out.s.events {
		if e == "output" {
			return 0, errOutputClosed
		}
	}
	return out.s.written.Write(p)
}

func (out fakeOutput) Close() error {
	out.s.mu.Lock()
	defer out.s.mu.Unlock()
	out.s.events = append(out.s.events, "output")
	return out.s.outputCloseErr
}
