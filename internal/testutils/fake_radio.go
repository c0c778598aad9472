package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/srg/scorelink/internal/radio"
)

// FakeRadio is a scriptable radio.Adapter.
//
//	r := testutils.NewFakeRadio().WithStream("AA:BB", stream)
//	r.EmitFound("AA:BB", "Watch")
type FakeRadio struct {
	mu sync.Mutex

	enabled bool
	handler func(radio.Event)
	subGen  int

	subscribeErr   error
	unsubscribeErr error
	startErr       error
	cancelErr      error
	openErrs       map[string]error
	streams        map[string][]*FakeStream

	subscribeCalls   int
	unsubscribeCalls int
	startCalls       int
	cancelCalls      int
	opened           []OpenCall
}

// OpenCall records one OpenStream invocation.
type OpenCall struct {
	Address string
	Service uuid.UUID
	Stream  *FakeStream
}

// NewFakeRadio creates an enabled radio with no scripted failures.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{
		enabled:  true,
		openErrs: make(map[string]error),
		streams:  make(map[string][]*FakeStream),
	}
}

func (r *FakeRadio) WithEnabled(enabled bool) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
	return r
}

func (r *FakeRadio) WithSubscribeError(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeErr = err
	return r
}

func (r *FakeRadio) WithUnsubscribeError(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeErr = err
	return r
}

func (r *FakeRadio) WithStartError(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
	return r
}

func (r *FakeRadio) WithCancelError(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelErr = err
	return r
}

// WithOpenError makes OpenStream to address fail with err.
func (r *FakeRadio) WithOpenError(address string, err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openErrs[address] = err
	return r
}

// WithStream queues stream as the result of the next OpenStream to address.
// Without a queued stream a fresh FakeStream is returned.
func (r *FakeRadio) WithStream(address string, stream *FakeStream) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[address] = append(r.streams[address], stream)
	return r
}

func (r *FakeRadio) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *FakeRadio) Subscribe(handler func(radio.Event)) (radio.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeCalls++
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	r.handler = handler
	r.subGen++
	gen := r.subGen

	return radio.SubscriptionFunc(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.unsubscribeCalls++
		if r.subGen == gen {
			r.handler = nil
		}
		return r.unsubscribeErr
	}), nil
}

func (r *FakeRadio) StartDiscovery() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	return r.startErr
}

func (r *FakeRadio) CancelDiscovery() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelCalls++
	return r.cancelErr
}

func (r *FakeRadio) OpenStream(ctx context.Context, address string, service uuid.UUID) (radio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openErrs[address]; err != nil {
		return nil, err
	}

	var stream *FakeStream
	if queued := r.streams[address]; len(queued) > 0 {
		stream, r.streams[address] = queued[0], queued[1:]
	} else {
		stream = NewFakeStream()
	}
	r.opened = append(r.opened, OpenCall{Address: address, Service: service, Stream: stream})
	return stream, nil
}

// Emit delivers ev to the current subscriber, if any. It reports whether
// the event was delivered.
func (r *FakeRadio) Emit(ev radio.Event) bool {
	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(ev)
	return true
}

func (r *FakeRadio) EmitFound(address, name string) bool {
	return r.Emit(radio.Event{Kind: radio.EventFound, Address: address, Name: name})
}

func (r *FakeRadio) EmitFinished() bool {
	return r.Emit(radio.Event{Kind: radio.EventFinished})
}

// Subscribed reports whether a subscription is currently live.
func (r *FakeRadio) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler != nil
}

// Calls returns how many times each adapter operation was invoked.
func (r *FakeRadio) Calls() RadioCalls {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RadioCalls{
		Subscribe:   r.subscribeCalls,
		Unsubscribe: r.unsubscribeCalls,
		Start:       r.startCalls,
		Cancel:      r.cancelCalls,
		Open:        len(r.opened),
	}
}

// RadioCalls counts FakeRadio invocations.
type RadioCalls struct {
	Subscribe   int
	Unsubscribe int
	Start       int
	Cancel      int
	Open        int
}

// Opened returns every OpenStream call in order.
func (r *FakeRadio) Opened() []OpenCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OpenCall(nil), r.opened...)
}

// LastStream returns the stream handed out by the most recent OpenStream to
// address.
func (r *FakeRadio) LastStream(address string) (*FakeStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.opened) - 1; i >= 0; i-- {
		if r.opened[i].Address == address {
			return r.opened[i].Stream, nil
		}
	}
	return nil, errors.New("no stream opened for " + address)
}

var _ radio.Adapter = (*FakeRadio)(nil)

// FakeGate is a switchable radio.PermissionGate.
type FakeGate struct {
	mu      sync.Mutex
	granted bool
}

func NewFakeGate(granted bool) *FakeGate {
	return &FakeGate{granted: granted}
}

func (g *FakeGate) Set(granted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.granted = granted
}

func (g *FakeGate) HasRequiredGrants() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.granted
}
