package radio

import (
	"sync/atomic"

	"github.com/cornelk/hashmap"
)

// Broadcaster fans discovery events out to registered handlers. Platform
// adapters embed it to implement Subscribe.
type Broadcaster struct {
	next     atomic.Uint64
	handlers *hashmap.Map[uint64, func(Event)]
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{handlers: hashmap.New[uint64, func(Event)]()}
}

// Subscribe registers handler until the returned subscription is released.
func (b *Broadcaster) Subscribe(handler func(Event)) (Subscription, error) {
	id := b.next.Add(1)
	b.handlers.Set(id, handler)

	var released atomic.Bool
	return SubscriptionFunc(func() error {
		if released.CompareAndSwap(false, true) {
			b.handlers.Del(id)
		}
		return nil
	}), nil
}

// Emit delivers ev to every registered handler on the caller's goroutine.
func (b *Broadcaster) Emit(ev Event) {
	b.handlers.Range(func(_ uint64, h func(Event)) bool {
		h(ev)
		return true
	})
}

// Len returns the number of registered handlers.
func (b *Broadcaster) Len() int {
	return b.handlers.Len()
}
