// Package live holds the containers the core uses to publish shared state:
// whole-value cells that readers observe atomically, and overwrite-oldest
// event channels.
package live

import "sync"

// Value is a single-slot cell. Store replaces the whole value and wakes every
// goroutine waiting on the previous Changed channel; readers never observe a
// partially updated value.
//
// Values stored in the cell must be treated as immutable by both sides.
// Callers publishing slices or maps must hand over a fresh copy.
type Value[T any] struct {
	mu      sync.RWMutex
	v       T
	version uint64
	changed chan struct{}
}

// NewValue creates a cell holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, changed: make(chan struct{})}
}

// Load returns the current value.
func (c *Value[T]) Load() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Snapshot returns the current value with its version. The version increases
// by one on every Store.
func (c *Value[T]) Snapshot() (T, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v, c.version
}

// Store replaces the value and notifies waiters.
func (c *Value[T]) Store(v T) {
	c.mu.Lock()
	c.v = v
	c.version++
	ch := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()

	close(ch)
}

// Update applies fn to the current value and stores the result while holding
// the write lock, so concurrent updates never lose a write.
func (c *Value[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	next := fn(c.v)
	c.v = next
	c.version++
	ch := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()

	close(ch)
	return next
}

// Changed returns a channel closed by the next Store.
func (c *Value[T]) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}
