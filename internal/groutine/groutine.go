// Package groutine starts named goroutines whose lifetime is owned by a
// handle: the owner can cancel the goroutine and join it.
package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
	"time"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Task is a supervised goroutine.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Go starts fn in a goroutine labelled with name (visible in pprof goroutine
// profiles) and returns its handle. fn must return once ctx is cancelled.
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) *Task {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	labels := pprof.Labels("goroutine_name", name)
	go pprof.Do(ctx, labels, func(ctx context.Context) {
		defer close(t.done)
		defer cancel()
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})

	return t
}

// Name returns the label the task was started with.
func (t *Task) Name() string {
	return t.name
}

// Done is closed when the task function has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel requests the task to stop. It does not wait.
func (t *Task) Cancel() {
	t.once.Do(t.cancel)
}

// Wait blocks until the task returns or timeout elapses. A zero timeout waits
// forever. It reports whether the task finished.
func (t *Task) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-t.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Stop cancels the task and waits for it, bounded by timeout.
func (t *Task) Stop(timeout time.Duration) bool {
	t.Cancel()
	return t.Wait(timeout)
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
