// Package future provides the completion-with-value-or-error handle used by
// the Cache Manager: an already-satisfied variant for Segment Index hits,
// and a one-shot channel-fed variant for results dispatched to the SQL pool.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by Get after Cancel has been called.
var ErrCancelled = errors.New("future: cancelled")

// Future is a generic completion handle.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	value     T
	err       error
	cancelled bool
	once      sync.Once
}

// New returns an unresolved Future; call Resolve exactly once to complete
// it.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done constructs an already-resolved Future, used for Segment Index hits
// that need no SQL round trip.
func Done[T any](v T, err error) *Future[T] {
	f := New[T]()
	f.Resolve(v, err)
	return f
}

// Resolve completes the future. Only the first call has any effect.
func (f *Future[T]) Resolve(v T, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value, f.err = v, err
		f.mu.Unlock()
		close(f.done)
	})
}

// Get blocks until the future resolves, the context is done, or Cancel was
// already called.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.cancelled {
			var zero T
			return zero, ErrCancelled
		}
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel marks the future as cancelled. If it has not yet resolved, Get
// calls unblock immediately with ErrCancelled; if it has already resolved,
// Cancel is a no-op (the value is preserved).
func (f *Future[T]) Cancel() {
	f.mu.Lock()
	alreadyDone := isClosed(f.done)
	if !alreadyDone {
		f.cancelled = true
	}
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
