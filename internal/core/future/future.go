// Package future provides a one-shot completion handle for work executed on
// another goroutine.
package future

import (
	"context"
	"sync"
)

// Future is the read side of a result that becomes available exactly once.
// Callers may block (Wait), poll (Poll), select on Done, or drop it.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// New returns an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved[T any](val T, err error) *Future[T] {
	f := New[T]()
	f.Resolve(val, err)
	return f
}

// Resolve completes the future. Only the first call has any effect; it
// reports whether this call was the one that resolved it.
func (f *Future[T]) Resolve(val T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Poll returns the result without blocking; ok is false while pending.
func (f *Future[T]) Poll() (val T, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
