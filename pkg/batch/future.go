package batch

import (
	"context"
	"sync"
)

// Future is the pending result of a single Request. It settles exactly once,
// either with the item matching the requested key or with an error.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done returns a channel that is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
// Cancelling ctx does not retract the request.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value without blocking. ok is false if the
// future has not settled yet.
func (f *Future[T]) Result() (val T, ok bool, err error) {
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		return val, false, nil
	}
}

func (f *Future[T]) settle(val T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// waiter is the continuation pair registered for a key in the pending queue.
type waiter[T any] struct {
	future *Future[T]
}

func (w waiter[T]) fulfill(item T) {
	w.future.settle(item, nil)
}

func (w waiter[T]) reject(err error) {
	var zero T
	w.future.settle(zero, err)
}
