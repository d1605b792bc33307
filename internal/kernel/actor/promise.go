package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// promiseImpl is the default Promise/Future implementation backing Ask. It is
// completed at most once; subsequent Complete calls are no-ops and return
// false. Waiters block on the done channel rather than polling.
type promiseImpl[T any] struct {
	mu     sync.Mutex
	done   chan struct{}
	result fn.Result[T]
}

// NewPromise creates a new, uncompleted Promise.
func NewPromise[T any]() Promise[T] {
	return &promiseImpl[T]{
		done: make(chan struct{}),
	}
}

// Complete sets the promise's result exactly once. It returns true if this
// call was the one that completed the promise.
func (p *promiseImpl[T]) Complete(result fn.Result[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
		return false
	default:
		p.result = result
		close(p.done)
		return true
	}
}

// Future returns the Future view of this promise.
func (p *promiseImpl[T]) Future() Future[T] {
	return p
}

// Await blocks until the promise is completed or the context is cancelled.
func (p *promiseImpl[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		return p.result
	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply returns a new Future whose value is the result of applying fn to
// this Future's value once it completes. If the context is cancelled first,
// the new Future completes with the context's error instead.
func (p *promiseImpl[T]) ThenApply(ctx context.Context, mapFn func(T) T) Future[T] {
	next := NewPromise[T]()

	go func() {
		result := p.Await(ctx)
		if val, err := result.Unpack(); err == nil {
			next.Complete(fn.Ok(mapFn(val)))
			return
		}

		next.Complete(result)
	}()

	return next.Future()
}

// OnComplete registers a callback to be invoked with the Future's result once
// it is available, or with the context's error if the context is cancelled
// first.
func (p *promiseImpl[T]) OnComplete(ctx context.Context, cb func(fn.Result[T])) {
	go func() {
		cb(p.Await(ctx))
	}()
}
