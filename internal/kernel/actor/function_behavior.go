package actor

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// functionBehavior adapts a plain function to the ActorBehavior interface,
// for actors whose logic doesn't warrant a dedicated named type (the dead
// letter actor, test doubles, simple bridges).
type functionBehavior[M Message, R any] struct {
	fn func(ctx context.Context, msg M) fn.Result[R]
}

// NewFunctionBehavior wraps a plain receive function as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](
	receiveFn func(ctx context.Context, msg M) fn.Result[R],
) ActorBehavior[M, R] {
	return &functionBehavior[M, R]{fn: receiveFn}
}

// Receive dispatches to the wrapped function.
func (f *functionBehavior[M, R]) Receive(ctx context.Context, msg M) fn.Result[R] {
	return f.fn(ctx, msg)
}
