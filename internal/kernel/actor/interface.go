// Package actor implements the kernel's per-actor execution substrate:
// typed mailboxes, the single-threaded dispatch loop, and the Tell/Ask
// reference types everything above it (the RaceActor base, the Bus, the
// Master's dead-letter sink) is built on. It knows nothing about
// lifecycle states, channels, or configuration — those live in the
// raceactor and bus packages; this one only guarantees that messages for
// one actor are processed strictly one at a time, in arrival order.
package actor

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrActorTerminated indicates an operation failed because the target
// actor was already terminated or shutting down.
var ErrActorTerminated = errors.New("actor terminated")

// ErrMailboxOverflow indicates a bounded mailbox discarded a user message
// under its configured drop discipline.
var ErrMailboxOverflow = errors.New("mailbox overflow")

// BaseMessage is embedded by message types defined outside this package to
// satisfy Message's unexported marker method.
type BaseMessage struct{}

func (BaseMessage) messageMarker() {}

// Message is the sealed interface all mailbox traffic implements. Sealing
// (via the unexported marker) keeps arbitrary values out of mailboxes;
// embedding BaseMessage is the only way in from another package.
type Message interface {
	messageMarker()

	// MessageType names the message for logging and dead-letter
	// diagnostics.
	MessageType() string
}

// SystemMessage is an optional extension for messages that belong to the
// kernel rather than user traffic (lifecycle directives, for instance).
// A bounded mailbox never drops a system message and does not count them
// against its bound, so a flooded actor can still be terminated.
type SystemMessage interface {
	Message

	// IsSystemMessage reports whether this particular value is kernel
	// traffic. Returning false makes the message ordinary user traffic
	// even though the type implements the interface.
	IsSystemMessage() bool
}

// Future is the consumer half of an Ask: it can be awaited, transformed,
// or given a completion callback.
type Future[T any] interface {
	// Await blocks until the result is available or ctx is cancelled.
	Await(ctx context.Context) fn.Result[T]

	// ThenApply returns a new Future holding mapFn applied to this one's
	// eventual value. Errors (including ctx cancellation while waiting)
	// pass through untransformed.
	ThenApply(ctx context.Context, mapFn func(T) T) Future[T]

	// OnComplete invokes cb with the result once available, or with
	// ctx's error if it is cancelled first.
	OnComplete(ctx context.Context, cb func(fn.Result[T]))
}

// Promise is the producer half of an Ask. Whoever processes the message
// completes the promise exactly once; every waiter on the associated
// Future then unblocks with that result.
type Promise[T any] interface {
	// Future returns the consumer view of this promise.
	Future() Future[T]

	// Complete sets the result. It returns true only for the first call;
	// later calls are no-ops.
	Complete(result fn.Result[T]) bool
}

// BaseActorRef is the non-generic core of every actor reference, letting
// heterogeneous references share data structures (the Bus's subscription
// index keys on ID alone).
type BaseActorRef interface {
	// ID returns the reference's stable unique identifier.
	ID() string
}

// TellOnlyRef is a fire-and-forget reference: it can enqueue messages but
// never observe a reply. The Bus hands these out as the subscriber
// contract, since fan-out deliveries have no response.
type TellOnlyRef[M Message] interface {
	BaseActorRef

	// Tell enqueues msg without waiting for it to be processed. If the
	// target is already terminated the message is rerouted to the
	// dead-letter sink instead.
	Tell(ctx context.Context, msg M)
}

// ActorRef additionally supports Ask, the request/response pattern the
// Master uses to await lifecycle acknowledgements.
type ActorRef[M Message, R any] interface {
	TellOnlyRef[M]

	// Ask enqueues msg and returns a Future completed with the
	// behavior's result once the message has been processed.
	Ask(ctx context.Context, msg M) Future[R]
}

// ActorBehavior is the strategy an Actor runs for each dequeued message.
// Receive is only ever invoked from the actor's own dispatch goroutine,
// so implementations need no internal locking for actor-local state.
type ActorBehavior[M Message, R any] interface {
	// Receive processes one message. ctx is the actor's lifecycle
	// context for Tell traffic; for Ask traffic it additionally cancels
	// when the asker's context does.
	Receive(ctx context.Context, msg M) fn.Result[R]
}
