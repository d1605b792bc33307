package master

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/wxflow/raceway/internal/kernel/actor"
	"github.com/wxflow/raceway/internal/kernel/bus"
)

// deadLetterChannel is where the dead-letter office re-publishes every
// message it receives, so actors that care (a diagnostics console, a
// metrics collector) can subscribe to it like any other channel.
const deadLetterChannel bus.Channel = "/system/deadletter"

// deadLetterRef is the Universe-wide sink for messages that could not be
// delivered: sent to a terminated actor, or drained from a mailbox during
// shutdown. It logs and re-publishes rather than silently swallowing.
type deadLetterRef struct {
	bus *bus.Bus
}

func newDeadLetterRef(b *bus.Bus) actor.ActorRef[actor.Message, any] {
	return &deadLetterRef{bus: b}
}

// ID implements actor.BaseActorRef.
func (d *deadLetterRef) ID() string { return "dead-letter-office" }

// Tell implements actor.TellOnlyRef.
func (d *deadLetterRef) Tell(ctx context.Context, msg actor.Message) {
	log.WarnS(ctx, "message sent to dead-letter office", nil, "msg_type", msg.MessageType())
	d.bus.Publish(ctx, deadLetterChannel, msg, d.ID())
}

// Ask implements actor.ActorRef. The dead-letter office never produces a
// meaningful reply; it completes immediately with ErrActorTerminated so a
// caller blocked on Ask does not hang.
func (d *deadLetterRef) Ask(ctx context.Context, msg actor.Message) actor.Future[any] {
	d.Tell(ctx, msg)

	promise := actor.NewPromise[any]()
	promise.Complete(fn.Err[any](actor.ErrActorTerminated))

	return promise.Future()
}
