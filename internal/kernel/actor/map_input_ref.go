package actor

import (
	"context"
	"fmt"
)

// MapInputRef adapts a TellOnlyRef[Out] so it can be addressed as a
// TellOnlyRef[In], translating each message on the way through. The kernel
// uses it for exactly one bridge: a RaceActor's mailbox speaks its own
// envelope type, but the Bus delivers raw BusEvents, so each subscription
// is registered through a MapInputRef that wraps the event into an
// envelope.
type MapInputRef[In Message, Out Message] struct {
	target    TellOnlyRef[Out]
	transform func(In) Out
}

// NewMapInputRef wraps target behind a translating reference.
func NewMapInputRef[In Message, Out Message](
	target TellOnlyRef[Out], transform func(In) Out,
) *MapInputRef[In, Out] {
	return &MapInputRef[In, Out]{target: target, transform: transform}
}

// Tell translates msg and forwards it to the target's mailbox.
func (m *MapInputRef[In, Out]) Tell(ctx context.Context, msg In) {
	m.target.Tell(ctx, m.transform(msg))
}

// ID derives a stable identifier from the target's, so subscription
// bookkeeping keyed on ID (Subscribe idempotence, UnsubscribeAll) treats
// every MapInputRef over the same actor as that actor.
func (m *MapInputRef[In, Out]) ID() string {
	return fmt.Sprintf("map-input->%s", m.target.ID())
}

var _ TellOnlyRef[Message] = (*MapInputRef[Message, Message])(nil)
