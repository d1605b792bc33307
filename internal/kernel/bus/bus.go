// Package bus implements the kernel's single in-process publish/subscribe
// fabric. Actors never address each other directly; they publish a payload
// on a named channel and the Bus fans it out to every subscriber whose
// pattern matches, including prefix-wildcard subscribers and (indirectly,
// through the same subscription mechanism) remote BusConnectors.
package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/wxflow/raceway/internal/kernel/actor"
)

// Channel is a hierarchical, '/'-delimited path-like name. Channels are
// implicit: they exist the moment some actor references them in read-from
// or write-to.
type Channel string

// localPrefix marks a channel as confined to its own process; the Bus's
// cross-process extension (remote BusConnectors) must never forward such a
// channel, even if a connector is broadly subscribed.
const localPrefix = "/local/"

// IsLocal reports whether the channel is confined to the local process and
// must never cross a BusConnector.
func (c Channel) IsLocal() bool {
	return strings.HasPrefix(string(c), localPrefix)
}

// BusEvent is the universal wrapper for bus publications. It embeds
// actor.BaseMessage so it satisfies the kernel actor package's sealed
// Message interface without that package needing to know anything about
// the bus.
type BusEvent struct {
	actor.BaseMessage

	Channel Channel
	Payload any
	Sender  string
}

// MessageType identifies this as a bus delivery for routing/logging.
func (BusEvent) MessageType() string { return "BusEvent" }

// Subscriber is anything that can receive bus deliveries. RaceActors adapt
// their mailbox to this via actor.MapInputRef; tests may supply a bare
// TellOnlyRef[BusEvent] directly.
type Subscriber = actor.TellOnlyRef[BusEvent]

// Handle identifies a single (subscriber, pattern) registration, returned
// from Subscribe for later use with Unsubscribe.
type Handle struct {
	subscriberID string
	pattern      string
}

type subscription struct {
	handle  Handle
	matcher glob.Glob
	ref     Subscriber
}

// Bus is the kernel's pub/sub fabric. The zero value is not usable; use New.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// compilePattern compiles a channel pattern. Patterns are matched with no
// path separator configured for gobwas/glob, so a trailing "*" spans every
// descendant segment under its prefix (e.g. "/a/*" matches "/a/b" and
// "/a/b/c"). Patterns without "*" behave as plain equality.
func compilePattern(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern)
}

// Subscribe registers interest in channels matching pattern on behalf of
// ref. It is idempotent: subscribing the same (ref, pattern) pair twice
// returns the existing handle rather than creating a duplicate entry.
// Subscribe is linearizable with respect to Publish: once Subscribe
// returns, every subsequent Publish call observes the new subscription in
// its entirety, and no Publish already in flight observes it partially.
func (b *Bus) Subscribe(ref Subscriber, pattern string) (Handle, error) {
	matcher, err := compilePattern(pattern)
	if err != nil {
		return Handle{}, err
	}

	handle := Handle{subscriberID: ref.ID(), pattern: pattern}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if s.handle == handle {
			return handle, nil
		}
	}

	b.subs = append(b.subs, subscription{
		handle:  handle,
		matcher: matcher,
		ref:     ref,
	})

	log.Debugf("bus: subscribed %s to pattern %s", handle.subscriberID, pattern)

	return handle, nil
}

// Unsubscribe removes a single (ref, pattern) registration. It is a no-op
// if the registration does not exist.
func (b *Bus) Unsubscribe(ref Subscriber, pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := Handle{subscriberID: ref.ID(), pattern: pattern}
	b.subs = removeWhere(b.subs, func(s subscription) bool {
		return s.handle == target
	})
}

// UnsubscribeAll removes every registration belonging to ref, used when an
// actor terminates.
func (b *Bus) UnsubscribeAll(ref Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := ref.ID()
	b.subs = removeWhere(b.subs, func(s subscription) bool {
		return s.handle.subscriberID == id
	})
}

func removeWhere(subs []subscription, match func(subscription) bool) []subscription {
	kept := subs[:0]
	for _, s := range subs {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	return kept
}

// Publish wraps payload into a BusEvent addressed to channel and delivers
// it, fire-and-forget, to every subscriber whose pattern matches. Delivery
// order among distinct subscribers is unspecified. Delivery never calls a
// subscriber inline — it enqueues to the subscriber's own mailbox via
// Tell, so a publisher that is also a subscriber of the same channel (a
// cycle in the actor graph) cannot deadlock on itself.
func (b *Bus) Publish(ctx context.Context, channel Channel, payload any, sender string) {
	event := BusEvent{
		Channel: channel,
		Payload: payload,
		Sender:  sender,
	}

	matched := b.matchingSubscribers(channel)

	if len(matched) == 0 {
		log.Debugf("bus: no subscribers for channel %s", channel)
		return
	}

	for _, ref := range matched {
		ref.Tell(ctx, event)
	}
}

func (b *Bus) matchingSubscribers(channel Channel) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Subscriber
	for _, s := range b.subs {
		if s.matcher.Match(string(channel)) {
			matched = append(matched, s.ref)
		}
	}

	return matched
}

// HasSubscribers reports whether any subscriber currently matches channel.
// Publish itself does not consult it; a publication with no matching
// subscriber is only logged at debug level.
func (b *Bus) HasSubscribers(channel Channel) bool {
	return len(b.matchingSubscribers(channel)) > 0
}
