// Package topic implements the channel-topic on-demand production
// protocol: a Provider only produces data for a (channel, topic-key) pair
// once at least one Subscriber has asked for it and accepted a Response,
// and stops again once the accepted-subscriber count falls back to zero.
// TransitiveProvider composes the Provider and Subscriber roles so the
// suppression propagates upstream through a chain of actors.
package topic

import (
	"context"
	"sync"
	"time"

	"github.com/wxflow/raceway/internal/kernel/bus"
)

// ControlChannel is the single reserved bus channel every participant
// publishes and subscribes to for protocol messages. Using one shared
// channel (rather than one per topic) keeps the wiring symmetric with how
// every other kernel component reaches the bus: through ordinary
// publish/subscribe, not a side-channel.
const ControlChannel bus.Channel = "/system/topic"

// AllTopics is the reserved topic key meaning "serve every key on this
// channel unconditionally." A Provider advertised with AllTopics bypasses
// the request/accept protocol entirely on the Provider side.
const AllTopics = "<all>"

// Key identifies one stream of data conditioned by an opaque key, e.g. an
// airport code or satellite id.
type Key struct {
	Channel  bus.Channel
	TopicKey string
}

// Request asks whether any Provider can serve Key.
type Request struct {
	Key         Key
	RequesterID string
}

// Response is a Provider's offer to serve Key, addressed to RequesterID.
type Response struct {
	Key         Key
	ProviderID  string
	RequesterID string
}

// Accept confirms a Response; the named Provider should begin producing
// (or continue, if other subscribers already accepted it).
type Accept struct {
	Key         Key
	ProviderID  string
	RequesterID string
}

// Release withdraws a prior Accept. When a Provider's accepted-subscriber
// count reaches zero it must stop producing within a bounded time.
type Release struct {
	Key         Key
	ProviderID  string
	RequesterID string
}

// TieBreak picks one Response among several collected during the retry
// window. Passing a nil TieBreak to NewCoordinator selects the default
// behavior: the first Response received is accepted immediately, with no
// collection window.
type TieBreak func(responses []Response) Response

const (
	defaultRetryInterval = 2 * time.Second
	defaultMaxBackoff    = 10 * time.Second
)

type providerState struct {
	accepted map[string]struct{} // subscriber ID -> present
	serving  bool
}

type subscriberState struct {
	responses []Response
	accepted  *Response
	timer     *time.Timer
	backoff   time.Duration
	cancelled bool
}

// Coordinator runs the protocol on behalf of a single actor. An actor that
// is a Provider, a Subscriber, or both (a TransitiveProvider) owns exactly
// one Coordinator, constructed with its own stable ID and the hooks the
// kernel should invoke as accepted-subscriber counts cross zero.
type Coordinator struct {
	selfID string
	bus    *bus.Bus
	self   bus.Subscriber
	tie    TieBreak

	// RetryInterval is how long a Request waits before being re-issued
	// (and, with a custom TieBreak, how long Responses are collected
	// before one is chosen). Override before the first Request.
	RetryInterval time.Duration

	// MaxBackoff caps the doubling retry interval.
	MaxBackoff time.Duration

	// OnServeStart is invoked when a Key this actor provides transitions
	// from zero to one accepted subscribers; the actor should begin
	// publishing for that Key.
	OnServeStart func(Key)

	// OnServeStop is invoked when a Key's accepted-subscriber count falls
	// back to zero; the actor must stop publishing within one scheduler
	// tick.
	OnServeStop func(Key)

	// OnAccepted is invoked on the Subscriber side once a Response has
	// been accepted, naming the chosen Provider.
	OnAccepted func(key Key, providerID string)

	// OnProviderGone is invoked when an accepted Provider disappears
	// (reported through ProviderGone, e.g. after a transport failure),
	// letting the Subscriber re-Request.
	OnProviderGone func(Key)

	mu          sync.Mutex
	provided    map[Key]*providerState
	subscribed  map[Key]*subscriberState
	advertised  map[bus.Channel]struct{} // channels this actor provides AllTopics on
	transitives map[Key]Key              // downstream key -> upstream key
	deferred    map[Key][]Request        // upstream key -> downstream Requests awaiting it
}

// NewCoordinator constructs a Coordinator and subscribes it to
// ControlChannel. selfID must be the owning actor's stable name.
func NewCoordinator(b *bus.Bus, self bus.Subscriber, selfID string, tie TieBreak) (*Coordinator, error) {
	c := &Coordinator{
		selfID:        selfID,
		bus:           b,
		self:          self,
		tie:           tie,
		RetryInterval: defaultRetryInterval,
		MaxBackoff:    defaultMaxBackoff,
		provided:      make(map[Key]*providerState),
		subscribed:    make(map[Key]*subscriberState),
		advertised:    make(map[bus.Channel]struct{}),
		transitives:   make(map[Key]Key),
		deferred:      make(map[Key][]Request),
	}

	if _, err := b.Subscribe(self, string(ControlChannel)); err != nil {
		return nil, err
	}

	return c, nil
}

// Close unsubscribes the coordinator from the control channel.
func (c *Coordinator) Close() {
	c.bus.Unsubscribe(c.self, string(ControlChannel))
}

// Advertise registers this actor as a Provider for key. If topicKey is
// AllTopics, the Provider serves every key on the channel unconditionally
// and OnServeStart fires immediately, bypassing the request protocol.
func (c *Coordinator) Advertise(key Key) {
	c.mu.Lock()

	if key.TopicKey == AllTopics {
		c.advertised[key.Channel] = struct{}{}
		c.mu.Unlock()

		if c.OnServeStart != nil {
			c.OnServeStart(key)
		}
		return
	}

	if _, ok := c.provided[key]; !ok {
		c.provided[key] = &providerState{accepted: make(map[string]struct{})}
	}
	c.mu.Unlock()
}

// AdvertiseTransitive registers this actor as a TransitiveProvider: it
// serves downstream once its own upstream Request has been Accepted.
func (c *Coordinator) AdvertiseTransitive(downstream, upstream Key) {
	c.Advertise(downstream)

	c.mu.Lock()
	c.transitives[downstream] = upstream
	c.mu.Unlock()
}

// Request issues a Request for key on behalf of this actor, retrying with
// exponential backoff (capped at MaxBackoff) until a Response arrives and
// is accepted, or until Release/cancellation.
func (c *Coordinator) Request(ctx context.Context, key Key) {
	c.mu.Lock()
	if _, exists := c.subscribed[key]; exists {
		c.mu.Unlock()
		return
	}

	st := &subscriberState{backoff: c.RetryInterval}
	c.subscribed[key] = st
	c.mu.Unlock()

	c.publish(ctx, Request{Key: key, RequesterID: c.selfID})
	c.armRetry(ctx, key, st, c.RetryInterval)
}

// armRetry schedules the next look at key's subscription: with a custom
// TieBreak it is the end of the Response collection window, without one
// it only fires when no Response arrived at all and the Request needs
// re-issuing.
func (c *Coordinator) armRetry(ctx context.Context, key Key, st *subscriberState, delay time.Duration) {
	st.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		cur, ok := c.subscribed[key]
		if !ok || cur.cancelled || cur.accepted != nil {
			c.mu.Unlock()
			return
		}

		if c.tie != nil && len(cur.responses) > 0 {
			chosen := c.tie(cur.responses)
			cur.accepted = &chosen
			c.mu.Unlock()

			c.sendAccept(ctx, key, chosen.ProviderID)
			return
		}

		next := c.backoffStep(cur.backoff)
		cur.backoff = next
		c.mu.Unlock()

		c.publish(ctx, Request{Key: key, RequesterID: c.selfID})
		c.armRetry(ctx, key, cur, next)
	})
}

func (c *Coordinator) sendAccept(ctx context.Context, key Key, providerID string) {
	c.publish(ctx, Accept{Key: key, ProviderID: providerID, RequesterID: c.selfID})
	if c.OnAccepted != nil {
		c.OnAccepted(key, providerID)
	}

	// A TransitiveProvider's own upstream is now satisfied: release the
	// downstream Responses it deferred while waiting.
	c.mu.Lock()
	pending := c.deferred[key]
	delete(c.deferred, key)
	c.mu.Unlock()

	for _, req := range pending {
		c.publish(ctx, Response{
			Key:         req.Key,
			ProviderID:  c.selfID,
			RequesterID: req.RequesterID,
		})
	}
}

func (c *Coordinator) backoffStep(cur time.Duration) time.Duration {
	next := cur * 2
	if next > c.MaxBackoff {
		return c.MaxBackoff
	}
	return next
}

// Release withdraws this actor's Accept for key, if any.
func (c *Coordinator) Release(ctx context.Context, key Key) {
	c.mu.Lock()
	st, ok := c.subscribed[key]
	if !ok {
		c.mu.Unlock()
		return
	}

	st.cancelled = true
	if st.timer != nil {
		st.timer.Stop()
	}

	var providerID string
	if st.accepted != nil {
		providerID = st.accepted.ProviderID
	}
	delete(c.subscribed, key)
	c.mu.Unlock()

	if providerID != "" {
		c.publish(ctx, Release{Key: key, ProviderID: providerID, RequesterID: c.selfID})
	}
}

// ProviderGone marks an accepted provider as gone, notifying OnProviderGone
// for every key this actor had accepted from it so it can re-Request.
func (c *Coordinator) ProviderGone(providerID string) {
	c.mu.Lock()
	var affected []Key
	for key, st := range c.subscribed {
		if st.accepted != nil && st.accepted.ProviderID == providerID {
			affected = append(affected, key)
			delete(c.subscribed, key)
		}
	}
	c.mu.Unlock()

	for _, key := range affected {
		if c.OnProviderGone != nil {
			c.OnProviderGone(key)
		}
	}
}

// HandleControlEvent dispatches a BusEvent received on ControlChannel. The
// owning actor's HandleMessage should forward events on ControlChannel
// here.
func (c *Coordinator) HandleControlEvent(ctx context.Context, event bus.BusEvent) {
	switch msg := event.Payload.(type) {
	case Request:
		c.onRequest(ctx, msg)
	case Response:
		c.onResponse(ctx, msg)
	case Accept:
		c.onAccept(msg)
	case Release:
		c.onRelease(ctx, msg)
	}
}

func (c *Coordinator) onRequest(ctx context.Context, req Request) {
	c.mu.Lock()
	_, advertisedAll := c.advertised[req.Key.Channel]
	_, provides := c.provided[req.Key]
	upstream, isTransitive := c.transitives[req.Key]
	c.mu.Unlock()

	if advertisedAll {
		return
	}

	if !provides {
		return
	}

	if isTransitive {
		c.mu.Lock()
		st, subscribedUp := c.subscribed[upstream]
		satisfied := subscribedUp && st.accepted != nil
		if !satisfied {
			c.deferred[upstream] = append(c.deferred[upstream], req)
		}
		c.mu.Unlock()

		if satisfied {
			c.publish(ctx, Response{
				Key:         req.Key,
				ProviderID:  c.selfID,
				RequesterID: req.RequesterID,
			})
			return
		}

		c.Request(ctx, upstream)
		return
	}

	c.publish(ctx, Response{Key: req.Key, ProviderID: c.selfID, RequesterID: req.RequesterID})
}

// onResponse handles a Provider's offer. Responses addressed to other
// requesters are ignored. With the default tie-break the first offer is
// accepted on the spot; with a custom TieBreak offers accumulate until
// the collection window closes.
func (c *Coordinator) onResponse(ctx context.Context, resp Response) {
	if resp.RequesterID != c.selfID {
		return
	}

	c.mu.Lock()
	st, ok := c.subscribed[resp.Key]
	if !ok || st.cancelled || st.accepted != nil {
		c.mu.Unlock()
		return
	}

	if c.tie == nil {
		st.accepted = &resp
		if st.timer != nil {
			st.timer.Stop()
		}
		c.mu.Unlock()

		c.sendAccept(ctx, resp.Key, resp.ProviderID)
		return
	}

	st.responses = append(st.responses, resp)
	c.mu.Unlock()
}

func (c *Coordinator) onAccept(acc Accept) {
	if acc.ProviderID != c.selfID {
		return
	}

	c.mu.Lock()
	state, ok := c.provided[acc.Key]
	if !ok {
		c.mu.Unlock()
		return
	}

	_, already := state.accepted[acc.RequesterID]
	state.accepted[acc.RequesterID] = struct{}{}
	shouldStart := !state.serving && len(state.accepted) > 0
	if shouldStart {
		state.serving = true
	}
	c.mu.Unlock()

	if already {
		return
	}

	if shouldStart && c.OnServeStart != nil {
		c.OnServeStart(acc.Key)
	}
}

func (c *Coordinator) onRelease(ctx context.Context, rel Release) {
	if rel.ProviderID != c.selfID {
		return
	}

	c.mu.Lock()
	state, ok := c.provided[rel.Key]
	if !ok {
		c.mu.Unlock()
		return
	}

	delete(state.accepted, rel.RequesterID)
	shouldStop := state.serving && len(state.accepted) == 0
	if shouldStop {
		state.serving = false
	}
	upstream, isTransitive := c.transitives[rel.Key]
	c.mu.Unlock()

	if !shouldStop {
		return
	}

	if c.OnServeStop != nil {
		c.OnServeStop(rel.Key)
	}

	// A TransitiveProvider with no remaining downstream subscribers no
	// longer needs its upstream either.
	if isTransitive {
		c.Release(ctx, upstream)
	}
}

func (c *Coordinator) publish(ctx context.Context, payload any) {
	c.bus.Publish(ctx, ControlChannel, payload, c.selfID)
}
