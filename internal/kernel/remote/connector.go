// Package remote implements the kernel's cross-process extension: a
// BusConnector bridges two Universes so that an actor never has to know
// whether its peer is local or remote. A Connector combines the inbound
// and outbound BusConnector roles over one physical connection: the
// outbound side subscribes to local publications the peer has asked for
// and ships them out; the inbound side decodes frames arriving from the
// peer and republishes them on the local Bus.
package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wxflow/raceway/internal/kernel/bus"
)

const heartbeatInterval = 10 * time.Second

// Dialer establishes a fresh Transport to the peer Universe, called once
// up front and again on every reconnect attempt.
type Dialer func(ctx context.Context) (Transport, error)

// Config constructs a Connector.
type Config struct {
	// LocalUniverse names this process's Universe; it is stamped as the
	// Universe field of every outbound Frame.
	LocalUniverse string

	// PeerUniverse names the remote Universe this Connector bridges to.
	PeerUniverse string

	Bus      *bus.Bus
	Registry *Registry

	// Dial is used for the outbound (client) side of the pair: called
	// once to establish the initial connection and again, with
	// exponential backoff, on every disconnect. Leave nil for a
	// passively-accepted connection (Transport is already established).
	Dial Dialer

	// Transport is used directly when Dial is nil (the listening side of
	// a pair, after AcceptWebSocket has already completed the upgrade).
	Transport Transport

	// OnProviderGone is invoked whenever the peer is observed to be gone
	// (transport failure, or an explicit ProviderGone control frame),
	// letting the caller surface it to the channel-topic protocol's
	// Subscribers so they can re-Request.
	OnProviderGone func()
}

// Connector bridges one local Universe to one peer Universe. The zero
// value is not usable; use New.
type Connector struct {
	id            string
	localUniverse string
	peerUniverse  string
	localBus      *bus.Bus
	registry      *Registry
	dial          Dialer
	onGone        func()

	mu        sync.RWMutex
	transport Transport
	connected bool

	seq atomic.Uint64

	forwardMu  sync.Mutex
	forwarding map[string]struct{} // patterns this side subscribes to locally and ships out
	wanting    map[string]struct{} // patterns this side has asked the peer to ship to us

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Connector. Start must be called to begin forwarding.
func New(cfg Config) *Connector {
	return &Connector{
		id:            uuid.NewString(),
		localUniverse: cfg.LocalUniverse,
		peerUniverse:  cfg.PeerUniverse,
		localBus:      cfg.Bus,
		registry:      cfg.Registry,
		dial:          cfg.Dial,
		onGone:        cfg.OnProviderGone,
		transport:     cfg.Transport,
		connected:     cfg.Transport != nil,
		forwarding:    make(map[string]struct{}),
		wanting:       make(map[string]struct{}),
	}
}

// ID implements bus.Subscriber so a Connector can itself be subscribed to
// local channels it forwards outbound.
func (c *Connector) ID() string { return "busconnector:" + c.peerUniverse + ":" + c.id }

// PeerUniverse returns the name of the Universe this Connector bridges to.
func (c *Connector) PeerUniverse() string { return c.peerUniverse }

// Start begins the inbound read loop (and, if Dial was configured, the
// reconnect loop) and a periodic heartbeat. It returns once the initial
// connection (if any is required) has been established.
func (c *Connector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if c.dial != nil && !c.hasTransport() {
		t, err := c.dial(c.ctx)
		if err != nil {
			return fmt.Errorf("%w: initial dial to %s: %v", ErrTransportClosed, c.peerUniverse, err)
		}
		c.setTransport(t)
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.heartbeatLoop()

	return nil
}

// Close tears down the Connector: the heartbeat and read loops stop, the
// transport is closed, and every local subscription this side registered
// for forwarding is removed.
func (c *Connector) Close() error {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()

	var err error
	if t != nil {
		err = t.Close()
	}

	c.localBus.UnsubscribeAll(c)
	c.wg.Wait()

	return err
}

func (c *Connector) hasTransport() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport != nil
}

func (c *Connector) setTransport(t Transport) {
	c.mu.Lock()
	c.transport = t
	c.connected = true
	c.mu.Unlock()
}

// Forward registers pattern as a local subscription whose matching
// publications are shipped to the peer. A /local/-prefixed pattern is
// refused: such channels must never cross a BusConnector.
func (c *Connector) Forward(pattern string) error {
	if strings.HasPrefix(pattern, "/local/") {
		log.WarnS(c.background(), "refusing to forward a /local/ channel across a connector",
			ErrUnserializablePayload, "peer", c.peerUniverse, "pattern", pattern)
		return nil
	}

	c.forwardMu.Lock()
	_, already := c.forwarding[pattern]
	c.forwarding[pattern] = struct{}{}
	c.forwardMu.Unlock()

	if already {
		return nil
	}

	_, err := c.localBus.Subscribe(c, pattern)
	return err
}

// Unforward stops shipping publications matching pattern to the peer.
func (c *Connector) Unforward(pattern string) {
	c.forwardMu.Lock()
	delete(c.forwarding, pattern)
	c.forwardMu.Unlock()

	c.localBus.Unsubscribe(c, pattern)
}

// Want asks the peer to start forwarding publications matching pattern to
// this side, tracking it so a reconnect can re-announce it.
func (c *Connector) Want(ctx context.Context, pattern string) error {
	c.forwardMu.Lock()
	c.wanting[pattern] = struct{}{}
	c.forwardMu.Unlock()

	return c.sendControl(ctx, TagSubscribe, pattern)
}

// Unwant withdraws a prior Want.
func (c *Connector) Unwant(ctx context.Context, pattern string) error {
	c.forwardMu.Lock()
	delete(c.wanting, pattern)
	c.forwardMu.Unlock()

	return c.sendControl(ctx, TagUnsubscribe, pattern)
}

// Tell implements bus.Subscriber: a local publication matching a pattern
// this side forwards arrives here and is shipped across the wire. A
// payload whose concrete type has no registered codec fails with
// ErrUnserializablePayload, logged on the publisher's side, and is not
// delivered — the publish is dropped, not the whole connection.
func (c *Connector) Tell(ctx context.Context, event bus.BusEvent) {
	if event.Channel.IsLocal() {
		return
	}

	tag, ok := c.registry.TagFor(event.Payload)
	if !ok {
		log.ErrorS(ctx, "remote publication has no registered codec, dropping", ErrUnserializablePayload,
			"peer", c.peerUniverse, "channel", string(event.Channel))
		return
	}

	data, err := c.registry.Encode(tag, event.Payload)
	if err != nil {
		log.ErrorS(ctx, "failed to encode remote publication, dropping", err,
			"peer", c.peerUniverse, "channel", string(event.Channel))
		return
	}

	frame := Frame{
		Universe: c.localUniverse,
		Channel:  string(event.Channel),
		TypeTag:  tag,
		Seq:      c.seq.Add(1),
		Payload:  data,
	}

	if err := c.sendFrame(ctx, frame); err != nil {
		log.WarnS(ctx, "failed to ship remote publication", err,
			"peer", c.peerUniverse, "channel", string(event.Channel))
	}
}

func (c *Connector) sendControl(ctx context.Context, tag, channel string) error {
	return c.sendFrame(ctx, Frame{
		Universe: c.localUniverse,
		Channel:  channel,
		TypeTag:  tag,
		Seq:      c.seq.Add(1),
	})
}

func (c *Connector) sendFrame(ctx context.Context, frame Frame) error {
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()

	if t == nil {
		return ErrTransportClosed
	}

	return t.Send(ctx, EncodeFrame(frame))
}

func (c *Connector) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendControl(c.ctx, TagHeartbeat, ""); err != nil {
				log.DebugS(c.ctx, "heartbeat send failed", err, "peer", c.peerUniverse)
			}
		}
	}
}

func (c *Connector) readLoop() {
	defer c.wg.Done()

	bo := &backoff{}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		t := c.transport
		c.mu.RUnlock()

		if t == nil {
			if !c.reconnect(bo) {
				return
			}
			continue
		}

		raw, err := t.Recv(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}

			log.WarnS(c.ctx, "remote connection lost", err, "peer", c.peerUniverse)
			c.markGone(t)

			if !c.reconnect(bo) {
				return
			}
			continue
		}

		bo.reset()

		frame, err := DecodeFrame(raw)
		if err != nil {
			log.ErrorS(c.ctx, "dropping malformed remote frame", err, "peer", c.peerUniverse)
			continue
		}

		c.handleFrame(c.ctx, frame)
	}
}

// reconnect retries c.dial with exponential backoff until it succeeds or
// the Connector is closed. It returns false if the Connector was closed
// while waiting, true once a new Transport has been installed.
func (c *Connector) reconnect(bo *backoff) bool {
	if c.dial == nil {
		return false
	}

	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(bo.next()):
		}

		t, err := c.dial(c.ctx)
		if err != nil {
			log.WarnS(c.ctx, "reconnect attempt failed", err, "peer", c.peerUniverse)
			continue
		}

		c.setTransport(t)
		c.resubscribe()

		return true
	}
}

// resubscribe re-announces every pattern this side previously Wanted, so
// a reconnected peer rebuilds the same forwarding state the dropped
// connection had.
func (c *Connector) resubscribe() {
	c.forwardMu.Lock()
	patterns := make([]string, 0, len(c.wanting))
	for p := range c.wanting {
		patterns = append(patterns, p)
	}
	c.forwardMu.Unlock()

	for _, p := range patterns {
		if err := c.sendControl(c.ctx, TagSubscribe, p); err != nil {
			log.ErrorS(c.ctx, "failed to restore remote subscription", err,
				"peer", c.peerUniverse, "pattern", p)
		}
	}
}

func (c *Connector) markGone(dead Transport) {
	c.mu.Lock()
	if c.transport == dead {
		c.transport = nil
		c.connected = false
	}
	c.mu.Unlock()

	_ = dead.Close()

	if c.onGone != nil {
		c.onGone()
	}
}

func (c *Connector) handleFrame(ctx context.Context, frame Frame) {
	switch frame.TypeTag {
	case TagSubscribe:
		if err := c.Forward(frame.Channel); err != nil {
			log.ErrorS(ctx, "failed to honor peer subscribe request", err,
				"peer", c.peerUniverse, "pattern", frame.Channel)
		}
		return

	case TagUnsubscribe:
		c.Unforward(frame.Channel)
		return

	case TagHeartbeat:
		return

	case TagProviderGone:
		if c.onGone != nil {
			c.onGone()
		}
		return
	}

	payload, err := c.registry.Decode(frame.TypeTag, frame.Payload)
	if err != nil {
		log.ErrorS(ctx, "dropping remote frame with unknown payload type", err,
			"peer", c.peerUniverse, "channel", frame.Channel, "type_tag", frame.TypeTag)
		return
	}

	// The wire protocol carries the source Universe name, not the
	// original publishing actor's name, so the republished BusEvent's
	// Sender identifies the remote Universe rather than the actor
	// within it.
	c.localBus.Publish(ctx, bus.Channel(frame.Channel), payload, frame.Universe)
}

func (c *Connector) background() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

var _ bus.Subscriber = (*Connector)(nil)
