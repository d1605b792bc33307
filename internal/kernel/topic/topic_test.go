package topic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wxflow/raceway/internal/kernel/bus"
)

// party wires one Coordinator to the shared bus through a loopback
// subscriber that immediately feeds control events back into the
// coordinator, standing in for an actor's mailbox dispatch.
type party struct {
	id   string
	c    *Coordinator
	mu   sync.Mutex
	serv map[Key]bool
}

// loopback delivers control-channel events straight into the coordinator.
type loopback struct {
	id string
	p  *party
}

func (l *loopback) ID() string { return l.id }

func (l *loopback) Tell(ctx context.Context, event bus.BusEvent) {
	l.p.c.HandleControlEvent(ctx, event)
}

func newParty(t *testing.T, b *bus.Bus, id string) *party {
	t.Helper()

	p := &party{id: id, serv: make(map[Key]bool)}

	c, err := NewCoordinator(b, &loopback{id: id, p: p}, id, nil)
	require.NoError(t, err)

	c.OnServeStart = func(k Key) {
		p.mu.Lock()
		p.serv[k] = true
		p.mu.Unlock()
	}
	c.OnServeStop = func(k Key) {
		p.mu.Lock()
		p.serv[k] = false
		p.mu.Unlock()
	}

	p.c = c
	t.Cleanup(c.Close)

	return p
}

func (p *party) serving(k Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.serv[k]
}

var ksfo = Key{Channel: "/airport/tracks", TopicKey: "KSFO"}

// TestTopic_RequestAcceptRelease: no production before Accept,
// production after, stop after Release.
func TestTopic_RequestAcceptRelease(t *testing.T) {
	ctx := context.Background()
	b := bus.New()

	provider := newParty(t, b, "provider-x")
	subscriber := newParty(t, b, "subscriber-y")

	provider.c.Advertise(ksfo)
	require.False(t, provider.serving(ksfo), "must not produce before Accept")

	var accepted []string
	subscriber.c.OnAccepted = func(_ Key, providerID string) {
		accepted = append(accepted, providerID)
	}

	subscriber.c.Request(ctx, ksfo)

	// Default tie-break: first Response is accepted immediately; with a
	// synchronous loopback bus everything has already happened.
	require.True(t, provider.serving(ksfo), "must produce after Accept")
	require.Equal(t, []string{"provider-x"}, accepted)

	subscriber.c.Release(ctx, ksfo)
	require.False(t, provider.serving(ksfo), "must stop after Release")
}

// TestTopic_UnservedKeyNotOffered: a provider only answers for keys it
// advertised.
func TestTopic_UnservedKeyNotOffered(t *testing.T) {
	ctx := context.Background()
	b := bus.New()

	provider := newParty(t, b, "provider-x")
	subscriber := newParty(t, b, "subscriber-y")

	provider.c.Advertise(ksfo)

	klax := Key{Channel: "/airport/tracks", TopicKey: "KLAX"}
	subscriber.c.RetryInterval = 10 * time.Millisecond
	subscriber.c.Request(ctx, klax)

	require.False(t, provider.serving(klax))
	require.False(t, provider.serving(ksfo))
}

// TestTopic_RefCountAcrossSubscribers: production continues until the
// last accepted subscriber releases.
func TestTopic_RefCountAcrossSubscribers(t *testing.T) {
	ctx := context.Background()
	b := bus.New()

	provider := newParty(t, b, "provider-x")
	s1 := newParty(t, b, "sub-1")
	s2 := newParty(t, b, "sub-2")

	provider.c.Advertise(ksfo)

	s1.c.Request(ctx, ksfo)
	s2.c.Request(ctx, ksfo)
	require.True(t, provider.serving(ksfo))

	s1.c.Release(ctx, ksfo)
	require.True(t, provider.serving(ksfo), "still one accepted subscriber")

	s2.c.Release(ctx, ksfo)
	require.False(t, provider.serving(ksfo), "count fell to zero")
}

// TestTopic_AllTopicsBypassesProtocol: a provider advertised with <all>
// serves unconditionally and never answers Requests.
func TestTopic_AllTopicsBypassesProtocol(t *testing.T) {
	b := bus.New()
	provider := newParty(t, b, "firehose")

	all := Key{Channel: "/airport/tracks", TopicKey: AllTopics}
	provider.c.Advertise(all)

	require.True(t, provider.serving(all), "serves immediately, no Accept needed")
}

// TestTopic_TransitiveProvider: an intermediate defers its Response until
// its own upstream Request is satisfied, and the chain tears down on
// Release.
func TestTopic_TransitiveProvider(t *testing.T) {
	ctx := context.Background()
	b := bus.New()

	upstreamKey := Key{Channel: "/raw/tracks", TopicKey: "KSFO"}

	source := newParty(t, b, "source")
	middle := newParty(t, b, "middle")
	consumer := newParty(t, b, "consumer")

	source.c.Advertise(upstreamKey)
	middle.c.AdvertiseTransitive(ksfo, upstreamKey)

	consumer.c.Request(ctx, ksfo)

	// The chain settled synchronously: middle requested upstream, source
	// accepted, middle responded downstream, consumer accepted middle.
	require.True(t, source.serving(upstreamKey))
	require.True(t, middle.serving(ksfo))

	// Releasing downstream stops the middle, which propagates the
	// Release up the chain and stops the source too.
	consumer.c.Release(ctx, ksfo)
	require.False(t, middle.serving(ksfo))
	require.False(t, source.serving(upstreamKey))
}

// TestTopic_RetryAfterNoResponders: a Request with no responders is
// re-issued with backoff until a provider appears.
func TestTopic_RetryAfterNoResponders(t *testing.T) {
	ctx := context.Background()
	b := bus.New()

	subscriber := newParty(t, b, "patient")
	subscriber.c.RetryInterval = 10 * time.Millisecond

	subscriber.c.Request(ctx, ksfo)

	// No provider yet; let at least one retry fire.
	time.Sleep(30 * time.Millisecond)

	provider := newParty(t, b, "late-provider")
	provider.c.Advertise(ksfo)

	require.Eventually(t, func() bool {
		return provider.serving(ksfo)
	}, time.Second, 5*time.Millisecond)
}

// TestTopic_ProviderGoneTriggersReRequest: a vanished provider surfaces
// through OnProviderGone so the subscriber can try again.
func TestTopic_ProviderGoneTriggersReRequest(t *testing.T) {
	ctx := context.Background()
	b := bus.New()

	provider := newParty(t, b, "flaky")
	subscriber := newParty(t, b, "wary")

	provider.c.Advertise(ksfo)

	var gone []Key
	subscriber.c.OnProviderGone = func(k Key) { gone = append(gone, k) }

	subscriber.c.Request(ctx, ksfo)
	require.True(t, provider.serving(ksfo))

	subscriber.c.ProviderGone("flaky")
	require.Equal(t, []Key{ksfo}, gone)

	// The subscription was cleared; a fresh Request succeeds.
	subscriber.c.Request(ctx, ksfo)
	require.True(t, provider.serving(ksfo))
}

// TestTopic_DuplicateAcceptIdempotent: accepting the same subscriber
// twice neither double-counts nor restarts production.
func TestTopic_DuplicateAcceptIdempotent(t *testing.T) {
	ctx := context.Background()
	b := bus.New()

	provider := newParty(t, b, "provider-x")
	provider.c.Advertise(ksfo)

	// Drive Accept/Release frames directly at the provider.
	b.Publish(ctx, ControlChannel, Accept{Key: ksfo, ProviderID: "provider-x", RequesterID: "s"}, "s")
	b.Publish(ctx, ControlChannel, Accept{Key: ksfo, ProviderID: "provider-x", RequesterID: "s"}, "s")
	require.True(t, provider.serving(ksfo))

	b.Publish(ctx, ControlChannel, Release{Key: ksfo, ProviderID: "provider-x", RequesterID: "s"}, "s")
	require.False(t, provider.serving(ksfo), "one release must zero a single logical accept")
}
