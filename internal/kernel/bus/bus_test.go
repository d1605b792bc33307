package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recorder is a bare Subscriber that appends every delivery, standing in
// for an actor mailbox.
type recorder struct {
	id string

	mu     sync.Mutex
	events []BusEvent
}

func newRecorder(id string) *recorder { return &recorder{id: id} }

func (r *recorder) ID() string { return r.id }

func (r *recorder) Tell(_ context.Context, event BusEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) payloads() []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]any, len(r.events))
	for i, e := range r.events {
		out[i] = e.Payload
	}
	return out
}

// TestBus_ExactMatchDelivery covers the basic publish/subscribe path.
func TestBus_ExactMatchDelivery(t *testing.T) {
	ctx := context.Background()
	b := New()
	sub := newRecorder("probe")

	_, err := b.Subscribe(sub, "/p")
	require.NoError(t, err)

	b.Publish(ctx, "/p", 42, "ping")
	b.Publish(ctx, "/q", 99, "ping")

	require.Equal(t, []any{42}, sub.payloads())
	require.Equal(t, Channel("/p"), sub.events[0].Channel)
	require.Equal(t, "ping", sub.events[0].Sender)
}

// TestBus_PrefixWildcard verifies "/a/*" spans every descendant segment.
func TestBus_PrefixWildcard(t *testing.T) {
	ctx := context.Background()
	b := New()
	sub := newRecorder("wild")

	_, err := b.Subscribe(sub, "/a/*")
	require.NoError(t, err)

	b.Publish(ctx, "/a/b", "one", "s")
	b.Publish(ctx, "/a/b/c", "two", "s")
	b.Publish(ctx, "/ax", "miss", "s")
	b.Publish(ctx, "/b/a", "miss", "s")

	require.Equal(t, []any{"one", "two"}, sub.payloads())
}

// TestBus_SubscribeIdempotent verifies repeating a subscription does not
// double deliveries.
func TestBus_SubscribeIdempotent(t *testing.T) {
	ctx := context.Background()
	b := New()
	sub := newRecorder("dup")

	h1, err := b.Subscribe(sub, "/p")
	require.NoError(t, err)
	h2, err := b.Subscribe(sub, "/p")
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	b.Publish(ctx, "/p", "once", "s")
	require.Equal(t, []any{"once"}, sub.payloads())
}

// TestBus_UnsubscribeStopsDelivery also covers the repeated-unsubscribe
// no-op.
func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b := New()
	sub := newRecorder("gone")

	_, err := b.Subscribe(sub, "/p")
	require.NoError(t, err)

	b.Publish(ctx, "/p", 1, "s")
	b.Unsubscribe(sub, "/p")
	b.Publish(ctx, "/p", 2, "s")
	b.Unsubscribe(sub, "/p")
	b.Publish(ctx, "/p", 3, "s")

	require.Equal(t, []any{1}, sub.payloads())
}

// TestBus_UnsubscribeAll removes every pattern an actor registered.
func TestBus_UnsubscribeAll(t *testing.T) {
	ctx := context.Background()
	b := New()
	sub := newRecorder("all")
	other := newRecorder("other")

	for _, pattern := range []string{"/p", "/q/*"} {
		_, err := b.Subscribe(sub, pattern)
		require.NoError(t, err)
	}
	_, err := b.Subscribe(other, "/p")
	require.NoError(t, err)

	b.UnsubscribeAll(sub)

	b.Publish(ctx, "/p", "x", "s")
	b.Publish(ctx, "/q/deep", "y", "s")

	require.Empty(t, sub.payloads())
	require.Equal(t, []any{"x"}, other.payloads())
}

// TestBus_NoRetroactiveDelivery: a subscription formed after a publish
// sees nothing from before it.
func TestBus_NoRetroactiveDelivery(t *testing.T) {
	ctx := context.Background()
	b := New()
	early := newRecorder("early")
	late := newRecorder("late")

	_, err := b.Subscribe(early, "/p")
	require.NoError(t, err)

	b.Publish(ctx, "/p", "first", "s")

	_, err = b.Subscribe(late, "/p")
	require.NoError(t, err)

	b.Publish(ctx, "/p", "second", "s")

	require.Equal(t, []any{"first", "second"}, early.payloads())
	require.Equal(t, []any{"second"}, late.payloads())
}

// TestBus_PerPublisherOrderPreserved verifies deliveries from one
// publisher arrive in publication order even under concurrent publishers.
func TestBus_PerPublisherOrderPreserved(t *testing.T) {
	ctx := context.Background()
	b := New()
	sub := newRecorder("ordered")

	_, err := b.Subscribe(sub, "/p")
	require.NoError(t, err)

	const perSender = 50
	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				b.Publish(ctx, "/p", [2]int{sender, i}, fmt.Sprintf("s%d", sender))
			}
		}(s)
	}
	wg.Wait()

	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	for _, p := range sub.payloads() {
		pair := p.([2]int)
		require.Greater(t, pair[1], last[pair[0]],
			"publisher %d delivered out of order", pair[0])
		last[pair[0]] = pair[1]
	}
	require.Len(t, sub.events, 4*perSender)
}

// TestBus_LocalChannelClassification covers the /local/ prefix helper the
// remote connectors rely on.
func TestBus_LocalChannelClassification(t *testing.T) {
	require.True(t, Channel("/local/secrets").IsLocal())
	require.False(t, Channel("/track").IsLocal())
	require.False(t, Channel("/locale/x").IsLocal())
}

// TestBus_HasSubscribers covers wildcard and exact subscriber lookup.
func TestBus_HasSubscribers(t *testing.T) {
	b := New()
	require.False(t, b.HasSubscribers("/p"))

	sub := newRecorder("s")
	_, err := b.Subscribe(sub, "/p/*")
	require.NoError(t, err)

	require.True(t, b.HasSubscribers("/p/deep"))
	require.False(t, b.HasSubscribers("/q"))
}

// TestBus_SubscribeLinearizable is the property check for the
// subscription/publish linearizability contract: however subscribes and
// publishes interleave, a subscriber's deliveries are always a contiguous
// suffix of the publish sequence.
func TestBus_SubscribeLinearizable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New()
		sub := newRecorder("suffix")

		n := rapid.IntRange(1, 30).Draw(t, "publishes")
		joinAt := rapid.IntRange(0, n).Draw(t, "joinAt")

		ctx := context.Background()
		for i := 0; i < n; i++ {
			if i == joinAt {
				if _, err := b.Subscribe(sub, "/p"); err != nil {
					t.Fatal(err)
				}
			}
			b.Publish(ctx, "/p", i, "s")
		}

		want := n - joinAt
		got := sub.payloads()
		if len(got) != want {
			t.Fatalf("delivered %d, want %d", len(got), want)
		}
		for i, p := range got {
			if p.(int) != joinAt+i {
				t.Fatalf("delivery %d was %v, want %d", i, p, joinAt+i)
			}
		}
	})
}
