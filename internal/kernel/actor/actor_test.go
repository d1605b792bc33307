package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// captureRef is a DLO stand-in that records everything told to it.
type captureRef struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *captureRef) ID() string { return "capture" }

func (c *captureRef) Tell(_ context.Context, msg Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *captureRef) Ask(ctx context.Context, msg Message) Future[any] {
	c.Tell(ctx, msg)

	promise := NewPromise[any]()
	promise.Complete(fn.Ok[any](nil))
	return promise.Future()
}

func (c *captureRef) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.(note).text
	}
	return out
}

// TestActor_TellProcessesInOrder verifies the single-threaded FIFO
// dispatch guarantee from one sender's point of view.
func TestActor_TellProcessesInOrder(t *testing.T) {
	ctx := context.Background()

	var got []string
	a := NewActor(ActorConfig[Message, string]{
		ID: "order",
		Behavior: NewFunctionBehavior(func(_ context.Context, msg Message) fn.Result[string] {
			got = append(got, msg.(note).text)
			return fn.Ok("")
		}),
	})
	a.Start()
	defer a.Stop()

	for i := 0; i < 50; i++ {
		a.Ref().Tell(ctx, note{text: fmt.Sprintf("m%d", i)})
	}

	// Ask acts as a barrier: it is processed after every Tell above.
	_, err := a.Ref().Ask(ctx, note{text: "barrier"}).Await(ctx).Unpack()
	require.NoError(t, err)

	require.Len(t, got, 51)
	for i := 0; i < 50; i++ {
		require.Equal(t, fmt.Sprintf("m%d", i), got[i])
	}
}

// TestActor_NeverConcurrent hammers one actor from many goroutines and
// checks that no two Receive invocations ever overlap.
func TestActor_NeverConcurrent(t *testing.T) {
	ctx := context.Background()

	var inFlight atomic.Int32
	var overlapped atomic.Bool

	a := NewActor(ActorConfig[Message, string]{
		ID: "exclusive",
		Behavior: NewFunctionBehavior(func(_ context.Context, _ Message) fn.Result[string] {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(time.Microsecond)
			inFlight.Add(-1)
			return fn.Ok("")
		}),
	})
	a.Start()
	defer a.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				a.Ref().Tell(ctx, note{text: "hit"})
			}
		}()
	}
	wg.Wait()

	_, err := a.Ref().Ask(ctx, note{text: "barrier"}).Await(ctx).Unpack()
	require.NoError(t, err)
	require.False(t, overlapped.Load(), "two messages were in flight at once")
}

// TestActor_AskReturnsBehaviorResult round-trips a value and an error
// through Ask.
func TestActor_AskReturnsBehaviorResult(t *testing.T) {
	ctx := context.Background()

	a := NewActor(ActorConfig[Message, string]{
		ID: "echo",
		Behavior: NewFunctionBehavior(func(_ context.Context, msg Message) fn.Result[string] {
			n := msg.(note)
			if n.text == "boom" {
				return fn.Err[string](errors.New("boom"))
			}
			return fn.Ok("echo:" + n.text)
		}),
	})
	a.Start()
	defer a.Stop()

	val, err := a.Ref().Ask(ctx, note{text: "hi"}).Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, "echo:hi", val)

	_, err = a.Ref().Ask(ctx, note{text: "boom"}).Await(ctx).Unpack()
	require.ErrorContains(t, err, "boom")
}

// TestActor_AskHonorsCallerDeadline verifies the joined context cancels a
// long-running Receive when the asker gives up.
func TestActor_AskHonorsCallerDeadline(t *testing.T) {
	a := NewActor(ActorConfig[Message, string]{
		ID: "slow",
		Behavior: NewFunctionBehavior(func(ctx context.Context, _ Message) fn.Result[string] {
			<-ctx.Done()
			return fn.Err[string](ctx.Err())
		}),
	})
	a.Start()
	defer a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.Ref().Ask(ctx, note{text: "wait"}).Await(context.Background()).Unpack()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestActor_StopDrainsBacklogToDLO verifies that messages still queued at
// shutdown reach the dead-letter sink and pending asks fail with
// ErrActorTerminated.
func TestActor_StopDrainsBacklogToDLO(t *testing.T) {
	ctx := context.Background()
	dlo := &captureRef{}

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	a := NewActor(ActorConfig[Message, string]{
		ID:  "draining",
		DLO: dlo,
		Behavior: NewFunctionBehavior(func(_ context.Context, _ Message) fn.Result[string] {
			entered <- struct{}{}
			<-release
			return fn.Ok("")
		}),
	})
	a.Start()

	// First message occupies the dispatch loop; the rest pile up.
	a.Ref().Tell(ctx, note{text: "in-flight"})
	<-entered
	a.Ref().Tell(ctx, note{text: "queued-1"})
	a.Ref().Tell(ctx, note{text: "queued-2"})
	pending := a.Ref().Ask(ctx, note{text: "queued-ask"})

	a.Stop()
	close(release)

	_, err := pending.Await(ctx).Unpack()
	require.ErrorIs(t, err, ErrActorTerminated)

	require.Eventually(t, func() bool {
		return len(dlo.texts()) == 3
	}, time.Second, 5*time.Millisecond)
	require.ElementsMatch(t, []string{"queued-1", "queued-2", "queued-ask"}, dlo.texts())

	// A tell after termination goes straight to the DLO as well.
	a.Ref().Tell(ctx, note{text: "posthumous"})
	require.Eventually(t, func() bool {
		return len(dlo.texts()) == 4
	}, time.Second, 5*time.Millisecond)
}

// TestActor_BoundedMailboxRoutesVictimsToDLO verifies the drop discipline
// feeds the DLO rather than silently losing messages.
func TestActor_BoundedMailboxRoutesVictimsToDLO(t *testing.T) {
	ctx := context.Background()
	dlo := &captureRef{}

	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	a := NewActor(ActorConfig[Message, string]{
		ID:      "bounded",
		DLO:     dlo,
		Mailbox: MailboxPolicy{Bound: 2, Discipline: DropOldest},
		Behavior: NewFunctionBehavior(func(_ context.Context, _ Message) fn.Result[string] {
			entered <- struct{}{}
			<-release
			return fn.Ok("")
		}),
	})
	a.Start()
	defer a.Stop()

	// Occupy the dispatch loop, then flood: two queued at the bound,
	// two more forcing eviction.
	a.Ref().Tell(ctx, note{text: "m0"})
	<-entered

	for i := 1; i < 5; i++ {
		a.Ref().Tell(ctx, note{text: fmt.Sprintf("m%d", i)})
	}

	require.Eventually(t, func() bool {
		return len(dlo.texts()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"m1", "m2"}, dlo.texts())

	close(release)
}

// TestMapInputRef_TranslatesAndForwards covers the bus-to-envelope bridge.
func TestMapInputRef_TranslatesAndForwards(t *testing.T) {
	ctx := context.Background()

	var got []string
	a := NewActor(ActorConfig[Message, string]{
		ID: "target",
		Behavior: NewFunctionBehavior(func(_ context.Context, msg Message) fn.Result[string] {
			got = append(got, msg.(note).text)
			return fn.Ok("")
		}),
	})
	a.Start()
	defer a.Stop()

	mapped := NewMapInputRef[Message, Message](a.TellRef(), func(in Message) Message {
		return note{text: "wrapped:" + in.(note).text}
	})

	require.Equal(t, "map-input->target", mapped.ID())

	mapped.Tell(ctx, note{text: "x"})

	_, err := a.Ref().Ask(ctx, note{text: "barrier"}).Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, []string{"wrapped:x", "barrier"}, got)
}

// TestPromise_CompleteOnce verifies only the first completion wins.
func TestPromise_CompleteOnce(t *testing.T) {
	p := NewPromise[int]()

	require.True(t, p.Complete(fn.Ok(1)))
	require.False(t, p.Complete(fn.Ok(2)))

	val, err := p.Future().Await(context.Background()).Unpack()
	require.NoError(t, err)
	require.Equal(t, 1, val)
}

// TestPromise_AwaitHonorsContext verifies a waiter can give up.
func TestPromise_AwaitHonorsContext(t *testing.T) {
	p := NewPromise[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Future().Await(ctx).Unpack()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestPromise_ThenApply verifies transformation chains complete with the
// mapped value.
func TestPromise_ThenApply(t *testing.T) {
	ctx := context.Background()
	p := NewPromise[int]()

	doubled := p.Future().ThenApply(ctx, func(v int) int { return v * 2 })
	p.Complete(fn.Ok(21))

	val, err := doubled.Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, 42, val)
}
