package master

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wxflow/raceway/internal/config"
	"github.com/wxflow/raceway/internal/kernel/bus"
	"github.com/wxflow/raceway/internal/kernel/clock"
	"github.com/wxflow/raceway/internal/kernel/raceactor"
)

// phaseLog collects (actor, phase) pairs across every test behavior, so
// ordering assertions can span actors.
type phaseLog struct {
	mu      sync.Mutex
	entries []string
}

func (p *phaseLog) add(actor, phase string) {
	p.mu.Lock()
	p.entries = append(p.entries, actor+":"+phase)
	p.mu.Unlock()
}

func (p *phaseLog) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.entries...)
}

// loggingBehavior records its lifecycle hooks into a shared phaseLog.
type loggingBehavior struct {
	raceactor.Base

	name    string
	log     *phaseLog
	initErr error

	termDelay time.Duration
}

func (l *loggingBehavior) OnInitialize(_ context.Context, _ *raceactor.Context) error {
	l.log.add(l.name, "init")
	return l.initErr
}

func (l *loggingBehavior) OnStart(context.Context) error {
	l.log.add(l.name, "start")
	return nil
}

func (l *loggingBehavior) OnTerminate(context.Context) error {
	if l.termDelay > 0 {
		time.Sleep(l.termDelay)
	}
	l.log.add(l.name, "term")
	return nil
}

func parseSpecs(t *testing.T, text string) []config.ActorSpec {
	t.Helper()

	root, err := config.Parse(text, nil)
	require.NoError(t, err)

	u, err := config.ParseUniverse(root)
	require.NoError(t, err)

	return u.Actors
}

func newTestMaster(t *testing.T, registry *Registry, opts Options) *Master {
	t.Helper()

	b := bus.New()
	c := clock.New(time.Now(), 1.0)

	return New("test", b, c, registry, opts)
}

// TestMaster_CreateActorsUnknownClass: non-optional unknown class aborts;
// optional unknown class is skipped with a warning.
func TestMaster_CreateActorsUnknownClass(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()

	m := newTestMaster(t, registry, DefaultOptions())
	err := m.CreateActors(ctx, parseSpecs(t, `
actors = [ { name = ghost, class = no.Such } ]
`))
	require.ErrorIs(t, err, ErrUnknownClass)

	m = newTestMaster(t, registry, DefaultOptions())
	err = m.CreateActors(ctx, parseSpecs(t, `
actors = [ { name = ghost, class = no.Such, optional = true } ]
`))
	require.NoError(t, err)
	require.Empty(t, m.Actors())
}

// TestMaster_PhaseOrdering pins the sequential phase barrier: every actor
// completes Initialize (in configuration order) before any actor starts,
// and Terminate runs in reverse order.
func TestMaster_PhaseOrdering(t *testing.T) {
	ctx := context.Background()
	plog := &phaseLog{}

	registry := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		n := name
		registry.Register("test."+n, func() raceactor.Behavior {
			return &loggingBehavior{name: n, log: plog}
		})
	}

	m := newTestMaster(t, registry, DefaultOptions())
	require.NoError(t, m.CreateActors(ctx, parseSpecs(t, `
actors = [
    { name = a, class = test.a },
    { name = b, class = test.b },
    { name = c, class = test.c }
]
`)))

	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Terminate(ctx))

	require.Equal(t, []string{
		"a:init", "b:init", "c:init",
		"a:start", "b:start", "c:start",
		"c:term", "b:term", "a:term",
	}, plog.snapshot())
}

// TestMaster_OptionalFailureSkipped: an optional actor failing
// Initialize is skipped for the remaining phases while its neighbors
// proceed.
func TestMaster_OptionalFailureSkipped(t *testing.T) {
	ctx := context.Background()
	plog := &phaseLog{}

	registry := NewRegistry()
	registry.Register("test.ok", func() raceactor.Behavior {
		return &loggingBehavior{name: "ok", log: plog}
	})
	registry.Register("test.broken", func() raceactor.Behavior {
		return &loggingBehavior{
			name: "broken", log: plog,
			initErr: errors.New("constructor throws"),
		}
	})

	m := newTestMaster(t, registry, DefaultOptions())
	require.NoError(t, m.CreateActors(ctx, parseSpecs(t, `
actors = [
    { name = a, class = test.ok },
    { name = b, class = test.broken, optional = true },
    { name = c, class = test.ok }
]
`)))

	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.Start(ctx))

	// b initialized-then-failed; a and c went on to Running.
	var running int
	for _, ra := range m.Actors() {
		if ra.State() == raceactor.StateRunning {
			running++
		}
	}
	require.Equal(t, 2, running)

	got := plog.snapshot()
	require.Contains(t, got, "broken:init")
	require.NotContains(t, got, "broken:start")
}

// TestMaster_NonOptionalFailureAborts: a required actor's Initialize
// failure aborts the phase with ErrActorFailed.
func TestMaster_NonOptionalFailureAborts(t *testing.T) {
	ctx := context.Background()
	plog := &phaseLog{}

	registry := NewRegistry()
	registry.Register("test.ok", func() raceactor.Behavior {
		return &loggingBehavior{name: "ok", log: plog}
	})
	registry.Register("test.broken", func() raceactor.Behavior {
		return &loggingBehavior{
			name: "broken", log: plog,
			initErr: errors.New("no"),
		}
	})

	m := newTestMaster(t, registry, DefaultOptions())
	require.NoError(t, m.CreateActors(ctx, parseSpecs(t, `
actors = [
    { name = a, class = test.broken },
    { name = b, class = test.ok }
]
`)))

	err := m.Initialize(ctx)
	require.ErrorIs(t, err, ErrActorFailed)

	// The phase barrier held: b was never initialized.
	require.NotContains(t, plog.snapshot(), "b:init")
}

// TestMaster_TerminateForceKillsSlowActor: a terminate hook exceeding the
// grace period is force-killed without failing the shutdown sequence.
func TestMaster_TerminateForceKillsSlowActor(t *testing.T) {
	ctx := context.Background()
	plog := &phaseLog{}

	registry := NewRegistry()
	registry.Register("test.slow", func() raceactor.Behavior {
		return &loggingBehavior{
			name: "slow", log: plog,
			termDelay: 500 * time.Millisecond,
		}
	})
	registry.Register("test.ok", func() raceactor.Behavior {
		return &loggingBehavior{name: "ok", log: plog}
	})

	opts := DefaultOptions()
	opts.TerminateGrace = 50 * time.Millisecond

	m := newTestMaster(t, registry, opts)
	require.NoError(t, m.CreateActors(ctx, parseSpecs(t, `
actors = [
    { name = quick, class = test.ok },
    { name = stuck, class = test.slow }
]
`)))
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.Start(ctx))

	start := time.Now()
	require.NoError(t, m.Terminate(ctx))

	// The slow actor burned its grace, the quick one terminated
	// normally afterwards (reverse order: stuck first).
	require.Less(t, time.Since(start), 400*time.Millisecond)
	require.Contains(t, plog.snapshot(), "ok:term")
}

// TestMaster_MailboxPolicyFromSettings: per-actor mailbox keys reach the
// actor runtime.
func TestMaster_MailboxPolicyFromSettings(t *testing.T) {
	specs := parseSpecs(t, `
actors = [
    {
        name = bounded
        class = test.x
        mailbox-bound = 16
        mailbox-discipline = drop-newest
    },
    { name = plain, class = test.x }
]
`)

	bounded := mailboxPolicy(specs[0])
	require.Equal(t, 16, bounded.Bound)
	require.True(t, bounded.Bounded())
	require.Equal(t, "drop-newest", bounded.Discipline.String())

	plain := mailboxPolicy(specs[1])
	require.False(t, plain.Bounded())
}

// TestMaster_RemoteSpecsSeparated: remote entries are never constructed
// locally but stay visible for connector wiring.
func TestMaster_RemoteSpecsSeparated(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	registry.Register("test.local", func() raceactor.Behavior {
		return &loggingBehavior{name: "local", log: &phaseLog{}}
	})

	m := newTestMaster(t, registry, DefaultOptions())
	require.NoError(t, m.CreateActors(ctx, parseSpecs(t, `
actors = [
    { name = here, class = test.local },
    { name = there, remote = "peer-universe", read-from = "/track" }
]
`)))

	require.Len(t, m.Actors(), 1)

	remotes := m.RemoteSpecs()
	require.Len(t, remotes, 1)
	require.Equal(t, "there", remotes[0].Name)
	require.Equal(t, "peer-universe", remotes[0].Remote)
}
