// Package universe implements the Universe: the process-wide holder that
// owns exactly one Master, one Bus, and one Clock, and carries every actor
// it constructs through to a single termination barrier.
package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/wxflow/raceway/internal/config"
	"github.com/wxflow/raceway/internal/kernel/bus"
	"github.com/wxflow/raceway/internal/kernel/clock"
	"github.com/wxflow/raceway/internal/kernel/master"
	"github.com/wxflow/raceway/internal/kernel/raceactor"
	"github.com/wxflow/raceway/internal/kernel/remote"
)

// Universe is a named actor system running in one process: a unique name,
// a Bus, a Clock, a Master, and the live-actor set the Master constructed.
type Universe struct {
	Name  string
	Bus   *bus.Bus
	Clock *clock.Clock

	master *master.Master
	cfg    *config.Universe

	connectors []*remote.Connector
	terminated chan struct{}
}

// New binds a parsed configuration into a running Universe: it builds the
// Bus and Clock, constructs a Master, and has the Master create every
// local actor the configuration names. Actor creation order follows the
// configuration's actors list; destruction later proceeds in reverse.
func New(ctx context.Context, cfg *config.Universe, registry *master.Registry, opts master.Options, startTime time.Time) (*Universe, error) {
	b := bus.New()
	c := clock.New(startTime, cfg.TimeScale)

	opts.ShowExceptions = cfg.ShowExceptions
	m := master.New(cfg.Name, b, c, registry, opts)

	if err := m.CreateActors(ctx, cfg.Actors); err != nil {
		return nil, fmt.Errorf("universe %q: %w", cfg.Name, err)
	}

	log.DebugS(ctx, "universe bound", "universe", cfg.Name,
		"time_scale", cfg.TimeScale, "actors", len(cfg.Actors))

	return &Universe{
		Name:       cfg.Name,
		Bus:        b,
		Clock:      c,
		master:     m,
		cfg:        cfg,
		terminated: make(chan struct{}),
	}, nil
}

// Actors returns every actor the Master successfully constructed, in
// configuration order.
func (u *Universe) Actors() []*raceactor.RaceActor {
	return u.master.Actors()
}

// RemotePeers returns the distinct peer Universe names this configuration
// references via remote actor entries, for the Driver to establish one
// BusConnector pair against.
func (u *Universe) RemotePeers() []string {
	seen := make(map[string]struct{})
	var peers []string

	for _, spec := range u.master.RemoteSpecs() {
		if _, ok := seen[spec.Remote]; ok {
			continue
		}
		seen[spec.Remote] = struct{}{}
		peers = append(peers, spec.Remote)
	}

	return peers
}

// ConnectRemote starts connector and wires every remote actor entry
// addressed to its peer into it, bridging this Universe's Bus to the peer
// Universe.
func (u *Universe) ConnectRemote(ctx context.Context, connector *remote.Connector) error {
	if err := connector.Start(ctx); err != nil {
		return fmt.Errorf("universe %q: connect remote %q: %w", u.Name, connector.PeerUniverse(), err)
	}

	if err := u.master.WireRemote(ctx, connector); err != nil {
		return err
	}

	u.connectors = append(u.connectors, connector)

	return nil
}

// Initialize drives every actor through Initialize, in configuration
// order, under the Master's strict sequential phase barrier.
func (u *Universe) Initialize(ctx context.Context) error {
	return u.master.Initialize(ctx)
}

// Start drives every actor through Start.
func (u *Universe) Start(ctx context.Context) error {
	return u.master.Start(ctx)
}

// Pause drives every actor through Pause.
func (u *Universe) Pause(ctx context.Context) error {
	return u.master.Pause(ctx)
}

// Resume drives every actor through Resume.
func (u *Universe) Resume(ctx context.Context) error {
	return u.master.Resume(ctx)
}

// Terminate drives every actor through Terminate in reverse configuration
// order and signals the termination barrier once the Master returns,
// regardless of whether any individual actor had to be force-killed.
func (u *Universe) Terminate(ctx context.Context) error {
	defer close(u.terminated)
	defer log.DebugS(ctx, "universe terminated", "universe", u.Name)

	err := u.master.Terminate(ctx)

	// Connectors come down after the actors so late Terminating-phase
	// publications still reach remote peers best-effort.
	for _, connector := range u.connectors {
		if cerr := connector.Close(); cerr != nil {
			log.WarnS(ctx, "remote connector did not close cleanly", cerr,
				"universe", u.Name, "peer", connector.PeerUniverse())
		}
	}

	return err
}

// Done returns a channel closed once Terminate has run to completion, the
// Universe's termination-barrier signal.
func (u *Universe) Done() <-chan struct{} {
	return u.terminated
}
