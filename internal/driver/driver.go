// Package driver implements the kernel's Driver: it loads configuration,
// creates one Universe per configuration file, wires any remote peers,
// and drives every Universe through Start and Terminate, mapping the
// outcome onto distinct process exit codes.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/wxflow/raceway/internal/config"
	"github.com/wxflow/raceway/internal/kernel/master"
	"github.com/wxflow/raceway/internal/kernel/remote"
	"github.com/wxflow/raceway/internal/kernel/universe"
)

// RemoteDialer builds a Connector bridging u to the peer named by an
// actor entry's "remote" value. The Driver calls it once per distinct
// peer a configuration references. Supplying nil disables cross-process
// bridging entirely — remote entries are then left unconnected, matching
// the Master's "skip local construction for remote actor entry" behavior
// with no BusConnector to pick up the slack.
type RemoteDialer func(ctx context.Context, u *universe.Universe, peer string) (*remote.Connector, error)

// WebSocketDialer returns the default RemoteDialer: each "remote" value
// is taken to be a ws:// (or wss://) URL of the peer Universe's
// connector endpoint, dialed with reconnect-and-resubscribe handling.
func WebSocketDialer(codecs *remote.Registry) RemoteDialer {
	return func(ctx context.Context, u *universe.Universe, peer string) (*remote.Connector, error) {
		return remote.New(remote.Config{
			LocalUniverse: u.Name,
			PeerUniverse:  peer,
			Bus:           u.Bus,
			Registry:      codecs,
			Dial: func(dialCtx context.Context) (remote.Transport, error) {
				return remote.DialWebSocket(dialCtx, peer)
			},
		}), nil
	}
}

// Config configures one Driver run.
type Config struct {
	// Paths lists one or more configuration files, each producing its
	// own Universe in this process.
	Paths []string

	// VaultPath is the --vault flag's value; empty disables vault
	// resolution (any "??key" reference then fails).
	VaultPath string

	// Overrides are -Dkey=value property overrides applied after
	// parsing, before interpolation's result is handed to ParseUniverse.
	Overrides map[string]string

	// Registry resolves actor class tags to Factories. The kernel itself
	// registers none; the embedding application registers its domain
	// actor classes before calling Run.
	Registry *master.Registry

	// MasterOptions configures every Universe's Master (phase and
	// terminate-grace timeouts).
	MasterOptions master.Options

	// ConnectRemote builds BusConnectors for remote actor entries. Leave
	// nil to run with no cross-process bridging.
	ConnectRemote RemoteDialer

	// ShutdownGrace bounds how long Run waits for every Universe's
	// Terminate to return once ctx is cancelled.
	ShutdownGrace time.Duration
}

type bootedUniverse struct {
	cfg *config.Universe
	u   *universe.Universe
}

// Run loads every configured file, starts a Universe for each, and blocks
// until ctx is cancelled (normally by a signal the caller's main wires
// up), then terminates every Universe in reverse boot order. It returns
// an error suitable for ExitCode.
func Run(ctx context.Context, cfg Config) error {
	vault, err := config.LoadVault(cfg.VaultPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = master.NewRegistry()
	}

	var booted []bootedUniverse
	for _, path := range cfg.Paths {
		root, err := config.Load(path, vault, cfg.Overrides)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, path, err)
		}

		uc, err := config.ParseUniverse(root)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, path, err)
		}

		u, err := universe.New(ctx, uc, registry, cfg.MasterOptions, uc.StartTime)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrActorFailure, uc.Name, err)
		}

		log.InfoS(ctx, "universe constructed", "universe", uc.Name, "path", path,
			"actor_count", len(u.Actors()))

		booted = append(booted, bootedUniverse{cfg: uc, u: u})
	}

	for _, b := range booted {
		if err := connectRemotes(ctx, b, cfg.ConnectRemote); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrActorFailure, b.cfg.Name, err)
		}
	}

	for _, b := range booted {
		if err := b.u.Initialize(ctx); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrActorFailure, b.cfg.Name, err)
		}
	}

	for _, b := range booted {
		if err := b.u.Start(ctx); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrActorFailure, b.cfg.Name, err)
		}

		log.InfoS(ctx, "universe running", "universe", b.cfg.Name)
	}

	<-ctx.Done()

	return terminateAll(booted, cfg.ShutdownGrace)
}

func connectRemotes(ctx context.Context, b bootedUniverse, dial RemoteDialer) error {
	if dial == nil {
		return nil
	}

	for _, peer := range b.u.RemotePeers() {
		connector, err := dial(ctx, b.u, peer)
		if err != nil {
			return fmt.Errorf("dial remote peer %q: %w", peer, err)
		}

		if err := b.u.ConnectRemote(ctx, connector); err != nil {
			return fmt.Errorf("connect remote peer %q: %w", peer, err)
		}

		log.InfoS(ctx, "remote peer connected", "universe", b.cfg.Name, "peer", peer)
	}

	return nil
}

// terminateAll drives every booted Universe through Terminate in reverse
// boot order, under a shared grace deadline. Termination is best-effort
// per Universe; a Universe that fails to terminate within grace is
// logged and skipped, never aborting the remaining shutdowns.
func terminateAll(booted []bootedUniverse, grace time.Duration) error {
	if grace <= 0 {
		grace = 30 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var firstErr error
	for i := len(booted) - 1; i >= 0; i-- {
		b := booted[i]

		log.InfoS(shutdownCtx, "terminating universe", "universe", b.cfg.Name)

		if err := b.u.Terminate(shutdownCtx); err != nil {
			log.ErrorS(shutdownCtx, "universe failed to terminate cleanly", err,
				"universe", b.cfg.Name)
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s: %v", ErrRuntimeFatal, b.cfg.Name, err)
			}
		}
	}

	return firstErr
}
