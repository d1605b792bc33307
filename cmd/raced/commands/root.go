// Package commands implements the raced Driver's command-line interface.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/spf13/cobra"

	"github.com/wxflow/raceway/internal/config"
	"github.com/wxflow/raceway/internal/driver"
	"github.com/wxflow/raceway/internal/kernel/actor"
	"github.com/wxflow/raceway/internal/kernel/bus"
	"github.com/wxflow/raceway/internal/kernel/clock"
	"github.com/wxflow/raceway/internal/kernel/master"
	kraceactor "github.com/wxflow/raceway/internal/kernel/raceactor"
	"github.com/wxflow/raceway/internal/kernel/remote"
	"github.com/wxflow/raceway/internal/kernel/universe"
	"github.com/wxflow/raceway/internal/logging"
)

var (
	vaultPath      string
	propertyRaw    []string
	logLevel       string
	logDir         string
	maxLogFiles    int
	maxLogFileSize int
)

// rootCmd is raced: the Driver. Positional arguments name one or more
// configuration files, each booting its own Universe in this process.
var rootCmd = &cobra.Command{
	Use:   "raced CONFIG [CONFIG...]",
	Short: "Run one or more Raceway universes from configuration files",
	Long: `raced is the Raceway kernel's Driver: it parses one or more
actor-graph configuration files, constructs a Universe for each, carries
every actor through Initialize and Start, and blocks until interrupted,
then terminates every Universe in reverse boot order.

The kernel registers no actor classes of its own; an embedding build
that links domain actor packages registers them against this package's
Registry (and their wire codecs against Codecs) before Execute is
reached.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDriver,
}

func init() {
	rootCmd.Flags().StringVar(&vaultPath, "vault", "",
		"path to a YAML vault file (key: value, read as plain text, not decrypted) resolving ??key references")
	rootCmd.Flags().StringArrayVarP(&propertyRaw, "property", "D", nil,
		"property override as key=value (repeatable), e.g. -Dtime-scale=2.0")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info",
		"log level: off, error, warn, info, debug")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "",
		"directory for rotating universe log files (default $RACE_DATA/logs; empty RACE_DATA disables file logging)")
	rootCmd.Flags().IntVar(&maxLogFiles, "max-log-files", logging.DefaultMaxLogFiles,
		"maximum number of rotated log files to keep")
	rootCmd.Flags().IntVar(&maxLogFileSize, "max-log-file-size", logging.DefaultMaxLogFileSize,
		"maximum log file size in MB before rotation")
}

// Execute runs the raced CLI, returning the process exit code: 0 on
// clean termination, 1 for configuration errors, 2 for actor
// creation/initialization failures, 3 for runtime fatals.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode != 0 {
			return exitCode
		}
		return driver.ExitCode(err)
	}
	return exitCode
}

// exitCode is set by runDriver since cobra's RunE only reports an error,
// not the distinct exit code ExitCode derives from it.
var exitCode int

func runDriver(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		exitCode = 1
		return err
	}

	closeLogs, err := wireLoggers(level)
	if err != nil {
		exitCode = 1
		return err
	}
	defer closeLogs()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.InfoS(ctx, "received signal, initiating graceful shutdown (send again to force exit)",
			"signal", sig.String())
		cancel()

		sig = <-sigCh
		log.InfoS(ctx, "received second signal, forcing immediate exit", "signal", sig.String())
		os.Exit(1)
	}()

	cfg := driver.Config{
		Paths:         args,
		VaultPath:     vaultPath,
		Overrides:     config.ParsePropertyOverrides(propertyRaw),
		Registry:      Registry,
		MasterOptions: master.DefaultOptions(),
		ConnectRemote: driver.WebSocketDialer(Codecs),
	}

	runErr := driver.Run(ctx, cfg)
	exitCode = driver.ExitCode(runErr)

	return runErr
}

// Registry is the master.Registry the Driver hands to every Universe it
// boots. It is exported so an embedding build's main package can call
// Registry.Register(class, factory) for its own domain actors before
// Execute runs; the kernel itself registers nothing.
var Registry = master.NewRegistry()

// Codecs is the payload codec registry the Driver's BusConnectors encode
// and decode remote publications with. An embedding build registers one
// codec per payload type it wants to cross the wire, typically via
// remote.RegisterJSON, before Execute runs.
var Codecs = remote.NewRegistry()

var log = btclogv2.Disabled

func parseLogLevel(raw string) (btclog.Level, error) {
	switch raw {
	case "off":
		return btclog.LevelOff, nil
	case "error":
		return btclog.LevelError, nil
	case "warn":
		return btclog.LevelWarn, nil
	case "info":
		return btclog.LevelInfo, nil
	case "debug":
		return btclog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unrecognized --log-level %q", raw)
	}
}

// wireLoggers fans one HandlerSet (console, plus a rotating log file when
// a log directory is available) out to every kernel package's subsystem
// logger at the requested level. The returned closer flushes and closes
// the rotator, if one was opened.
func wireLoggers(level btclog.Level) (func(), error) {
	handlers := []btclogv2.Handler{btclogv2.NewDefaultHandler(os.Stderr)}
	closeFn := func() {}

	dir := logDir
	if dir == "" {
		if env := config.LoadEnv(); env.Data != "" {
			dir = filepath.Join(env.Data, "logs")
		}
	}

	if dir != "" {
		rotator := logging.NewRotatingLogWriter()
		err := rotator.InitLogRotator(&logging.LogRotatorConfig{
			LogDir:         dir,
			MaxLogFiles:    maxLogFiles,
			MaxLogFileSize: maxLogFileSize,
		})
		if err != nil {
			return nil, fmt.Errorf("init log rotator in %s: %w", dir, err)
		}

		handlers = append(handlers, btclogv2.NewDefaultHandler(rotator))
		closeFn = func() { _ = rotator.Close() }
	}

	set := logging.NewHandlerSet(handlers...)
	backend := btclogv2.NewSLogger(set)
	backend.SetLevel(level)

	log = backend.WithPrefix("DRV")
	driver.UseLogger(backend.WithPrefix("DRV"))
	universe.UseLogger(backend.WithPrefix("UNI"))
	master.UseLogger(backend.WithPrefix("MST"))
	bus.UseLogger(backend.WithPrefix("BUS"))
	clock.UseLogger(backend.WithPrefix("CLK"))
	kraceactor.UseLogger(backend.WithPrefix("ACT"))
	actor.UseLogger(backend.WithPrefix("SYS"))
	remote.UseLogger(backend.WithPrefix("RMT"))

	return closeFn, nil
}
