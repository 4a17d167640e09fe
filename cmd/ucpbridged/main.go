// Command ucpbridged runs the UCP translation bridge core as a
// standalone daemon: it loads config, wires up internal/core, starts a
// periodic discovery scan, and serves until signalled to stop. Flag
// parsing follows the teacher's own `pflag` usage in kissutil.go; the
// daemon's exit codes are §6's shell-wrapper contract (0 normal, 2 init
// failure).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"

	"github.com/k0ucp/ucpbridge/internal/config"
	"github.com/k0ucp/ucpbridge/internal/core"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "c", "", "Path to a YAML config file. Unset uses built-in defaults.")
	logLevel := pflag.StringP("log-level", "l", "", "Override the config file's logging level (debug|info|warn|error).")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - bidirectional MIDI/UCP translation bridge daemon.\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ucpbridged: %v\n", err)
			return 2
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := log.New(os.Stderr)
	if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}

	c := core.New(core.Config{
		Settings: cfg,
		Logger:   logger,
		Events:   loggingSink(logger, cfg.Logging.TimestampFormat),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.Start(ctx)
	go c.RunLatencyTicker(ctx)
	go runDiscoveryLoop(ctx, c, cfg.Discovery.ScanInterval.Std(), logger)

	<-ctx.Done()
	logger.Info("shutting down")
	c.Stop()
	return 0
}

// runDiscoveryLoop issues Discover() on an interval until ctx is
// cancelled, the daemon-side policy decision the core itself leaves to
// its caller (§6 "Discover()" is a command, not a self-driven loop).
func runDiscoveryLoop(ctx context.Context, c *core.Core, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.Discover(ctx); err != nil {
		logger.Warn("discovery scan reported an error", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Discover(ctx); err != nil {
				logger.Warn("discovery scan reported an error", "err", err)
			}
		}
	}
}

// loggingSink builds the default EventSink: every core.Event is logged
// at a level matching its severity, timestamped with the configured
// strftime format the way the teacher's tq.go/xmit.go stamp transmit
// queue entries.
func loggingSink(logger *log.Logger, timestampFormat string) core.EventSink {
	return func(ev core.Event) {
		stamp, err := strftime.Format(timestampFormat, time.Now())
		if err != nil {
			stamp = time.Now().Format(time.RFC3339)
		}

		switch e := ev.(type) {
		case core.DeviceStateChanged:
			logger.Info("device state changed", "ts", stamp, "device_id", e.DeviceID, "state", e.State)
		case core.DiscoveryUpdated:
			logger.Info("discovery updated", "ts", stamp, "added", len(e.Added), "updated", len(e.Updated), "removed", len(e.Removed))
		case core.UcpParameterChanged:
			logger.Debug("parameter changed", "ts", stamp, "device_id", e.DeviceID, "address", e.Address, "value", e.Value)
		case core.MidiOutgoing:
			logger.Debug("midi outgoing", "ts", stamp, "port_id", e.PortID)
		case core.LearnStateChanged:
			logger.Info("learn state changed", "ts", stamp, "state", e.State)
		case core.LearnBound:
			logger.Info("learn bound", "ts", stamp, "device_id", e.Target.DeviceID, "address", e.Target.Address)
		case core.LearnTimedOut:
			logger.Info("learn timed out", "ts", stamp)
		case core.LatencyUpdated:
			logger.Debug("latency updated", "ts", stamp, "avg", e.Stats.Avg, "count", e.Stats.Count)
		}
	}
}
