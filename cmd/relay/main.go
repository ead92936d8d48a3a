package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kslab/svc-relay/pkg/config"
	"github.com/kslab/svc-relay/pkg/logger"
	"github.com/kslab/svc-relay/pkg/relay"
)

func main() {
	// Parse command-line flags
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	configPath := fs.String("config", "relay.toml", "Path to the relay's TOML tunables file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Bandwidth-adaptive SVC forwarding relay\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger from flags
	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	logger.SetDefault(log)

	log.Info("starting svc-relay", "log_config", logFlags.String())

	// Load tunables
	tunables, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	log.Info("configuration loaded",
		"pacer_tick_interval_ms", tunables.Pacer.TickIntervalMs,
		"bwe_response_interval_ms", tunables.Bwe.ResponseIntervalMs)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	manager := relay.NewSessionManager(log.Logger)

	// Binding concrete ingress/egress WebRTC tracks is the integrator's
	// responsibility: this binary provides the session lifecycle and
	// the relay/pacing/feedback pipeline, but the SDP exchanges that
	// produce each session's *webrtc.TrackRemote and
	// *webrtc.TrackLocalStaticRTP are out of scope here. A caller wires
	// them up via relay.NewSession + relay.NewIngressTrack /
	// relay.NewEgressTrack + manager.Add, then calls
	// session.MarkIngressReady / MarkEgressReady once each SDP exchange
	// completes.
	_ = tunables

	log.Info("relay ready - press Ctrl+C to stop")

	<-ctx.Done()

	log.Info("shutting down sessions", "count", manager.Count())
	manager.StopAll()

	log.Info("graceful shutdown complete")
}
