// Package telemetry emits periodic structured snapshots of a session's
// subsystem state as zerolog JSON events, separate from the slog-based
// application log: this is a metrics stream meant for aggregation, not
// for a human reading the console.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kslab/svc-relay/pkg/bwe"
	"github.com/kslab/svc-relay/pkg/pacer"
)

// Snapshot is one point-in-time view of a session's subsystems, wide
// enough for the Reporter to emit without reaching back into the
// session's internals on every tick.
type Snapshot struct {
	SessionID      string
	OveruseState   bwe.OveruseState
	RateState      bwe.RateControlState
	EstimateBps    uint64
	PacerStats     pacer.Stats
	RelayedPackets uint64
	DroppedPackets uint64
}

// Source is whatever can produce a Snapshot on demand. A Session
// implements this by reading its own counters and its BWE/pacer state.
type Source interface {
	Snapshot() Snapshot
}

// Reporter periodically pulls a Snapshot from its Source and logs it
// as a zerolog JSON event.
type Reporter struct {
	log      zerolog.Logger
	source   Source
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReporter builds a Reporter writing to log, sampling src every
// interval.
func NewReporter(log zerolog.Logger, src Source, interval time.Duration) *Reporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reporter{
		log:      log.With().Str("component", "telemetry").Logger(),
		source:   src,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the reporting goroutine.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop cancels the reporting goroutine and waits for it to exit.
func (r *Reporter) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Reporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.emit(r.source.Snapshot())
		}
	}
}

func (r *Reporter) emit(s Snapshot) {
	r.log.Info().
		Str("session_id", s.SessionID).
		Int("overuse_state", int(s.OveruseState)).
		Int("rate_state", int(s.RateState)).
		Uint64("estimate_bps", s.EstimateBps).
		Uint64("packets_sent", s.PacerStats.PacketsSent).
		Uint64("bytes_sent", s.PacerStats.BytesSent).
		Uint64("bursts_absorbed", s.PacerStats.BurstsAbsorbed).
		Int("queue_depth", s.PacerStats.QueueDepth).
		Uint64("relayed_packets", s.RelayedPackets).
		Uint64("dropped_packets", s.DroppedPackets).
		Msg("session telemetry")
}
