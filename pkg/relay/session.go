package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kslab/svc-relay/pkg/bwe"
	"github.com/kslab/svc-relay/pkg/filter"
	"github.com/kslab/svc-relay/pkg/pacer"
	"github.com/kslab/svc-relay/pkg/rtp"
	"github.com/kslab/svc-relay/pkg/telemetry"
	"github.com/kslab/svc-relay/pkg/twcc"
)

// vp9PayloadType is the only payload type the relay task inspects for
// temporal-layer information; every other packet is forwarded as-is.
const vp9PayloadType = 98

// Clock returns the current time in milliseconds on whatever clock the
// session was configured with. Sessions use a real wall clock in
// production and a fake one in tests.
type Clock func() int64

// WallClock is the production Clock.
func WallClock() int64 {
	return time.Now().UnixMilli()
}

// Session ties one ingress track to one egress track through the
// filter, BWE, and pacer. It runs three cooperating tasks: relay,
// pacing, and feedback.
type Session struct {
	id      string
	logger  *slog.Logger
	ingress Track
	egress  Track

	filter *filter.Filter
	bwe    *bwe.Estimator
	pacer  *pacer.Pacer
	clock  Clock

	// sendHistory correlates TWCC feedback seq numbers against the
	// time and size at which the relay task admitted each packet to the
	// pacer, keyed by the packet's RTP sequence number.
	sendHistory *twcc.SendHistory

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	relayedPackets atomic.Uint64
	droppedPackets atomic.Uint64
	feedbackErrors atomic.Uint64
	startTime      time.Time

	readyMu      sync.Mutex
	ingressReady bool
	egressReady  bool
	started      bool

	telemetry *telemetry.Reporter

	// sendWarnLimiter caps how often a persistently failing egress.Send
	// can spam the log; the pacing task moves on to the next packet
	// either way, and a packet whose Send failed is not resent.
	sendWarnLimiter *rate.Limiter
}

// Config configures the long-lived subsystems a Session owns.
type Config struct {
	FilterConfig filter.Config
	BweConfig    bwe.Config
	PacerConfig  pacer.Config
	Clock        Clock

	// TelemetryLogger and TelemetryInterval enable periodic zerolog
	// snapshots of the session's state. A zero TelemetryInterval
	// disables telemetry entirely.
	TelemetryLogger   zerolog.Logger
	TelemetryInterval time.Duration
}

// NewSession builds an idle session. It does not start any task until
// both MarkIngressReady and MarkEgressReady have been called.
func NewSession(id string, ingress, egress Track, cfg Config, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	clock := cfg.Clock
	if clock == nil {
		clock = WallClock
	}

	s := &Session{
		id:          id,
		logger:      logger.With("session_id", id, "component", "relay"),
		ingress:     ingress,
		egress:      egress,
		filter:      filter.New(cfg.FilterConfig),
		bwe:         bwe.New(cfg.BweConfig),
		pacer:       pacer.New(ctx, logger.With("session_id", id, "component", "pacer"), cfg.PacerConfig),
		clock:       clock,
		sendHistory:     twcc.NewSendHistory(1024),
		ctx:             ctx,
		cancel:          cancel,
		startTime:       time.Now(),
		sendWarnLimiter: rate.NewLimiter(rate.Limit(1), 1),
	}

	if cfg.TelemetryInterval > 0 {
		s.telemetry = telemetry.NewReporter(cfg.TelemetryLogger, s, cfg.TelemetryInterval)
	}

	return s
}

// MarkIngressReady records that bind_ingress produced a remote track.
// Start is only armed once both flags are set.
func (s *Session) MarkIngressReady() {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.ingressReady = true
	s.maybeStartLocked()
}

// MarkEgressReady records that bind_egress produced a local track.
func (s *Session) MarkEgressReady() {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.egressReady = true
	s.maybeStartLocked()
}

func (s *Session) maybeStartLocked() {
	if s.started || !s.ingressReady || !s.egressReady {
		return
	}
	s.started = true

	s.pacer.Start()
	s.wg.Add(3)
	go s.relayTask()
	go s.pacingTask()
	go s.feedbackTask()

	if s.telemetry != nil {
		s.telemetry.Start()
	}

	s.logger.Info("session started")
}

// Stop tears the session down: cancels all three tasks, waits for
// them to exit, and stops the pacer.
func (s *Session) Stop() {
	s.cancel()
	s.wg.Wait()
	s.pacer.Stop()
	if s.telemetry != nil {
		s.telemetry.Stop()
	}
	s.logger.Info("session stopped",
		"duration", time.Since(s.startTime),
		"relayed_packets", s.relayedPackets.Load(),
		"dropped_packets", s.droppedPackets.Load())
}

// relayTask reads from ingress, runs VP9-aware admission through the
// filter, and enqueues admitted packets onto the pacer.
func (s *Session) relayTask() {
	defer s.wg.Done()

	for {
		pkt, err := s.ingress.Recv(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("ingress recv failed, ending relay task", "error", err)
			return
		}

		layer := 0
		if pkt.Header.PayloadType == vp9PayloadType {
			desc := rtp.ParseVp9Descriptor(pkt.Payload)
			layer = int(desc.TID)
		}

		admitted := s.filter.AddVideoSample(0, layer, len(pkt.Payload), s.clock())
		if !admitted {
			s.droppedPackets.Add(1)
			continue
		}

		s.relayedPackets.Add(1)
		s.sendHistory.Record(pkt.Header.SequenceNumber, s.clock(), len(pkt.Payload))
		s.pacer.Enqueue(pkt)
	}
}

// pacingTask drains the pacer's output queue and writes each packet to
// the egress track.
func (s *Session) pacingTask() {
	defer s.wg.Done()

	for {
		pkt, ok := s.pacer.ReadQueue()
		if !ok {
			return
		}
		if err := s.egress.Send(s.ctx, pkt); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if s.sendWarnLimiter.Allow() {
				s.logger.Warn("egress send failed", "error", err)
			}
		}
	}
}

// feedbackTask reads RTCP feedback from egress and routes it: PLI is
// forwarded upstream unchanged; TWCC feedback is assembled against the
// session's send history and fed to the BWE, whose output (if any)
// updates both the filter and the pacer.
func (s *Session) feedbackTask() {
	defer s.wg.Done()

	for {
		pkt, err := s.egress.ReadFeedback(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.feedbackErrors.Add(1)
			s.logger.Warn("feedback read failed, ending feedback task", "error", err)
			return
		}

		switch fb := pkt.(type) {
		case PliPacket:
			if err := s.ingress.SendFeedback(s.ctx, fb); err != nil && s.ctx.Err() == nil {
				s.logger.Warn("failed to forward PLI", "error", err)
			}
		case TwccFeedbackPacket:
			s.handleTwccFeedback(fb.Feedback)
		}
	}
}

func (s *Session) handleTwccFeedback(fb twcc.FeedbackPacket) {
	// Assemble already returns results sorted ascending by receive_ms.
	results := twcc.Assemble(fb, s.sendHistory)

	for _, r := range results {
		if !r.Received {
			continue
		}
		bps, ok := s.bwe.Add(r.ReceiveMs, r.SendMs, r.PayloadSize)
		if !ok {
			continue
		}
		s.filter.UpdateAvailableBitrate(bps)
		s.pacer.UpdateBitrate(bps)
	}
}

// Stats summarizes a session's lifetime counters.
type Stats struct {
	SessionID      string
	Uptime         time.Duration
	RelayedPackets uint64
	DroppedPackets uint64
	FeedbackErrors uint64
	PacerStats     pacer.Stats
}

// GetStats returns a point-in-time snapshot of the session's counters.
func (s *Session) GetStats() Stats {
	return Stats{
		SessionID:      s.id,
		Uptime:         time.Since(s.startTime),
		RelayedPackets: s.relayedPackets.Load(),
		DroppedPackets: s.droppedPackets.Load(),
		FeedbackErrors: s.feedbackErrors.Load(),
		PacerStats:     s.pacer.GetStats(),
	}
}

// Snapshot implements telemetry.Source. It reads bwe state from
// outside the feedback task that owns it; a snapshot may be a tick
// stale under concurrent updates, which is acceptable for a metrics
// stream.
func (s *Session) Snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		SessionID:      s.id,
		OveruseState:   s.bwe.OveruseState(),
		RateState:      s.bwe.RateControlState(),
		EstimateBps:    s.bwe.Estimate(),
		PacerStats:     s.pacer.GetStats(),
		RelayedPackets: s.relayedPackets.Load(),
		DroppedPackets: s.droppedPackets.Load(),
	}
}
