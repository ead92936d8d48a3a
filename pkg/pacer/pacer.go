// Package pacer implements a leaky-bucket output shaper: packets are
// enqueued as they arrive and drained at a rate bounded by the latest
// bandwidth estimate, absorbing short-term bursts without building an
// unbounded backlog.
package pacer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kslab/svc-relay/pkg/rtp"
)

const (
	defaultTickInterval  = 5 * time.Millisecond
	defaultHeadroom      = 1.10
	defaultBucketSeconds = 0.5

	statsLogInterval = 30 * time.Second
)

// Config holds the pacer's exposed constructor parameters.
type Config struct {
	TickInterval  time.Duration // pacer.tick_interval, default 5ms
	Headroom      float64       // pacer.headroom, default 1.10
	BucketSeconds float64       // pacer.bucket_seconds, default 0.5
}

// Stats is a snapshot of the pacer's counters.
type Stats struct {
	PacketsSent    uint64
	BytesSent      uint64
	BurstsAbsorbed uint64
	QueueDepth     int
}

// Pacer is the leaky-bucket shaper. Enqueue is called from the relay
// task, ReadQueue from the pacing task, and UpdateBitrate from the
// feedback task; the internal budget and queue are mutex-guarded so
// those three goroutines can safely share them.
type Pacer struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	targetBitrate    uint64
	maxBytesInBudget int64
	bytesRemaining   int64
	input            []rtp.Packet

	output chan rtp.Packet

	statsMu        sync.Mutex
	packetsSent    uint64
	bytesSent      uint64
	burstsAbsorbed uint64
}

// New creates a Pacer. Any zero Config field is replaced with its
// documented default.
func New(ctx context.Context, logger *slog.Logger, cfg Config) *Pacer {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Headroom == 0 {
		cfg.Headroom = defaultHeadroom
	}
	if cfg.BucketSeconds == 0 {
		cfg.BucketSeconds = defaultBucketSeconds
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pacer{
		cfg:    cfg,
		logger: logger.With("component", "pacer"),
		ctx:    ctx,
		cancel: cancel,
		output: make(chan rtp.Packet, 64),
	}
}

// Start begins the tick and stats goroutines.
func (p *Pacer) Start() {
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.tickLoop()
	}()
	go func() {
		defer p.wg.Done()
		p.statsLoop()
	}()
}

// Stop cancels the pacer's goroutines and waits for them to exit.
func (p *Pacer) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Enqueue appends a packet to the input queue. It never blocks: the
// pacer bounds output rate, not queue depth.
func (p *Pacer) Enqueue(pkt rtp.Packet) {
	p.mu.Lock()
	p.input = append(p.input, pkt)
	depth := len(p.input)
	p.mu.Unlock()

	if depth > cap(p.output) {
		p.statsMu.Lock()
		p.burstsAbsorbed++
		p.statsMu.Unlock()
	}
}

// ReadQueue suspends until a paced packet is available or the pacer is
// stopped.
func (p *Pacer) ReadQueue() (rtp.Packet, bool) {
	select {
	case pkt := <-p.output:
		return pkt, true
	case <-p.ctx.Done():
		return rtp.Packet{}, false
	}
}

// UpdateBitrate recomputes the target bitrate and budget ceiling from
// a new bandwidth estimate, clamping bytes_remaining to the new
// bounds.
func (p *Pacer) UpdateBitrate(bps uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.targetBitrate = uint64(float64(bps) * p.cfg.Headroom)
	p.maxBytesInBudget = int64(float64(p.targetBitrate) / 8 * p.cfg.BucketSeconds)

	if p.bytesRemaining > p.maxBytesInBudget {
		p.bytesRemaining = p.maxBytesInBudget
	}
	if p.bytesRemaining < -p.maxBytesInBudget {
		p.bytesRemaining = -p.maxBytesInBudget
	}
}

// tickLoop replenishes the budget and drains the input queue into the
// output channel every TickInterval.
func (p *Pacer) tickLoop() {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick replenishes the budget by one tick's worth of the target
// bitrate, then drains as many queued packets as the budget allows,
// preserving FIFO order.
func (p *Pacer) tick() {
	p.mu.Lock()

	step := int64(float64(p.targetBitrate) / 8 * p.cfg.TickInterval.Seconds())
	if p.bytesRemaining < 0 {
		p.bytesRemaining += step
		if p.bytesRemaining > p.maxBytesInBudget {
			p.bytesRemaining = p.maxBytesInBudget
		}
	} else {
		p.bytesRemaining = step
		if p.bytesRemaining > p.maxBytesInBudget {
			p.bytesRemaining = p.maxBytesInBudget
		}
	}

	var drained []rtp.Packet
	for p.bytesRemaining > 0 && len(p.input) > 0 {
		pkt := p.input[0]
		p.input = p.input[1:]
		p.bytesRemaining -= int64(len(pkt.Payload))
		if p.bytesRemaining < -p.maxBytesInBudget {
			p.bytesRemaining = -p.maxBytesInBudget
		}
		drained = append(drained, pkt)
	}

	p.mu.Unlock()

	for _, pkt := range drained {
		select {
		case p.output <- pkt:
		case <-p.ctx.Done():
			return
		}
		p.statsMu.Lock()
		p.packetsSent++
		p.bytesSent += uint64(len(pkt.Payload))
		p.statsMu.Unlock()
	}
}

func (p *Pacer) statsLoop() {
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			s := p.GetStats()
			p.logger.Info("pacer statistics",
				"packets_sent", s.PacketsSent,
				"bytes_sent", s.BytesSent,
				"bursts_absorbed", s.BurstsAbsorbed,
				"queue_depth", s.QueueDepth)
		}
	}
}

// GetStats returns a snapshot of the pacer's counters.
func (p *Pacer) GetStats() Stats {
	p.mu.Lock()
	depth := len(p.input)
	p.mu.Unlock()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	return Stats{
		PacketsSent:    p.packetsSent,
		BytesSent:      p.bytesSent,
		BurstsAbsorbed: p.burstsAbsorbed,
		QueueDepth:     depth,
	}
}
