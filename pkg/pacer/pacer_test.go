package pacer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kslab/svc-relay/pkg/rtp"
)

func newTestPacer(t *testing.T) (*Pacer, func()) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(context.Background(), logger, Config{TickInterval: 5 * time.Millisecond})
	p.Start()
	return p, p.Stop
}

func TestPacerFIFO(t *testing.T) {
	p, stop := newTestPacer(t)
	defer stop()

	p.UpdateBitrate(8_000) // 1000 bytes/sec

	for i := 0; i < 5; i++ {
		p.Enqueue(rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}, Payload: make([]byte, 20)})
	}

	for i := 0; i < 5; i++ {
		pkt, ok := readWithTimeout(t, p, 500*time.Millisecond)
		if !ok {
			t.Fatalf("expected packet %d, got none", i)
		}
		if pkt.Header.SequenceNumber != uint16(i) {
			t.Fatalf("out of order: got seq %d, want %d", pkt.Header.SequenceNumber, i)
		}
	}
}

func TestPacerBasicScenario(t *testing.T) {
	p, stop := newTestPacer(t)
	defer stop()

	p.UpdateBitrate(8_000) // target = 8800bps headroom => 1100 B/s

	for i := 0; i < 5; i++ {
		p.Enqueue(rtp.Packet{Payload: make([]byte, 20)})
	}

	deadline := time.After(150 * time.Millisecond)
	received := 0
loop:
	for received < 5 {
		select {
		case <-p.output:
			received++
		case <-deadline:
			break loop
		}
	}

	if received != 5 {
		t.Fatalf("expected all 5 packets emitted by t=150ms, got %d", received)
	}

	stats := p.GetStats()
	if stats.BytesSent != 100 {
		t.Errorf("bytes sent = %d, want 100", stats.BytesSent)
	}
}

func TestPacerBudgetNeverExceedsMax(t *testing.T) {
	p, stop := newTestPacer(t)
	defer stop()

	p.UpdateBitrate(80_000)

	time.Sleep(50 * time.Millisecond)

	p.mu.Lock()
	max := p.maxBytesInBudget
	remaining := p.bytesRemaining
	p.mu.Unlock()

	if remaining > max || remaining < -max {
		t.Errorf("bytesRemaining %d out of bounds [-%d, %d]", remaining, max, max)
	}
}

func readWithTimeout(t *testing.T, p *Pacer, d time.Duration) (rtp.Packet, bool) {
	t.Helper()
	done := make(chan struct{})
	var pkt rtp.Packet
	var ok bool
	go func() {
		pkt, ok = p.ReadQueue()
		close(done)
	}()
	select {
	case <-done:
		return pkt, ok
	case <-time.After(d):
		return rtp.Packet{}, false
	}
}
