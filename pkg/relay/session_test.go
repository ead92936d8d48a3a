package relay

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kslab/svc-relay/pkg/bwe"
	"github.com/kslab/svc-relay/pkg/filter"
	"github.com/kslab/svc-relay/pkg/pacer"
	"github.com/kslab/svc-relay/pkg/rtp"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) (*Session, *fakeTrack, *fakeTrack) {
	t.Helper()
	ingress := newFakeTrack()
	egress := newFakeTrack()

	s := NewSession("test", ingress, egress, Config{
		FilterConfig: filter.Config{},
		BweConfig:    bwe.Config{},
		PacerConfig:  pacer.Config{TickInterval: time.Millisecond},
	}, silentLogger())

	t.Cleanup(func() {
		ingress.close()
		egress.close()
		s.Stop()
	})

	return s, ingress, egress
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestSessionRelaysBaseLayerWithoutBandwidthEstimate(t *testing.T) {
	s, ingress, egress := newTestSession(t)

	// Base layer must pass even with no bandwidth estimate at all, so
	// give the pacer enough budget to actually drain it.
	s.pacer.UpdateBitrate(1_000_000)

	s.MarkIngressReady()
	s.MarkEgressReady()

	ingress.recvCh <- rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 1, PayloadType: vp9PayloadType},
		Payload: []byte{0x00},
	}

	ok := waitForCondition(t, 200*time.Millisecond, func() bool { return len(egress.Sent()) > 0 })
	require.True(t, ok, "expected base layer packet to reach egress")
}

func TestSessionDropsHigherLayerWithoutBandwidthEstimate(t *testing.T) {
	s, ingress, egress := newTestSession(t)
	s.pacer.UpdateBitrate(1_000_000)

	s.MarkIngressReady()
	s.MarkEgressReady()

	// Layer byte: L flag set (0x20), layer byte with tid=2 in the top 3 bits.
	ingress.recvCh <- rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 2, PayloadType: vp9PayloadType},
		Payload: []byte{0x20, 0x40},
	}

	// Give the relay task a chance to process and drop it, then assert
	// nothing was admitted.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, egress.Sent(), "expected higher layer to be dropped without a bandwidth estimate")
	assert.NotZero(t, s.droppedPackets.Load(), "expected droppedPackets to be incremented")
}

func TestSessionForwardsPLIUpstream(t *testing.T) {
	s, ingress, egress := newTestSession(t)
	s.MarkIngressReady()
	s.MarkEgressReady()

	egress.feedbackCh <- PliPacket{MediaSSRC: 42}

	ok := waitForCondition(t, 200*time.Millisecond, func() bool { return len(ingress.SentFeedback()) > 0 })
	require.True(t, ok, "expected PLI to be forwarded to ingress")

	fb := ingress.SentFeedback()[0]
	pli, isPli := fb.(PliPacket)
	require.True(t, isPli, "expected forwarded feedback to be a PliPacket, got %T", fb)
	assert.Equal(t, uint32(42), pli.MediaSSRC)
}

func TestSessionDoesNotStartUntilBothTracksReady(t *testing.T) {
	s, ingress, egress := newTestSession(t)
	s.pacer.UpdateBitrate(1_000_000)

	ingress.recvCh <- rtp.Packet{Header: rtp.Header{PayloadType: vp9PayloadType}, Payload: []byte{0x00}}

	s.MarkIngressReady()
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, egress.Sent(), "expected no relaying before both tracks are marked ready")

	s.MarkEgressReady()
	ok := waitForCondition(t, 200*time.Millisecond, func() bool { return len(egress.Sent()) > 0 })
	require.True(t, ok, "expected relaying to begin once both tracks are ready")
}
