package relay

import (
	"context"
	"io"
	"sync"

	"github.com/kslab/svc-relay/pkg/rtp"
)

// fakeTrack is a minimal in-memory Track used by session/manager tests.
// Recv/ReadFeedback drain channels fed by the test; Send/SendFeedback
// append to slices a test can inspect after Stop.
type fakeTrack struct {
	mu sync.Mutex

	recvCh     chan rtp.Packet
	feedbackCh chan RtcpPacket

	sent         []rtp.Packet
	sentFeedback []RtcpPacket

	closed bool
}

func newFakeTrack() *fakeTrack {
	return &fakeTrack{
		recvCh:     make(chan rtp.Packet, 64),
		feedbackCh: make(chan RtcpPacket, 64),
	}
}

func (f *fakeTrack) Recv(ctx context.Context) (rtp.Packet, error) {
	select {
	case pkt, ok := <-f.recvCh:
		if !ok {
			return rtp.Packet{}, io.EOF
		}
		return pkt, nil
	case <-ctx.Done():
		return rtp.Packet{}, ctx.Err()
	}
}

func (f *fakeTrack) Send(ctx context.Context, pkt rtp.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pkt)
	return nil
}

func (f *fakeTrack) ReadFeedback(ctx context.Context) (RtcpPacket, error) {
	select {
	case pkt, ok := <-f.feedbackCh:
		if !ok {
			return nil, io.EOF
		}
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTrack) SendFeedback(ctx context.Context, pkt RtcpPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentFeedback = append(f.sentFeedback, pkt)
	return nil
}

func (f *fakeTrack) Sent() []rtp.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rtp.Packet, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTrack) SentFeedback() []RtcpPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RtcpPacket, len(f.sentFeedback))
	copy(out, f.sentFeedback)
	return out
}

func (f *fakeTrack) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.recvCh)
	close(f.feedbackCh)
}
