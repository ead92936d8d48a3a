package pacer

import (
	"testing"

	"github.com/kslab/svc-relay/pkg/rtp"
)

func TestPriorityPacerFirstRunOnlyRecordsClock(t *testing.T) {
	p := NewPriorityPacer(Config{})
	p.UpdateBitrate(8_000)
	p.Enqueue(PriorityAudio, FrameKey{Layer: 0, UnwrappedTS: 0}, rtp.Packet{Payload: make([]byte, 10)})

	drained := p.Run(0)
	if drained != nil {
		t.Fatalf("expected nil on first Run call, got %v", drained)
	}
}

func TestPriorityPacerAudioBeatsVideo(t *testing.T) {
	p := NewPriorityPacer(Config{})
	p.UpdateBitrate(800_000) // generous budget
	p.Run(0)

	p.Enqueue(PriorityVideo, FrameKey{Layer: 0, UnwrappedTS: 100}, rtp.Packet{Header: rtp.Header{SequenceNumber: 1}, Payload: make([]byte, 10)})
	p.Enqueue(PriorityAudio, FrameKey{Layer: 0, UnwrappedTS: 200}, rtp.Packet{Header: rtp.Header{SequenceNumber: 2}, Payload: make([]byte, 10)})

	drained := p.Run(5)
	if len(drained) < 2 {
		t.Fatalf("expected both packets drained, got %d", len(drained))
	}
	// Audio (class 1, seq 2) must come before video (class 3, seq 1)
	// even though its timestamp is later.
	if drained[0].Header.SequenceNumber != 2 {
		t.Errorf("expected audio packet first, got seq %d", drained[0].Header.SequenceNumber)
	}
}

func TestPriorityPacerBaseLayerBeforeHigherLayer(t *testing.T) {
	p := NewPriorityPacer(Config{})
	p.UpdateBitrate(800_000)
	p.Run(0)

	p.Enqueue(PriorityVideo, FrameKey{Layer: 2, UnwrappedTS: 50}, rtp.Packet{Payload: make([]byte, 10)})
	p.Enqueue(PriorityVideo, FrameKey{Layer: 0, UnwrappedTS: 999}, rtp.Packet{Payload: make([]byte, 10)})

	class, key, ok := p.nextFrame()
	if !ok {
		t.Fatalf("expected a frame to be available")
	}
	if class != PriorityVideo || key.Layer != 0 {
		t.Fatalf("expected base layer (layer 0) to sort first, got class=%v key=%+v", class, key)
	}
}

func TestPriorityPacerDropOldFrameBeyondLimit(t *testing.T) {
	p := NewPriorityPacer(Config{})
	p.UpdateBitrate(800_000)

	for ts := 0; ts < maxFramesPerClass+5; ts++ {
		p.Enqueue(PriorityVideo, FrameKey{Layer: 0, UnwrappedTS: int64(ts)}, rtp.Packet{Payload: make([]byte, 1)})
	}

	c := p.classes[PriorityVideo]
	if len(c.keys) > maxFramesPerClass {
		t.Fatalf("expected at most %d frames retained, got %d", maxFramesPerClass, len(c.keys))
	}

	// The oldest (smallest ts) frames should have been evicted first.
	if c.keys[0].UnwrappedTS == 0 {
		t.Errorf("expected the oldest frame (ts=0) to have been evicted")
	}
}

func TestPriorityPacerBudgetBounded(t *testing.T) {
	p := NewPriorityPacer(Config{})
	p.UpdateBitrate(8_000)
	p.Run(0)

	for i := 0; i < 50; i++ {
		p.Enqueue(PriorityVideo, FrameKey{Layer: 0, UnwrappedTS: int64(i)}, rtp.Packet{Payload: make([]byte, 100)})
	}
	p.Run(1000)

	if p.bytesRemaining > p.maxBytesInBudget || p.bytesRemaining < -p.maxBytesInBudget {
		t.Errorf("bytesRemaining %d out of bounds [-%d, %d]", p.bytesRemaining, p.maxBytesInBudget, p.maxBytesInBudget)
	}
}
