package twcc

import "testing"

func TestAssembleCorrelatesSendHistory(t *testing.T) {
	h := NewSendHistory(100)
	h.Record(1, 1000, 200)
	h.Record(2, 1010, 200)
	h.Record(3, 1020, 200)

	pkt := FeedbackPacket{
		ReferenceMs: 2000,
		Entries: []ChunkEntry{
			{Seq: 1, Received: true, DeltaTicks: 0},
			{Seq: 2, Received: true, DeltaTicks: 40}, // 40*250us = 10ms
			{Seq: 3, Received: true, DeltaTicks: 40},
		},
	}

	results := Assemble(pkt, h)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ReceiveMs != 2000 {
		t.Errorf("first ReceiveMs = %d, want 2000", results[0].ReceiveMs)
	}
	if results[1].ReceiveMs != 2010 {
		t.Errorf("second ReceiveMs = %d, want 2010", results[1].ReceiveMs)
	}
	if results[2].ReceiveMs != 2020 {
		t.Errorf("third ReceiveMs = %d, want 2020", results[2].ReceiveMs)
	}
	for _, r := range results {
		if !r.Received {
			t.Errorf("seq %d expected received", r.Seq)
		}
		if r.PayloadSize != 200 {
			t.Errorf("seq %d payload size = %d, want 200", r.Seq, r.PayloadSize)
		}
	}
}

func TestAssembleDropsUnknownSeq(t *testing.T) {
	h := NewSendHistory(100)
	h.Record(1, 1000, 200)

	pkt := FeedbackPacket{
		ReferenceMs: 2000,
		Entries: []ChunkEntry{
			{Seq: 1, Received: true, DeltaTicks: 0},
			{Seq: 99, Received: true, DeltaTicks: 4}, // never sent, or history evicted
		},
	}

	results := Assemble(pkt, h)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (unknown seq dropped)", len(results))
	}
	if results[0].Seq != 1 {
		t.Errorf("unexpected surviving seq %d", results[0].Seq)
	}
}

func TestAssembleSortedAscendingByReceiveMs(t *testing.T) {
	h := NewSendHistory(100)
	h.Record(1, 1000, 100)
	h.Record(2, 1000, 100)
	h.Record(3, 1000, 100)

	// Entries are given in the order the chunks encoded them (send
	// order) with non-negative deltas; deltas accumulate from the
	// reference time in the order given, so the resulting receive_ms
	// sequence must come back in ascending order.
	pkt := FeedbackPacket{
		ReferenceMs: 5000,
		Entries: []ChunkEntry{
			{Seq: 1, Received: true, DeltaTicks: 0},
			{Seq: 2, Received: true, DeltaTicks: 4},
			{Seq: 3, Received: true, DeltaTicks: 4},
		},
	}

	results := Assemble(pkt, h)
	for i := 1; i < len(results); i++ {
		if results[i].ReceiveMs < results[i-1].ReceiveMs {
			t.Fatalf("results not sorted ascending by ReceiveMs: %+v", results)
		}
	}
}

func TestSendHistoryEvictsOldest(t *testing.T) {
	h := NewSendHistory(2)
	h.Record(1, 100, 10)
	h.Record(2, 200, 10)
	h.Record(3, 300, 10) // evicts seq 1

	if _, ok := h.lookup(1); ok {
		t.Errorf("expected seq 1 to have been evicted")
	}
	if _, ok := h.lookup(2); !ok {
		t.Errorf("expected seq 2 to survive")
	}
	if _, ok := h.lookup(3); !ok {
		t.Errorf("expected seq 3 to survive")
	}
}

func TestAssembleUnreceivedEntryPassesThroughWithoutReceiveMs(t *testing.T) {
	h := NewSendHistory(10)
	h.Record(5, 100, 50)

	pkt := FeedbackPacket{
		ReferenceMs: 1000,
		Entries: []ChunkEntry{
			{Seq: 5, Received: false},
		},
	}

	results := Assemble(pkt, h)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Received {
		t.Errorf("expected Received=false")
	}
	if results[0].SendMs != 100 {
		t.Errorf("SendMs = %d, want 100", results[0].SendMs)
	}
}
