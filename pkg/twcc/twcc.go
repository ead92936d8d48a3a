// Package twcc assembles per-packet send/receive records from
// transport-wide congestion control feedback, ready to be fed to a
// bandwidth estimator.
//
// The RTCP receiver upstream of this package is expected to have
// already decoded a TWCC RTCP feedback packet's run-length and status
// symbol chunks into a flat list of (seq, received, delta_ticks)
// entries; this package's job is the correlation and bookkeeping the
// estimator actually depends on: pairing each reported sequence number
// with the local send-time history, and turning relative arrival
// deltas into an absolute, monotonically sortable receive_ms.
package twcc

import "sort"

// deltaTickMicros is the unit (in microseconds) TWCC feedback encodes
// arrival deltas in.
const deltaTickMicros = 250

// ChunkEntry is one already-decoded packet status entry taken off a
// TWCC RTCP feedback packet: whether transport sequence number Seq was
// received, and if so, its arrival delta from the previous received
// packet (or from the feedback's reference time, for the first entry),
// in 250us ticks.
type ChunkEntry struct {
	Seq        uint16
	Received   bool
	DeltaTicks int16
}

// FeedbackPacket is a single TWCC RTCP feedback report.
type FeedbackPacket struct {
	// ReferenceMs is the feedback packet's reference time, already
	// converted to the local monotonic millisecond clock.
	ReferenceMs int64
	Entries     []ChunkEntry
}

// TwccResult is one record per sequence-reported packet, ready for the
// bandwidth estimator.
type TwccResult struct {
	Seq         uint16
	SendMs      int64
	ReceiveMs   int64
	PayloadSize int
	Received    bool
}

// SendRecord is what the pacer or egress sender records at the moment
// a packet with a given transport sequence number is sent.
type SendRecord struct {
	SendMs      int64
	PayloadSize int
}

// SendHistory correlates transport sequence numbers with local send
// times. Entries age out once the history grows past maxEntries, on
// the assumption that feedback for very old packets will never arrive
// (or is no longer useful to the estimator).
type SendHistory struct {
	maxEntries int
	records    map[uint16]SendRecord
	order      []uint16
}

// NewSendHistory creates a SendHistory retaining at most maxEntries
// records.
func NewSendHistory(maxEntries int) *SendHistory {
	return &SendHistory{
		maxEntries: maxEntries,
		records:    make(map[uint16]SendRecord, maxEntries),
	}
}

// Record notes that a packet with the given transport sequence number
// was sent at sendMs with the given payload size.
func (h *SendHistory) Record(seq uint16, sendMs int64, payloadSize int) {
	if _, exists := h.records[seq]; !exists {
		h.order = append(h.order, seq)
	}
	h.records[seq] = SendRecord{SendMs: sendMs, PayloadSize: payloadSize}

	for len(h.order) > h.maxEntries {
		evict := h.order[0]
		h.order = h.order[1:]
		delete(h.records, evict)
	}
}

// lookup returns the send record for seq, if still present.
func (h *SendHistory) lookup(seq uint16) (SendRecord, bool) {
	r, ok := h.records[seq]
	return r, ok
}

// Assemble correlates a decoded TWCC feedback packet against the send
// history and returns the resulting TwccResults sorted ascending by
// ReceiveMs.
//
// Entries whose Seq has no surviving send-history record are dropped
// silently: the sender has already evicted the history, so nothing
// useful can be said about that packet. Unreceived entries (lost
// packets) are passed through with Received=false and no ReceiveMs
// (SendMs and PayloadSize are still filled from the history), since the estimator only consumes received samples but filter/pacer
// bookkeeping elsewhere may still want the loss signal.
func Assemble(pkt FeedbackPacket, history *SendHistory) []TwccResult {
	results := make([]TwccResult, 0, len(pkt.Entries))

	receiveMs := pkt.ReferenceMs
	for _, e := range pkt.Entries {
		record, ok := history.lookup(e.Seq)
		if !ok {
			continue
		}

		if !e.Received {
			results = append(results, TwccResult{
				Seq:         e.Seq,
				SendMs:      record.SendMs,
				PayloadSize: record.PayloadSize,
				Received:    false,
			})
			continue
		}

		receiveMs += int64(e.DeltaTicks) * deltaTickMicros / 1000

		results = append(results, TwccResult{
			Seq:         e.Seq,
			SendMs:      record.SendMs,
			ReceiveMs:   receiveMs,
			PayloadSize: record.PayloadSize,
			Received:    true,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ReceiveMs < results[j].ReceiveMs
	})

	return results
}
