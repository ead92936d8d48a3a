package twcc

import (
	"time"

	"github.com/pion/rtcp"
)

const deltaScale = 250 * time.Microsecond

// DecodeTransportLayerCC expands a pion-parsed TWCC RTCP packet's
// run-length and status-vector chunks into the flat per-sequence-number
// entry list Assemble expects. referenceMs is the packet's reference
// time already converted to the local monotonic millisecond clock.
func DecodeTransportLayerCC(pkt *rtcp.TransportLayerCC, referenceMs int64) FeedbackPacket {
	entries := make([]ChunkEntry, 0, pkt.PacketStatusCount)
	seq := pkt.BaseSequenceNumber
	deltaIdx := 0

	for _, chunk := range pkt.PacketChunks {
		switch c := chunk.(type) {
		case *rtcp.RunLengthChunk:
			for i := uint16(0); i < c.RunLength; i++ {
				entries = append(entries, statusEntry(seq, c.PacketStatusSymbol, pkt.RecvDeltas, &deltaIdx))
				seq++
			}
		case *rtcp.StatusVectorChunk:
			for _, symbol := range c.SymbolList {
				entries = append(entries, statusEntry(seq, symbol, pkt.RecvDeltas, &deltaIdx))
				seq++
			}
		}
	}

	return FeedbackPacket{ReferenceMs: referenceMs, Entries: entries}
}

func statusEntry(seq uint16, symbol uint16, deltas []*rtcp.RecvDelta, idx *int) ChunkEntry {
	received := symbol == rtcp.TypeTCCPacketReceivedSmallDelta || symbol == rtcp.TypeTCCPacketReceivedLargeDelta
	if !received {
		return ChunkEntry{Seq: seq, Received: false}
	}

	var ticks int16
	if *idx < len(deltas) {
		ticks = int16(time.Duration(deltas[*idx].Delta) / deltaScale)
		*idx++
	}

	return ChunkEntry{Seq: seq, Received: true, DeltaTicks: ticks}
}
