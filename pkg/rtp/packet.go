package rtp

import pionrtp "github.com/pion/rtp"

// Header is the subset of RTP header fields the relay core actually
// touches: wrap-aware sequence number and timestamp, payload type,
// marker bit, and SSRC.
type Header struct {
	SequenceNumber uint16
	Timestamp      uint32
	PayloadType    uint8
	Marker         bool
	SSRC           uint32
}

// Packet is a thin, core-owned representation of an RTP packet. It
// carries either a real pion packet (FromPion) or a synthetic one
// built directly for tests; the filter and pacer never look past
// Header and len(Payload).
type Packet struct {
	Header  Header
	Payload []byte
}

// FromPion adapts a pion RTP packet into the core's Packet
// representation without copying the payload.
func FromPion(p *pionrtp.Packet) Packet {
	return Packet{
		Header: Header{
			SequenceNumber: p.SequenceNumber,
			Timestamp:      p.Timestamp,
			PayloadType:    p.PayloadType,
			Marker:         p.Marker,
			SSRC:           p.SSRC,
		},
		Payload: p.Payload,
	}
}

// ToPion builds a pion RTP packet from the core's representation, for
// the egress side writing back out onto the wire.
func ToPion(pkt Packet) *pionrtp.Packet {
	return &pionrtp.Packet{
		Header: pionrtp.Header{
			SequenceNumber: pkt.Header.SequenceNumber,
			Timestamp:      pkt.Header.Timestamp,
			PayloadType:    pkt.Header.PayloadType,
			Marker:         pkt.Header.Marker,
			SSRC:           pkt.Header.SSRC,
			Version:        2,
		},
		Payload: pkt.Payload,
	}
}
