package relay

import (
	"context"

	"github.com/kslab/svc-relay/pkg/rtp"
	"github.com/kslab/svc-relay/pkg/twcc"
)

// Track is the only contract the relay core depends on for I/O. Real
// sessions bind pion-backed adapters (see webrtctrack.go); tests bind
// simple in-memory fakes.
type Track interface {
	Recv(ctx context.Context) (rtp.Packet, error)
	Send(ctx context.Context, pkt rtp.Packet) error
	ReadFeedback(ctx context.Context) (RtcpPacket, error)
	SendFeedback(ctx context.Context, pkt RtcpPacket) error
}

// RtcpPacket is the closed set of RTCP variants the core recognizes.
// Anything else the transport layer receives is out of scope and must
// be filtered out before it reaches a Track's ReadFeedback.
type RtcpPacket interface {
	isRtcpPacket()
}

// PliPacket is a Picture Loss Indication, forwarded to the ingress
// side unchanged.
type PliPacket struct {
	MediaSSRC uint32
}

func (PliPacket) isRtcpPacket() {}

// TwccFeedbackPacket carries one already-chunk-decoded TWCC RTCP
// feedback report, ready for twcc.Assemble.
type TwccFeedbackPacket struct {
	Feedback twcc.FeedbackPacket
}

func (TwccFeedbackPacket) isRtcpPacket() {}
