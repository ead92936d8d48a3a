package relay

import (
	"context"
	"errors"
	"time"

	"github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/kslab/svc-relay/pkg/rtp"
	"github.com/kslab/svc-relay/pkg/twcc"
)

// twccReferenceUnitMs is the tick size of a TWCC feedback packet's
// wrapping reference time field.
const twccReferenceUnitMs = 64

// ErrUnsupportedDirection marks a Track method called against a
// direction its adapter doesn't carry (e.g. Send on an ingress track).
var ErrUnsupportedDirection = errors.New("relay: unsupported track direction")

// IngressTrack adapts an inbound pion track to Track. Its relevant
// surface is Recv; SendFeedback forwards PLI back to the publishing
// peer over the same PeerConnection.
type IngressTrack struct {
	remote   *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	pc       *webrtc.PeerConnection
}

// NewIngressTrack wraps the pion objects bind_ingress receives once
// negotiation completes.
func NewIngressTrack(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver, pc *webrtc.PeerConnection) *IngressTrack {
	return &IngressTrack{remote: remote, receiver: receiver, pc: pc}
}

func (t *IngressTrack) Recv(ctx context.Context) (rtp.Packet, error) {
	type result struct {
		pkt *pionrtp.Packet
		err error
	}
	done := make(chan result, 1)
	go func() {
		pkt, _, err := t.remote.ReadRTP()
		done <- result{pkt: pkt, err: err}
	}()

	select {
	case <-ctx.Done():
		return rtp.Packet{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return rtp.Packet{}, r.err
		}
		return rtp.FromPion(r.pkt), nil
	}
}

func (t *IngressTrack) Send(ctx context.Context, pkt rtp.Packet) error {
	return ErrUnsupportedDirection
}

func (t *IngressTrack) ReadFeedback(ctx context.Context) (RtcpPacket, error) {
	return nil, ErrUnsupportedDirection
}

// SendFeedback forwards feedback destined for the publisher: only PLI
// (forwarded from the egress side's feedback) is sent upstream, so
// that's the only variant encoded.
func (t *IngressTrack) SendFeedback(ctx context.Context, pkt RtcpPacket) error {
	pli, ok := pkt.(PliPacket)
	if !ok {
		return ErrUnsupportedDirection
	}
	return t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: pli.MediaSSRC}})
}

// EgressTrack adapts an outbound pion track to Track. Its relevant
// surface is Send; ReadFeedback decodes the RTCP the downstream
// receiver sends back over the RTPSender.
type EgressTrack struct {
	local  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender

	// twccOffsetMs anchors a TWCC packet's wrapping reference time onto
	// the local wall clock; established from the first feedback packet
	// and carried forward so successive reports extend one continuous
	// timeline instead of each restarting near 0.
	haveTwccOffset bool
	twccOffsetMs   int64
}

// NewEgressTrack wraps the pion objects bind_egress receives once
// negotiation completes.
func NewEgressTrack(local *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender) *EgressTrack {
	return &EgressTrack{local: local, sender: sender}
}

func (t *EgressTrack) Recv(ctx context.Context) (rtp.Packet, error) {
	return rtp.Packet{}, ErrUnsupportedDirection
}

func (t *EgressTrack) Send(ctx context.Context, pkt rtp.Packet) error {
	return t.local.WriteRTP(rtp.ToPion(pkt))
}

// ReadFeedback blocks until the next RTCP packet the downstream
// receiver sends arrives, decodes it, and maps it to the closed
// RtcpPacket set the core understands. Anything else (receiver
// reports, REMB, FIR) is consumed and skipped rather than surfaced.
func (t *EgressTrack) ReadFeedback(ctx context.Context) (RtcpPacket, error) {
	for {
		type result struct {
			pkts []rtcp.Packet
			err  error
		}
		done := make(chan result, 1)
		go func() {
			pkts, _, err := t.sender.ReadRTCP()
			done <- result{pkts: pkts, err: err}
		}()

		var r result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r = <-done:
		}

		if r.err != nil {
			return nil, r.err
		}

		for _, pkt := range r.pkts {
			switch p := pkt.(type) {
			case *rtcp.PictureLossIndication:
				return PliPacket{MediaSSRC: p.MediaSSRC}, nil
			case *rtcp.TransportLayerCC:
				refMs := t.resolveTwccReferenceMs(p.ReferenceTime)
				return TwccFeedbackPacket{Feedback: twcc.DecodeTransportLayerCC(p, refMs)}, nil
			}
		}
		// Nothing recognized in this batch (receiver reports, REMB,
		// FIR); loop and wait for the next one.
	}
}

func (t *EgressTrack) SendFeedback(ctx context.Context, pkt RtcpPacket) error {
	return ErrUnsupportedDirection
}

// resolveTwccReferenceMs converts a TWCC packet's 24-bit wrapping
// reference time (in 64ms units) into a millisecond value on this
// track's running timeline, anchoring the offset to the wall clock the
// first time it's called.
func (t *EgressTrack) resolveTwccReferenceMs(referenceTime uint32) int64 {
	refMs := int64(referenceTime) * twccReferenceUnitMs
	if !t.haveTwccOffset {
		t.twccOffsetMs = time.Now().UnixMilli() - refMs
		t.haveTwccOffset = true
	}
	return t.twccOffsetMs + refMs
}
