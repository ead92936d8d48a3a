package rtp

// VP9 payload descriptor flag bits (first octet, MSB first): I P L F B E V -
const (
	vp9FlagI = 0x80 // picture ID present
	vp9FlagP = 0x40 // inter-picture predicted frame
	vp9FlagL = 0x20 // layer indices present
	vp9FlagF = 0x10 // flexible mode
	vp9FlagB = 0x08 // start of frame
	vp9FlagE = 0x04 // end of frame
	vp9FlagV = 0x02 // scalability structure present
)

// Vp9Descriptor carries the subset of the VP9 RTP payload descriptor the
// temporal-layer filter needs: which temporal (and, incidentally,
// spatial) layer a packet belongs to, and whether it starts a keyframe.
type Vp9Descriptor struct {
	PictureID *uint16 // 7 or 15 bits, nil if the I bit was unset
	TID       uint8   // temporal layer id, 0..7
	SID       *uint8  // spatial layer id, nil if the L bit was unset
	Keyframe  bool
}

// ParseVp9Descriptor parses the leading bytes of a VP9 RTP payload.
//
// Truncated input fails closed: the returned descriptor always has
// TID==0, so a malformed packet is treated as base layer rather than
// silently dropped by the caller.
func ParseVp9Descriptor(payload []byte) Vp9Descriptor {
	if len(payload) == 0 {
		return Vp9Descriptor{}
	}

	b0 := payload[0]
	hasPictureID := b0&vp9FlagI != 0
	interPicture := b0&vp9FlagP != 0
	hasLayerIndices := b0&vp9FlagL != 0
	startOfFrame := b0&vp9FlagB != 0

	offset := 1

	var pictureID *uint16
	if hasPictureID {
		if offset >= len(payload) {
			return Vp9Descriptor{} // truncated: TID stays 0
		}
		pidByte := payload[offset]
		extended := pidByte&0x80 != 0
		if extended {
			if offset+1 >= len(payload) {
				return Vp9Descriptor{}
			}
			v := uint16(pidByte&0x7f)<<8 | uint16(payload[offset+1])
			pictureID = &v
			offset += 2
		} else {
			v := uint16(pidByte & 0x7f)
			pictureID = &v
			offset++
		}
	}

	var sid *uint8
	var tid uint8
	if hasLayerIndices {
		if offset >= len(payload) {
			return Vp9Descriptor{PictureID: pictureID} // truncated: TID stays 0
		}
		layerByte := payload[offset]
		tid = (layerByte >> 5) & 0x07
		s := (layerByte >> 1) & 0x07
		sid = &s
	}

	keyframe := !interPicture && startOfFrame && (sid == nil || *sid == 0)

	return Vp9Descriptor{
		PictureID: pictureID,
		TID:       tid,
		SID:       sid,
		Keyframe:  keyframe,
	}
}
