package pacer

import (
	"sort"

	"github.com/gammazero/deque"

	"github.com/kslab/svc-relay/pkg/rtp"
)

// PriorityClass orders which traffic a PriorityPacer drains first.
// Lower values win; the gap between Audio and Video is intentional
// (it mirrors the RTX/AUDIO/VIDEO/OTHER scheme these values name, and
// leaves room to slot in a class between them later).
type PriorityClass int

const (
	PriorityRTX   PriorityClass = 0
	PriorityAudio PriorityClass = 1
	PriorityVideo PriorityClass = 3
	PriorityOther PriorityClass = 4

	// maxFramesPerClass is the advisory eviction threshold: once a
	// priority class is tracking more frames than this, the oldest is
	// dropped to bound memory under sustained congestion.
	maxFramesPerClass = 10
)

// FrameKey identifies one frame within a priority class: its temporal
// layer and its unwrapped RTP timestamp.
type FrameKey struct {
	Layer       int
	UnwrappedTS int64
}

// less orders FrameKeys first by layer ascending (base layer wins),
// then by timestamp ascending (older frame wins).
func (k FrameKey) less(other FrameKey) bool {
	if k.Layer != other.Layer {
		return k.Layer < other.Layer
	}
	return k.UnwrappedTS < other.UnwrappedTS
}

type classQueues struct {
	frames map[FrameKey]*deque.Deque[rtp.Packet]
	keys   []FrameKey // kept sorted ascending per FrameKey.less
}

func newClassQueues() *classQueues {
	return &classQueues{frames: make(map[FrameKey]*deque.Deque[rtp.Packet])}
}

func (c *classQueues) insertKey(k FrameKey) {
	i := sort.Search(len(c.keys), func(i int) bool { return !c.keys[i].less(k) })
	if i < len(c.keys) && c.keys[i] == k {
		return
	}
	c.keys = append(c.keys, FrameKey{})
	copy(c.keys[i+1:], c.keys[i:])
	c.keys[i] = k
}

func (c *classQueues) removeKey(k FrameKey) {
	for i, existing := range c.keys {
		if existing == k {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			return
		}
	}
}

// PriorityPacer is the multi-class variant of Pacer: the same
// byte-budget arithmetic drains a priority_class -> (layer,
// unwrapped_ts) -> frame structure instead of a flat FIFO, so audio
// and base-layer video are never starved behind a backlog of higher
// temporal layers.
type PriorityPacer struct {
	cfg Config

	targetBitrate    uint64
	maxBytesInBudget int64
	bytesRemaining   int64

	classes map[PriorityClass]*classQueues

	lastMs   int64
	haveLast bool
}

// NewPriorityPacer creates a PriorityPacer. Any zero Config field is
// replaced with its documented default.
func NewPriorityPacer(cfg Config) *PriorityPacer {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Headroom == 0 {
		cfg.Headroom = defaultHeadroom
	}
	if cfg.BucketSeconds == 0 {
		cfg.BucketSeconds = defaultBucketSeconds
	}

	p := &PriorityPacer{
		cfg:     cfg,
		classes: make(map[PriorityClass]*classQueues),
	}
	for _, class := range []PriorityClass{PriorityRTX, PriorityAudio, PriorityVideo, PriorityOther} {
		p.classes[class] = newClassQueues()
	}
	return p
}

// UpdateBitrate recomputes the target bitrate and budget ceiling,
// clamping bytes_remaining to the new bounds. Same arithmetic as
// Pacer.UpdateBitrate.
func (p *PriorityPacer) UpdateBitrate(bps uint64) {
	p.targetBitrate = uint64(float64(bps) * p.cfg.Headroom)
	p.maxBytesInBudget = int64(float64(p.targetBitrate) / 8 * p.cfg.BucketSeconds)

	if p.bytesRemaining > p.maxBytesInBudget {
		p.bytesRemaining = p.maxBytesInBudget
	}
	if p.bytesRemaining < -p.maxBytesInBudget {
		p.bytesRemaining = -p.maxBytesInBudget
	}
}

// Enqueue appends pkt to the tail of its (class, layer, ts) frame
// queue, creating the queue on first sight. If the class now tracks
// more than maxFramesPerClass frames, the oldest is evicted.
func (p *PriorityPacer) Enqueue(class PriorityClass, key FrameKey, pkt rtp.Packet) {
	c, ok := p.classes[class]
	if !ok {
		c = newClassQueues()
		p.classes[class] = c
	}

	q, exists := c.frames[key]
	if !exists {
		q = new(deque.Deque[rtp.Packet])
		c.frames[key] = q
		c.insertKey(key)
	}
	q.PushBack(pkt)

	p.dropOldFrame(c)
}

// dropOldFrame evicts the oldest frame in a class once it grows past
// maxFramesPerClass. This path is advisory: nothing in the relay
// normally produces enough concurrent frames per class to trigger it,
// but it bounds memory under sustained congestion.
func (p *PriorityPacer) dropOldFrame(c *classQueues) {
	for len(c.keys) > maxFramesPerClass {
		oldest := c.keys[0]
		for _, k := range c.keys[1:] {
			if k.UnwrappedTS < oldest.UnwrappedTS {
				oldest = k
			}
		}
		delete(c.frames, oldest)
		c.removeKey(oldest)
	}
}

// Run drives the pacer from an external clock. The first call only
// records now_ms and returns nil; subsequent calls replenish the
// budget by `target_bitrate/8 * (now_ms-last_ms)/1000` bytes and
// return every packet the budget allows, in priority order.
func (p *PriorityPacer) Run(nowMs int64) []rtp.Packet {
	if !p.haveLast {
		p.haveLast = true
		p.lastMs = nowMs
		return nil
	}

	elapsedSec := float64(nowMs-p.lastMs) / 1000
	p.lastMs = nowMs
	step := int64(float64(p.targetBitrate) / 8 * elapsedSec)

	if p.bytesRemaining < 0 {
		p.bytesRemaining += step
		if p.bytesRemaining > p.maxBytesInBudget {
			p.bytesRemaining = p.maxBytesInBudget
		}
	} else {
		p.bytesRemaining = step
		if p.bytesRemaining > p.maxBytesInBudget {
			p.bytesRemaining = p.maxBytesInBudget
		}
	}

	var drained []rtp.Packet
	for p.bytesRemaining > 0 {
		class, key, ok := p.nextFrame()
		if !ok {
			break
		}

		c := p.classes[class]
		q := c.frames[key]
		pkt := q.PopFront()
		p.bytesRemaining -= int64(len(pkt.Payload))
		if p.bytesRemaining < -p.maxBytesInBudget {
			p.bytesRemaining = -p.maxBytesInBudget
		}
		drained = append(drained, pkt)

		if q.Len() == 0 {
			delete(c.frames, key)
			c.removeKey(key)
		} else if class == PriorityVideo && p.bytesRemaining <= 0 {
			// Budget exhausted mid-frame: raise this frame's priority
			// so it's flushed ahead of newer frames of the same layer
			// on the next tick, preserving frame integrity. Only the
			// video class is structured by temporal layer, so only its
			// backlog is reordered this way.
			c.removeKey(key)
			raised := FrameKey{Layer: maxInt(key.Layer-1, 0), UnwrappedTS: key.UnwrappedTS}
			delete(c.frames, key)

			video := p.classes[PriorityVideo]
			if existing, ok := video.frames[raised]; ok {
				for q.Len() > 0 {
					existing.PushBack(q.PopFront())
				}
			} else {
				video.frames[raised] = q
				video.insertKey(raised)
			}
		}
	}

	return drained
}

// nextFrame finds the smallest non-empty priority class and, within
// it, the smallest (layer, ts) key.
func (p *PriorityPacer) nextFrame() (PriorityClass, FrameKey, bool) {
	classesInOrder := []PriorityClass{PriorityRTX, PriorityAudio, PriorityVideo, PriorityOther}
	for _, class := range classesInOrder {
		c, ok := p.classes[class]
		if !ok || len(c.keys) == 0 {
			continue
		}
		return class, c.keys[0], true
	}
	return 0, FrameKey{}, false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
