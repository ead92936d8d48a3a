// Package bwe implements a delay-based bandwidth estimator approximating
// the send-side controller of WebRTC's transport-wide congestion
// control (Google Congestion Control). It ingests per-packet
// send/receive samples and periodically produces a single estimated
// downlink bitrate.
package bwe

import "github.com/kslab/svc-relay/pkg/ratecounter"

// OveruseState is the overuse detector's state.
type OveruseState int

const (
	Hold OveruseState = iota
	Normal
	OverUsing
	UnderUsing
)

// RateControlState is the rate-control state machine's state.
type RateControlState int

const (
	RateHold RateControlState = iota
	RateIncrease
	RateDecrease
)

// Config holds the estimator's tunables. Zero-value fields are
// replaced with their documented defaults by New.
type Config struct {
	ResponseIntervalMs int64   // bwe.response_interval, default 100
	DecreaseFactor     float64 // bwe.decrease_factor, default 0.85
	IncreaseFactor     float64 // bwe.increase_factor, default 1.08
	OveruseThresholdMs float64 // bwe.overuse_threshold_init, default 12.5
	InitialBitrateBps  uint64
}

const (
	defaultResponseIntervalMs = 100
	defaultDecreaseFactor     = 0.85
	defaultIncreaseFactor     = 1.08
	defaultOveruseThresholdMs = 12.5
	defaultInitialBitrateBps  = 300_000
	minBitrateBps             = 10_000

	// burstThresholdMs folds packets whose send gap is within this
	// window into the same arrival group (§4.4 rule a), and is also
	// the burst allowance in the inter-arrival boundary test (rule b).
	burstThresholdMs = 5.0

	// Trendline filter smoothing factor.
	smoothingFactor = 0.9

	// Adaptive threshold gains, matching the classic overuse estimator:
	// the threshold chases the filtered estimate faster when it is
	// rising than when it is falling.
	thresholdGainUp   = 0.01
	thresholdGainDown = 0.00018

	thresholdMinMs = 6.0
	thresholdMaxMs = 600.0

	// Minimum time the filtered delay must have stayed positive before a
	// crossed threshold is trusted as a real overuse rather than noise.
	// Underuse is reported without this wait.
	sustainedMs = 10.0

	// Additive increase step, approximating half a packet's worth of
	// bits per response period for a ~1200 byte packet.
	additiveIncreaseBitsPerPeriod = 4800
)

// group is a maximal burst of packets folded together by the arrival
// grouping rules.
type group struct {
	firstSendMs    int64
	firstReceiveMs int64
	lastSendMs     int64
	lastReceiveMs  int64
	payloadSize    int
}

// Estimator is the delay-based bandwidth estimator. It is not safe for
// concurrent use; the orchestrator's feedback loop owns it exclusively.
type Estimator struct {
	cfg Config

	ackedRate *ratecounter.RateCounter

	current   *group
	lastGroup *group

	filteredDelay float64
	threshold     float64
	trendSince    int64
	trendRising   bool

	overuseState OveruseState
	rateState    RateControlState

	estimate         uint64
	lastCongestionBw uint64

	lastResponseMs int64
	haveResponded  bool
}

// New creates an Estimator. Any zero Config field is replaced with its
// documented default.
func New(cfg Config) *Estimator {
	if cfg.ResponseIntervalMs == 0 {
		cfg.ResponseIntervalMs = defaultResponseIntervalMs
	}
	if cfg.DecreaseFactor == 0 {
		cfg.DecreaseFactor = defaultDecreaseFactor
	}
	if cfg.IncreaseFactor == 0 {
		cfg.IncreaseFactor = defaultIncreaseFactor
	}
	if cfg.OveruseThresholdMs == 0 {
		cfg.OveruseThresholdMs = defaultOveruseThresholdMs
	}
	if cfg.InitialBitrateBps == 0 {
		cfg.InitialBitrateBps = defaultInitialBitrateBps
	}

	return &Estimator{
		cfg:       cfg,
		ackedRate: ratecounter.New(ratecounter.DefaultWindowMs),
		threshold: cfg.OveruseThresholdMs,
		estimate:  cfg.InitialBitrateBps,
	}
}

// Add ingests one received sample and reports a new bitrate estimate
// at most once per response interval. Callers must feed samples sorted
// ascending by receiveMs; missing send timestamps must never reach
// here (the caller is responsible for dropping those samples rather
// than failing the estimator).
func (e *Estimator) Add(receiveMs, sendMs int64, payloadSize int) (uint64, bool) {
	e.ackedRate.Add(payloadSize, receiveMs)
	e.foldIntoGroup(sendMs, receiveMs, payloadSize)

	if !e.haveResponded {
		e.haveResponded = true
		e.lastResponseMs = receiveMs
		return 0, false
	}

	if receiveMs-e.lastResponseMs < e.cfg.ResponseIntervalMs {
		return 0, false
	}
	e.lastResponseMs = receiveMs

	return e.runRateControl(receiveMs), true
}

// foldIntoGroup applies the arrival grouping rules of §4.4, closing and
// evaluating a group boundary when one is crossed.
func (e *Estimator) foldIntoGroup(sendMs, receiveMs int64, payloadSize int) {
	if e.current == nil {
		e.current = &group{
			firstSendMs:    sendMs,
			firstReceiveMs: receiveMs,
			lastSendMs:     sendMs,
			lastReceiveMs:  receiveMs,
			payloadSize:    payloadSize,
		}
		return
	}

	sendDelta := sendMs - e.current.lastSendMs
	arrivalDelta := receiveMs - e.current.lastReceiveMs

	boundary := sendDelta > burstThresholdMs ||
		(arrivalDelta > 0 && sendDelta > 0 && float64(arrivalDelta) > float64(sendDelta)+burstThresholdMs)

	if !boundary {
		e.current.lastSendMs = sendMs
		e.current.lastReceiveMs = receiveMs
		e.current.payloadSize += payloadSize
		return
	}

	closed := e.current
	e.current = &group{
		firstSendMs:    sendMs,
		firstReceiveMs: receiveMs,
		lastSendMs:     sendMs,
		lastReceiveMs:  receiveMs,
		payloadSize:    payloadSize,
	}

	if e.lastGroup != nil {
		d := float64((closed.lastReceiveMs - e.lastGroup.lastReceiveMs) -
			(closed.lastSendMs - e.lastGroup.lastSendMs))
		e.updateTrendline(d, closed.lastReceiveMs)
	}
	e.lastGroup = closed
}

// updateTrendline feeds one inter-group delay gradient into the
// smoothing filter, adapts the threshold, and updates the overuse
// detector's state.
func (e *Estimator) updateTrendline(d float64, nowMs int64) {
	e.filteredDelay = smoothingFactor*e.filteredDelay + (1-smoothingFactor)*d

	gain := thresholdGainDown
	if absF(e.filteredDelay) > e.threshold {
		gain = thresholdGainUp
	}
	e.threshold += gain * (absF(e.filteredDelay) - e.threshold)
	e.threshold = clampF(e.threshold, thresholdMinMs, thresholdMaxMs)

	rising := e.filteredDelay > 0
	if rising != e.trendRising {
		e.trendSince = nowMs
		e.trendRising = rising
	}
	sustained := nowMs-e.trendSince >= sustainedMs

	switch {
	case e.filteredDelay > e.threshold && sustained:
		e.overuseState = OverUsing
	case e.filteredDelay < -e.threshold:
		e.overuseState = UnderUsing
	default:
		e.overuseState = Normal
	}
}

// runRateControl applies the rate-control state machine once per
// response interval and returns the resulting estimate.
func (e *Estimator) runRateControl(nowMs int64) uint64 {
	measured, ok := e.ackedRate.Rate(nowMs)
	if !ok {
		measured = e.estimate
	}

	switch e.overuseState {
	case OverUsing:
		e.rateState = RateDecrease
		e.lastCongestionBw = e.estimate
		e.estimate = uint64(float64(measured) * e.cfg.DecreaseFactor)
	case UnderUsing:
		e.rateState = RateHold
	default:
		e.rateState = RateIncrease
		nearCongestion := e.lastCongestionBw != 0 &&
			float64(e.estimate) >= 0.95*float64(e.lastCongestionBw)
		if nearCongestion {
			e.estimate += additiveIncreaseBitsPerPeriod
		} else {
			e.estimate = uint64(float64(e.estimate) * e.cfg.IncreaseFactor)
		}
	}

	if e.estimate < minBitrateBps {
		e.estimate = minBitrateBps
	}
	return e.estimate
}

// OveruseState returns the overuse detector's current state.
func (e *Estimator) OveruseState() OveruseState {
	return e.overuseState
}

// RateControlState returns the rate-control state machine's current
// state.
func (e *Estimator) RateControlState() RateControlState {
	return e.rateState
}

// Estimate returns the last bitrate estimate produced, or the
// configured initial bitrate if Add has never reported.
func (e *Estimator) Estimate() uint64 {
	return e.estimate
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
