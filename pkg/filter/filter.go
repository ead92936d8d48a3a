// Package filter implements the per-packet temporal-layer admission
// decision: given the latest bandwidth estimate and the running rate
// of each observed (flow, layer) pair, decide whether a video sample
// should be forwarded downstream.
package filter

import (
	"sort"

	"github.com/kslab/svc-relay/pkg/ratecounter"
)

const (
	defaultUsageCoef      = 0.98
	defaultBurstUsageCoef = 1.10
	defaultFrameSizeKB    = 5

	txRateWindowMs      = ratecounter.TxWindowMs
	shortTxRateWindowMs = ratecounter.ShortTxWindowMs
	otherRateWindowMs   = ratecounter.TxWindowMs
)

// layerKey identifies one observed (flow, temporal layer) pair.
type layerKey struct {
	flowID int
	layer  int
}

// Config holds the filter's exposed constructor parameters.
type Config struct {
	UsageCoef      float64 // filter.usage_coef, default 0.98
	BurstUsageCoef float64 // filter.burst_usage_coef, default 1.10
	DefaultFrameKB int     // filter.default_frame_kb, default 5
}

// Filter is the temporal-layer admission filter. It is not safe for
// concurrent use; the session's relay task owns it exclusively.
type Filter struct {
	cfg Config

	layers map[layerKey]*ratecounter.RateCounter

	txRate      *ratecounter.RateCounter
	shortTxRate *ratecounter.RateCounter
	otherRate   *ratecounter.RateCounter

	availableBitrate     uint64
	haveAvailableBitrate bool
}

// New creates a Filter. Any zero Config field is replaced with its
// documented default.
func New(cfg Config) *Filter {
	if cfg.UsageCoef == 0 {
		cfg.UsageCoef = defaultUsageCoef
	}
	if cfg.BurstUsageCoef == 0 {
		cfg.BurstUsageCoef = defaultBurstUsageCoef
	}
	if cfg.DefaultFrameKB == 0 {
		cfg.DefaultFrameKB = defaultFrameSizeKB
	}

	return &Filter{
		cfg:         cfg,
		layers:      make(map[layerKey]*ratecounter.RateCounter),
		txRate:      ratecounter.New(txRateWindowMs),
		shortTxRate: ratecounter.New(shortTxRateWindowMs),
		otherRate:   ratecounter.New(otherRateWindowMs),
	}
}

// UpdateAvailableBitrate records the latest bandwidth estimate. An
// absent estimate (never called, or explicitly cleared) means only the
// base layer is ever admitted.
func (f *Filter) UpdateAvailableBitrate(bps uint64) {
	f.availableBitrate = bps
	f.haveAvailableBitrate = true
}

// ClearAvailableBitrate reverts the filter to base-layer-only
// admission, e.g. when the feedback loop has died.
func (f *Filter) ClearAvailableBitrate() {
	f.availableBitrate = 0
	f.haveAvailableBitrate = false
}

// rateCounterFor returns (creating on first sight) the RateCounter for
// a (flowID, layer) pair.
func (f *Filter) rateCounterFor(flowID, layer int) *ratecounter.RateCounter {
	key := layerKey{flowID: flowID, layer: layer}
	rc, ok := f.layers[key]
	if !ok {
		rc = ratecounter.New(txRateWindowMs)
		f.layers[key] = rc
	}
	return rc
}

// AddVideoSample runs the admission algorithm for one packet and
// reports whether it should be forwarded. Base layer (layer 0) always
// passes.
func (f *Filter) AddVideoSample(flowID, layer, dataBytes int, nowMs int64) bool {
	layerRate := f.rateCounterFor(flowID, layer)
	layerRate.Add(dataBytes, nowMs)

	if layer == 0 {
		f.admit(dataBytes, nowMs)
		return true
	}

	if !f.haveAvailableBitrate {
		return false
	}

	currentLayerNeed := rateOrZero(layerRate, nowMs)

	otherNeed := rateOrZero(f.otherRate, nowMs)
	priorNeed := otherNeed + f.lowerLayerRates(flowID, layer, nowMs)
	totalNeed := priorNeed + currentLayerNeed
	totalAvailable := float64(f.availableBitrate) * f.cfg.UsageCoef

	if float64(totalNeed) <= totalAvailable {
		f.admit(dataBytes, nowMs)
		return true
	}
	if totalAvailable <= float64(priorNeed) {
		return false
	}

	txRate := rateOrZero(f.txRate, nowMs)
	if float64(txRate)+float64(dataBytes)*8 > totalAvailable*f.cfg.UsageCoef {
		return false
	}

	shortTxRate := rateOrZero(f.shortTxRate, nowMs)
	if float64(shortTxRate)+float64(dataBytes)*8 > totalAvailable*f.cfg.BurstUsageCoef {
		return false
	}

	if float64(txRate)+float64(f.cfg.DefaultFrameKB)*8000 < totalAvailable {
		f.admit(dataBytes, nowMs)
		return true
	}

	return false
}

// admit records a passed sample against tx_rate and short_tx_rate.
// other_rate is never updated here: it only accounts for layers the
// filter is not currently evaluating (§4.5).
func (f *Filter) admit(dataBytes int, nowMs int64) {
	f.txRate.Add(dataBytes, nowMs)
	f.shortTxRate.Add(dataBytes, nowMs)
}

// lowerLayerRates sums the rate of every discovered layer below
// `layer` for the given flow, ordered ascending by (flowID, layer) as
// specified, though summation itself is order-independent.
func (f *Filter) lowerLayerRates(flowID, layer int, nowMs int64) uint64 {
	keys := make([]layerKey, 0, len(f.layers))
	for k := range f.layers {
		if k.flowID == flowID && k.layer < layer {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].flowID != keys[j].flowID {
			return keys[i].flowID < keys[j].flowID
		}
		return keys[i].layer < keys[j].layer
	})

	var sum uint64
	for _, k := range keys {
		sum += rateOrZero(f.layers[k], nowMs)
	}
	return sum
}

func rateOrZero(rc *ratecounter.RateCounter, nowMs int64) uint64 {
	rate, ok := rc.Rate(nowMs)
	if !ok {
		return 0
	}
	return rate
}
