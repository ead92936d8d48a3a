// Package wrap provides wrap-aware comparison and subtraction for the
// 16-bit RTP sequence number and 32-bit RTP timestamp spaces, plus a
// unwrapper for turning a wrapping counter into a 64-bit value that
// keeps advancing across the wrap instead of resetting.
package wrap

// Uint16Gt reports whether a is "after" b in a 16-bit sequence number
// space, accounting for wraparound (RFC 1982 serial number arithmetic).
func Uint16Gt(a, b uint16) bool {
	return (int16(b) - int16(a)) < 0
}

// Uint16Sub returns a-b as a signed difference in a wrap-aware 16-bit
// sequence number space.
func Uint16Sub(a, b uint16) int16 {
	return int16(a - b)
}

// Uint32Gt reports whether a is "after" b in a 32-bit space, accounting
// for wraparound.
func Uint32Gt(a, b uint32) bool {
	return (int32(b) - int32(a)) < 0
}

// Uint32Sub returns a-b as a signed difference in a wrap-aware 32-bit
// space.
func Uint32Sub(a, b uint32) int32 {
	return int32(a - b)
}

// Uint32Unwrapper turns a sequence of uint32 values that may wrap at
// 2^32 into a monotonically non-decreasing int64 sequence. It assumes
// inputs are fed in the order they should be considered "happening" in
// (e.g. send order), not necessarily numeric order.
type Uint32Unwrapper struct {
	initialized bool
	lastValue   uint32
	total       int64
}

// Unwrap consumes the next raw value, in the order it should be
// considered as having occurred, and returns its unwrapped form. The
// wrap-aware signed delta from the previous value is accumulated onto a
// running total, so a forward wrap (0xFFFFFFFF -> 0x00000001) keeps
// advancing the total instead of resetting it.
func (u *Uint32Unwrapper) Unwrap(v uint32) int64 {
	if !u.initialized {
		u.initialized = true
		u.lastValue = v
		u.total = int64(v)
		return u.total
	}

	u.total += int64(Uint32Sub(v, u.lastValue))
	u.lastValue = v

	return u.total
}
