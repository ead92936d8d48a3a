package relay

import "errors"

// Sentinel errors naming the kinds of failure a session can meet. The
// session's loops log their failures themselves; they do not return
// or wrap these values.
var (
	// ErrMalformedInput marks a sample the core could not parse (a
	// truncated VP9 descriptor, an unknown TWCC sequence number). The
	// sample is skipped; the base layer must still pass.
	ErrMalformedInput = errors.New("relay: malformed input")

	// ErrNoBandwidthEstimate marks the absence of any bandwidth
	// estimate. The filter falls back to admitting only the base
	// layer.
	ErrNoBandwidthEstimate = errors.New("relay: no bandwidth estimate available")

	// ErrFeedbackLoop marks a failure in the feedback task. The task
	// logs and exits; the session survives with a frozen BWE but a
	// live pacer and relay.
	ErrFeedbackLoop = errors.New("relay: feedback loop failed")

	// ErrFatal marks cancellation of the relay task, which tears down
	// the whole session.
	ErrFatal = errors.New("relay: fatal session error")
)

// RelayError wraps one of the sentinels above with the context of
// where it happened.
type RelayError struct {
	Op  string
	Err error
}

func (e *RelayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// newRelayError constructs a RelayError so errors.Is still matches the
// wrapped sentinel.
func newRelayError(op string, sentinel error) *RelayError {
	return &RelayError{Op: op, Err: sentinel}
}
