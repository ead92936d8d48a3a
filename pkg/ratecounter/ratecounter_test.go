package ratecounter

import "testing"

func TestRateCounterNeedsTwoSamples(t *testing.T) {
	rc := New(DefaultWindowMs)

	if _, ok := rc.Rate(0); ok {
		t.Fatalf("rate with no samples should be not-ok")
	}

	rc.Add(100, 0)
	if _, ok := rc.Rate(0); ok {
		t.Fatalf("rate with one sample should be not-ok")
	}
}

func TestRateCounterBasic(t *testing.T) {
	rc := New(1000)
	rc.Add(100, 0)
	rc.Add(100, 500)

	rate, ok := rc.Rate(500)
	if !ok {
		t.Fatalf("expected ok")
	}
	// sum=200 bytes over actual span 500ms (window not yet full) -> 200*8*1000/500 = 3200bps
	if rate != 3200 {
		t.Errorf("rate = %d, want 3200", rate)
	}
}

func TestRateCounterExpiry(t *testing.T) {
	rc := New(1000)
	rc.Add(100, 0)
	rc.Add(100, 100)
	rc.Add(100, 2000)

	// Both earlier samples are >= 1000ms old at t=2000 and expire, leaving
	// only the most recent sample: not enough to report a rate.
	if _, ok := rc.Rate(2000); ok {
		t.Fatalf("expected not-ok once expiry leaves a single sample")
	}
}

func TestRateCounterIdempotent(t *testing.T) {
	rc := New(1000)
	rc.Add(50, 0)
	rc.Add(50, 200)
	rc.Add(50, 400)

	r1, ok1 := rc.Rate(400)
	r2, ok2 := rc.Rate(400)

	if ok1 != ok2 || r1 != r2 {
		t.Errorf("consecutive Rate() calls diverged: (%d,%v) vs (%d,%v)", r1, ok1, r2, ok2)
	}
}

func TestRateCounterWindowedExpiry(t *testing.T) {
	rc := New(500)
	rc.Add(1000, 0)
	rc.Add(1000, 100)

	// At t=700, both samples are at least 500ms old (700ms and 600ms) and expire.
	rate, ok := rc.Rate(700)
	if !ok {
		// no samples remain, need >= 2.
		return
	}
	if rate == 0 {
		t.Errorf("expected non-zero rate, got ok=%v rate=%d", ok, rate)
	}
}
