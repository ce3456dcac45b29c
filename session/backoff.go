package session

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes reconnect delays: base doubled per attempt,
// clamped to Max, with a symmetric jitter fraction applied on top.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the delay, 0 disables jitter

	// test hook, nil means math/rand
	randFloat func() float64
}

// DefaultBackoff mirrors common client reconnect settings: 1s base, 30s
// cap, 20% jitter.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: 0.2,
	}
}

// Delay returns the wait before reconnect attempt n (zero-based). It is
// always within [Base*2^n*(1-Jitter), min(Base*2^n, Max)*(1+Jitter)] and
// never negative.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}

	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}

	if p.Jitter > 0 {
		rnd := p.randFloat
		if rnd == nil {
			rnd = rand.Float64
		}
		factor := 1 + p.Jitter*(2*rnd()-1)
		d = time.Duration(float64(d) * factor)
	}
	if d < 0 {
		d = 0
	}
	return d
}
