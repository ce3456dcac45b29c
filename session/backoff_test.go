package session

import (
	"testing"
	"time"
)

func TestDelayDoublesAndClamps(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 10 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 30 * time.Second, Jitter: 0.2}

	for _, rnd := range []float64{0, 0.25, 0.5, 0.75, 1} {
		p.randFloat = func() float64 { return rnd }
		got := p.Delay(1)
		lo := time.Duration(float64(2*time.Second) * 0.8)
		hi := time.Duration(float64(2*time.Second) * 1.2)
		if got < lo || got > hi {
			t.Errorf("Delay with rnd=%v = %v, outside [%v, %v]", rnd, got, lo, hi)
		}
	}
}

func TestDelayJitterExtremes(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 30 * time.Second, Jitter: 0.2}

	p.randFloat = func() float64 { return 0 }
	if got := p.Delay(0); got != 800*time.Millisecond {
		t.Errorf("lower bound = %v, want 800ms", got)
	}
	p.randFloat = func() float64 { return 1 }
	if got := p.Delay(0); got != 1200*time.Millisecond {
		t.Errorf("upper bound = %v, want 1200ms", got)
	}
}

func TestDelayZeroBase(t *testing.T) {
	var p BackoffPolicy
	if got := p.Delay(3); got != 0 {
		t.Errorf("Delay with zero base = %v, want 0", got)
	}
}
