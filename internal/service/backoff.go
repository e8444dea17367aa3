package service

import (
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays of base * 2^attempts, stretched by up to Jitter and capped at Max.
// With Jitter at most 1 the jittered delay of one attempt never exceeds the unjittered delay of the
// next, so the delays seen by a single row never shrink.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	rand func() float64
}

func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{Base: base, Max: max, Jitter: jitter, rand: rand.Float64}
}

// Delay returns the wait before the next attempt of a row that has already failed attemptCount times.
func (b *Backoff) Delay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	d := b.Base
	for i := 0; i < attemptCount && d < b.Max; i++ {
		d *= 2
	}
	if d >= b.Max {
		return b.Max
	}

	if b.Jitter > 0 && b.rand != nil {
		d += time.Duration(float64(d) * b.Jitter * b.rand())
	}
	return min(d, b.Max)
}
