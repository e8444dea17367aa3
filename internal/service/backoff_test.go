package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	tests := []struct {
		name     string
		jitter   float64
		rand     float64
		attempts int
		want     time.Duration
	}{
		{name: "first retry", attempts: 0, want: 2 * time.Second},
		{name: "doubles", attempts: 3, want: 16 * time.Second},
		{name: "capped", attempts: 10, want: 5 * time.Minute},
		{name: "negative treated as zero", attempts: -1, want: 2 * time.Second},
		{name: "jitter stretches", jitter: 0.5, rand: 0.5, attempts: 1, want: 5 * time.Second},
		{name: "jitter never passes the cap", jitter: 1, rand: 0.99, attempts: 7, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(2*time.Second, 5*time.Minute, tt.jitter)
			b.rand = func() float64 { return tt.rand }
			assert.Equal(t, tt.want, b.Delay(tt.attempts))
		})
	}
}

func TestBackoff_NonDecreasingWithJitter(t *testing.T) {
	b := NewBackoff(2*time.Second, 5*time.Minute, 1)
	for run := 0; run < 200; run++ {
		prev := time.Duration(0)
		for attempts := 0; attempts < 12; attempts++ {
			d := b.Delay(attempts)
			assert.GreaterOrEqual(t, d, prev, "attempt %d", attempts)
			assert.LessOrEqual(t, d, 5*time.Minute)
			prev = d
		}
	}
}
