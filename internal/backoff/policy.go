// Package backoff computes reconnect delays for the backend channel.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy controls exponential backoff with multiplicative jitter.
type Policy struct {
	Base        time.Duration // delay for attempt 1 (default 5s)
	Cap         time.Duration // upper bound on any delay (default 60s)
	MaxAttempts int           // ShouldRetry turns false at this count (default 10)
	JitterMin   float64       // lower jitter factor (default 0.9)
	JitterMax   float64       // upper jitter factor (default 1.1)

	// Float64 returns a uniform value in [0,1). Nil uses math/rand/v2.
	Float64 func() float64
}

// DefaultPolicy returns the production reconnect policy.
func DefaultPolicy() Policy {
	return Policy{
		Base:        5 * time.Second,
		Cap:         60 * time.Second,
		MaxAttempts: 10,
		JitterMin:   0.9,
		JitterMax:   1.1,
	}
}

// ShouldRetry reports whether another attempt may be scheduled after
// attempt consecutive failures.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// DelayFor returns min(Cap, Base * 2^(attempt-1) * jitter).
// Attempts below 1 are treated as 1.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(p.Base) * math.Pow(2, float64(attempt-1))
	delay := exp * p.jitter()
	if limit := float64(p.Cap); p.Cap > 0 && delay > limit {
		delay = limit
	}
	return time.Duration(delay)
}

func (p Policy) jitter() float64 {
	lo, hi := p.JitterMin, p.JitterMax
	if lo == 0 && hi == 0 {
		return 1
	}
	rnd := p.Float64
	if rnd == nil {
		rnd = rand.Float64
	}
	return lo + rnd()*(hi-lo)
}
