package chat

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/clock"
)

// staleAfter is how long an idle sender's bucket is kept.
const staleAfter = 10 * time.Minute

// Limiter enforces a per-sender token bucket on chat forwarded to the
// backend. A zero rate disables it.
type Limiter struct {
	clock clock.Clock
	r     rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows perMinute messages per sender with the given burst.
func NewLimiter(clk clock.Clock, perMinute, burst int) *Limiter {
	if clk == nil {
		clk = clock.Real()
	}
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if perMinute > 0 {
		r = rate.Limit(float64(perMinute) / 60.0)
	}
	return &Limiter{clock: clk, r: r, burst: burst, limiters: make(map[string]*limiterEntry)}
}

// Enabled reports whether limiting is active.
func (l *Limiter) Enabled() bool { return l.r > 0 }

// Allow reports whether sender may send now.
func (l *Limiter) Allow(sender string) bool {
	if l.r == 0 {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)

	entry, ok := l.limiters[sender]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.r, l.burst)}
		l.limiters[sender] = entry
	}
	entry.lastSeen = now
	if !entry.limiter.AllowN(now, 1) {
		slog.Warn("chat: sender rate limited", "sender", sender)
		return false
	}
	return true
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-staleAfter)
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}
