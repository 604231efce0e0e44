// Package interaction tracks when a human last engaged with the agent.
package interaction

import (
	"time"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/clock"
)

// DefaultWindow is how long an exchange counts as ongoing.
const DefaultWindow = 60 * time.Second

// Tracker answers "is a human exchange in progress?". Idle behavior and
// greetings are suppressed while it reports true.
type Tracker struct {
	clock  clock.Clock
	window time.Duration
	last   time.Time
}

// NewTracker creates a tracker. window <= 0 uses DefaultWindow.
func NewTracker(clk clock.Clock, window time.Duration) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{clock: clk, window: window}
}

// Mark records an interaction now and returns its timestamp.
func (t *Tracker) Mark() time.Time {
	t.last = t.clock.Now()
	return t.last
}

// IsInteracting reports whether less than the window has elapsed since the
// last Mark.
func (t *Tracker) IsInteracting() bool {
	if t.last.IsZero() {
		return false
	}
	return t.clock.Now().Sub(t.last) < t.window
}

// LastInteraction returns the time of the last Mark, zero if none.
func (t *Tracker) LastInteraction() time.Time { return t.last }

// SetWindow changes the window for subsequent checks.
func (t *Tracker) SetWindow(d time.Duration) {
	if d > 0 {
		t.window = d
	}
}
