// Package idle schedules the autonomous "alive" behavior an agent shows when
// nothing more important is going on: occasional idle animations and small
// look-around turns.
package idle

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/animation"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/loop"
)

const (
	DefaultAnimationPeriod  = 45 * time.Second
	DefaultDwell            = 5 * time.Second
	DefaultLookAroundPeriod = 25 * time.Second
	DefaultLookAroundArc    = 45.0 // degrees either side
)

// Body is the part of the agent the scheduler reads and drives. All calls
// happen on the agent's event loop.
type Body interface {
	Interacting() bool
	Concerns() animation.Concerns
	SetIdleVariant(animation.Name)
	// LookAround turns the agent yawDeg away from its home orientation
	// without touching the animation.
	LookAround(yawDeg float64)
}

// Config tunes the two cycles.
type Config struct {
	AnimationPeriod  time.Duration
	Dwell            time.Duration
	LookAroundPeriod time.Duration
	LookAroundArc    float64
	Variants         []animation.Name
}

func (c Config) withDefaults() Config {
	if c.AnimationPeriod <= 0 {
		c.AnimationPeriod = DefaultAnimationPeriod
	}
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if c.LookAroundPeriod <= 0 {
		c.LookAroundPeriod = DefaultLookAroundPeriod
	}
	if c.LookAroundArc <= 0 {
		c.LookAroundArc = DefaultLookAroundArc
	}
	if len(c.Variants) == 0 {
		c.Variants = animation.IdleVariants
	}
	return c
}

// Scheduler owns the idle-animation and look-around tasks. Start, Stop and
// every callback run on the loop goroutine.
type Scheduler struct {
	loop *loop.Loop
	body Body
	cfg  Config
	rnd  *rand.Rand

	idleTask  *loop.Task
	lookTask  *loop.Task
	dwellTask *loop.Task
}

// New creates a stopped scheduler. rnd may be nil.
func New(l *loop.Loop, body Body, cfg Config, rnd *rand.Rand) *Scheduler {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Scheduler{loop: l, body: body, cfg: cfg.withDefaults(), rnd: rnd}
}

// Start arms both cycles. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	if s.Running() {
		return
	}
	s.idleTask = s.loop.Every(s.cfg.AnimationPeriod, s.idleTick)
	s.lookTask = s.loop.Every(s.cfg.LookAroundPeriod, s.lookTick)
	slog.Debug("idle: scheduler started",
		"animation_period", s.cfg.AnimationPeriod,
		"look_around_period", s.cfg.LookAroundPeriod,
	)
}

// Stop cancels both cycles. A variant still inside its dwell is reverted to
// neutral idle now, since its revert task will never run.
func (s *Scheduler) Stop() {
	dwelling := s.dwellTask.Active()
	if !s.Running() && !dwelling {
		return
	}
	s.idleTask.Cancel()
	s.lookTask.Cancel()
	s.dwellTask.Cancel()
	s.idleTask, s.lookTask, s.dwellTask = nil, nil, nil
	if dwelling {
		s.body.SetIdleVariant(animation.Idle)
	}
	slog.Debug("idle: scheduler stopped")
}

// Running reports whether the cycles are armed.
func (s *Scheduler) Running() bool {
	return s.idleTask.Active() || s.lookTask.Active()
}

// SetLookAroundArc changes the arc used by future look-around turns.
func (s *Scheduler) SetLookAroundArc(deg float64) {
	if deg > 0 {
		s.cfg.LookAroundArc = deg
	}
}

func (s *Scheduler) idleTick() {
	c := s.body.Concerns()
	if s.body.Interacting() || c.Moving || c.Speaking || c.Thinking {
		return
	}

	variant := s.cfg.Variants[s.rnd.IntN(len(s.cfg.Variants))]
	s.body.SetIdleVariant(variant)
	slog.Debug("idle: playing variant", "animation", variant, "dwell", s.cfg.Dwell)

	s.dwellTask.Cancel()
	s.dwellTask = s.loop.After(s.cfg.Dwell, func() {
		s.dwellTask = nil
		s.body.SetIdleVariant(animation.Idle)
	})
}

func (s *Scheduler) lookTick() {
	if s.body.Interacting() || s.body.Concerns().Moving {
		return
	}
	yaw := (s.rnd.Float64()*2 - 1) * s.cfg.LookAroundArc
	s.body.LookAround(yaw)
}
