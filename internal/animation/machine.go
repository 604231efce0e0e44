// Package animation derives the single visible animation from the agent's
// concern flags.
//
// Precedence, highest first:
//
//	moving > speaking > thinking > browsing > greeting > idle variant
package animation

// Name is an animation clip name understood by the actuation surface.
type Name string

const (
	Idle           Name = "idle"
	IdleReflective Name = "idle_reflective"
	IdleCeremonial Name = "idle_ceremonial"
	Walk           Name = "walk"
	Talk           Name = "talk"
	Think          Name = "think"
	Browse         Name = "browse"
	Wave           Name = "wave"
)

// IdleVariants are the low-priority animations picked by the idle cycle.
// Idle (neutral) is not included.
var IdleVariants = []Name{IdleReflective, IdleCeremonial}

// IsIdle reports whether n is neutral idle or an idle variant.
func IsIdle(n Name) bool {
	switch n {
	case Idle, IdleReflective, IdleCeremonial:
		return true
	}
	return false
}

// Concerns is the set of independent flags that compete for the animation.
type Concerns struct {
	Moving   bool
	Speaking bool
	Thinking bool
	Browsing bool
	Greeting bool
}

// Any reports whether at least one concern is active.
func (c Concerns) Any() bool {
	return c.Moving || c.Speaking || c.Thinking || c.Browsing || c.Greeting
}

// Resolve applies the precedence order.
func Resolve(c Concerns, idle Name) Name {
	switch {
	case c.Moving:
		return Walk
	case c.Speaking:
		return Talk
	case c.Thinking:
		return Think
	case c.Browsing:
		return Browse
	case c.Greeting:
		return Wave
	}
	if !IsIdle(idle) {
		return Idle
	}
	return idle
}

// Machine tracks the current animation and reports each real change once.
// It is not safe for concurrent use; the agent drives it from its event loop.
type Machine struct {
	current  Name
	idle     Name
	concerns Concerns

	// OnChange is called after every transition, never for a no-op.
	OnChange func(prev, next Name)
}

// NewMachine returns a machine in neutral idle.
func NewMachine() *Machine {
	return &Machine{current: Idle, idle: Idle}
}

// Current returns the visible animation.
func (m *Machine) Current() Name { return m.current }

// IdleVariant returns the idle animation shown when no concern is active.
func (m *Machine) IdleVariant() Name { return m.idle }

// Concerns returns the flags last evaluated.
func (m *Machine) Concerns() Concerns { return m.concerns }

// Evaluate re-derives the animation from c. It reports whether the visible
// animation changed.
func (m *Machine) Evaluate(c Concerns) bool {
	m.concerns = c
	return m.set(Resolve(c, m.idle))
}

// SetIdleVariant changes the idle animation. It only becomes visible when no
// concern is active. Unknown names fall back to neutral idle.
func (m *Machine) SetIdleVariant(n Name) bool {
	if !IsIdle(n) {
		n = Idle
	}
	m.idle = n
	return m.set(Resolve(m.concerns, m.idle))
}

func (m *Machine) set(next Name) bool {
	if next == m.current {
		return false
	}
	prev := m.current
	m.current = next
	if m.OnChange != nil {
		m.OnChange(prev, next)
	}
	return true
}
