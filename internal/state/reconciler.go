package state

import (
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

// Effects receives the side effects of a reconciliation. Each method fires
// only when the corresponding field actually changed.
type Effects interface {
	// PositionChanged fires after Position is updated. explicitMoving is
	// true when the same update also set the moving flag itself.
	PositionChanged(pos protocol.Vec3, explicitMoving bool)
	RotationChanged(rot protocol.Quaternion)
	// ConcernsChanged fires once per update in which any of speaking,
	// thinking, browsing or moving changed.
	ConcernsChanged()
	ModelChanged(model string)
	// AnimationRequested fires when the backend names an animation directly.
	AnimationRequested(name string)
}

// Reconciler merges backend partial state into an AgentState.
type Reconciler struct {
	state   *AgentState
	effects Effects
}

// NewReconciler binds a reconciler to st. effects may be nil.
func NewReconciler(st *AgentState, effects Effects) *Reconciler {
	return &Reconciler{state: st, effects: effects}
}

// Changes summarizes what an Apply call modified.
type Changes struct {
	Position bool
	Rotation bool
	Model    bool
	Concerns bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.Position || c.Rotation || c.Model || c.Concerns
}

// Apply merges p. Fields absent from p, or equal to the current value, are
// left alone and produce no effect, so applying the same update twice has
// the effect of applying it once.
func (r *Reconciler) Apply(p protocol.PartialState) Changes {
	st := r.state
	var ch Changes

	if p.Moving != nil && *p.Moving != st.Moving {
		st.Moving = *p.Moving
		ch.Concerns = true
	}
	if p.Speaking != nil && *p.Speaking != st.Speaking {
		st.Speaking = *p.Speaking
		ch.Concerns = true
	}
	if p.Thinking != nil && *p.Thinking != st.Thinking {
		st.Thinking = *p.Thinking
		ch.Concerns = true
	}
	if p.Browsing != nil && *p.Browsing != st.Browsing {
		st.Browsing = *p.Browsing
		ch.Concerns = true
	}
	if p.ActiveModel != nil && *p.ActiveModel != st.ActiveModel {
		st.ActiveModel = *p.ActiveModel
		ch.Model = true
	}
	if p.Position != nil && *p.Position != st.Position {
		st.Position = *p.Position
		ch.Position = true
	}
	if p.Rotation != nil && *p.Rotation != st.Rotation {
		st.Rotation = *p.Rotation
		ch.Rotation = true
	}

	if r.effects == nil {
		return ch
	}
	if ch.Model {
		r.effects.ModelChanged(st.ActiveModel)
	}
	if ch.Rotation {
		r.effects.RotationChanged(st.Rotation)
	}
	if ch.Position {
		r.effects.PositionChanged(st.Position, p.Moving != nil)
	}
	if ch.Concerns {
		r.effects.ConcernsChanged()
	}
	if p.Animation != nil && *p.Animation != string(st.Animation) {
		r.effects.AnimationRequested(*p.Animation)
	}
	return ch
}
