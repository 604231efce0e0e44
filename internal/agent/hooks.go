package agent

import (
	"log/slog"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/animation"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/connection"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/idle"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/router"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/state"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

// The agent plays several roles for its components. Each role is a named
// view of *Agent so the callbacks stay off the public API.
type (
	connEvents Agent // connection.Handler
	inbound    Agent // router.Handlers
	effects    Agent // state.Effects
	body       Agent // idle.Body
)

var (
	_ connection.Handler = (*connEvents)(nil)
	_ router.Handlers    = (*inbound)(nil)
	_ state.Effects      = (*effects)(nil)
	_ idle.Body          = (*body)(nil)
)

// --- connection.Handler ---

func (h *connEvents) SocketOpened() {
	h.state.Connected = true
}

func (h *connEvents) HandshakeComplete() {
	a := (*Agent)(h)
	a.state.Connected = true
	a.state.BackendConnected = true
	a.exhausted = false
	a.pushState()
	a.idle.Start()
}

func (h *connEvents) HandleMessage(raw []byte) {
	h.router.Route(raw)
}

func (h *connEvents) ChannelClosed(err error) {
	h.state.Connected = false
	h.state.BackendConnected = false
}

func (h *connEvents) ConnectionExhausted(failures int, last error) {
	h.exhausted = true
	if h.onExhausted != nil {
		h.onExhausted(failures, last)
	}
}

// --- router.Handlers ---

func (h *inbound) HandleStateUpdate(msg *protocol.StateUpdate) {
	if msg.State.Empty() {
		slog.Debug("agent: empty state update")
		return
	}
	h.reconciler.Apply(msg.State)
}

func (h *inbound) HandleAudio(msg *protocol.Audio) {
	h.audio.Play(msg.Raw)
}

func (h *inbound) HandleBrowserContent(msg *protocol.BrowserContent) {
	h.content.ShowContent(msg.Raw)
}

func (h *inbound) HandlePhysicsUpdate(msg *protocol.PhysicsUpdate) {
	h.physics.ApplyPhysics(msg.Objects)
}

// --- state.Effects ---

func (h *effects) PositionChanged(pos protocol.Vec3, explicitMoving bool) {
	a := (*Agent)(h)
	a.actuator.MoveTo(pos)
	if !explicitMoving {
		a.state.Moving = true
	}
	if a.state.Moving {
		a.armSettle()
	}
	a.evaluate()
}

func (h *effects) RotationChanged(rot protocol.Quaternion) {
	h.home = rot
	h.actuator.SetRotation(rot)
}

func (h *effects) ConcernsChanged() {
	a := (*Agent)(h)
	if !a.state.Moving {
		a.settleTask.Cancel()
		a.settleTask = nil
	}
	a.evaluate()
}

func (h *effects) ModelChanged(model string) {
	slog.Info("agent: active model changed", "model", model)
}

func (h *effects) AnimationRequested(name string) {
	n := animation.Name(name)
	if !animation.IsIdle(n) {
		// Concern animations follow the flags, never a direct request.
		slog.Debug("agent: ignoring requested animation", "animation", name)
		return
	}
	h.machine.SetIdleVariant(n)
}

// --- idle.Body ---

func (h *body) Interacting() bool { return h.tracker.IsInteracting() }

func (h *body) Concerns() animation.Concerns {
	return h.state.Concerns(h.greeting)
}

func (h *body) SetIdleVariant(n animation.Name) {
	h.machine.SetIdleVariant(n)
}

func (h *body) LookAround(yawDeg float64) {
	(*Agent)(h).setRotation(state.Mul(h.home, state.Yaw(yawDeg)))
}
