package agent

import (
	"encoding/json"
	"log/slog"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/animation"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

// Actuator is the pose and animation surface of the in-world avatar. The
// agent calls it from its event loop; implementations must not block.
type Actuator interface {
	PlayAnimation(name animation.Name)
	MoveTo(pos protocol.Vec3)
	SetRotation(rot protocol.Quaternion)
}

// AudioPlayer receives AUDIO frames as sent by the backend.
type AudioPlayer interface {
	Play(frame json.RawMessage)
}

// PhysicsSink receives PHYSICS_UPDATE object states.
type PhysicsSink interface {
	ApplyPhysics(objects map[string]protocol.ObjectState)
}

// ContentSink receives BROWSER_CONTENT frames.
type ContentSink interface {
	ShowContent(frame json.RawMessage)
}

// logSurface is the default actuator, audio player and content sink: it
// only logs.
type logSurface struct{}

func (logSurface) PlayAnimation(name animation.Name) {
	slog.Info("actuator: play animation", "animation", name)
}

func (logSurface) MoveTo(pos protocol.Vec3) {
	slog.Info("actuator: move", "position", pos)
}

func (logSurface) SetRotation(rot protocol.Quaternion) {
	slog.Debug("actuator: rotate", "rotation", rot)
}

func (logSurface) Play(frame json.RawMessage) {
	slog.Info("audio: frame received", "bytes", len(frame))
}

func (logSurface) ShowContent(frame json.RawMessage) {
	slog.Info("browser: content received", "bytes", len(frame))
}
