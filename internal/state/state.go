// Package state holds the agent's locally owned view of itself and merges
// backend intent into it.
package state

import (
	"time"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/animation"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

// AgentState is created once at agent start and mutated only from the
// agent's event loop. It is never persisted.
type AgentState struct {
	Connected        bool // socket open
	BackendConnected bool // handshake acknowledged; implies Connected

	Position protocol.Vec3
	Rotation protocol.Quaternion

	Animation   animation.Name
	ActiveModel string

	Speaking bool
	Thinking bool
	Browsing bool
	Moving   bool

	LastInteractionAt time.Time

	Chat *ChatHistory
}

// New returns the start-of-life state: origin, identity rotation, neutral idle.
func New() *AgentState {
	return &AgentState{
		Rotation:  protocol.IdentityRotation,
		Animation: animation.Idle,
		Chat:      NewChatHistory(),
	}
}

// Concerns returns the concern flags as animation input. Greeting is owned by
// the agent, not the backend, so it is supplied by the caller.
func (s *AgentState) Concerns(greeting bool) animation.Concerns {
	return animation.Concerns{
		Moving:   s.Moving,
		Speaking: s.Speaking,
		Thinking: s.Thinking,
		Browsing: s.Browsing,
		Greeting: greeting,
	}
}

// Wire returns the outbound STATE_UPDATE body.
func (s *AgentState) Wire(interacting bool) protocol.AgentStateWire {
	return protocol.AgentStateWire{
		Position:    s.Position,
		Rotation:    s.Rotation,
		Animation:   string(s.Animation),
		Interacting: interacting,
	}
}

// Snapshot is a detached copy of AgentState safe to hand to other goroutines.
type Snapshot struct {
	Connected         bool
	BackendConnected  bool
	Position          protocol.Vec3
	Rotation          protocol.Quaternion
	Animation         animation.Name
	ActiveModel       string
	Speaking          bool
	Thinking          bool
	Browsing          bool
	Moving            bool
	LastInteractionAt time.Time
	Chat              []ChatEntry
}

// Snapshot copies the state, including the chat history.
func (s *AgentState) Snapshot() Snapshot {
	return Snapshot{
		Connected:         s.Connected,
		BackendConnected:  s.BackendConnected,
		Position:          s.Position,
		Rotation:          s.Rotation,
		Animation:         s.Animation,
		ActiveModel:       s.ActiveModel,
		Speaking:          s.Speaking,
		Thinking:          s.Thinking,
		Browsing:          s.Browsing,
		Moving:            s.Moving,
		LastInteractionAt: s.LastInteractionAt,
		Chat:              s.Chat.Entries(),
	}
}
