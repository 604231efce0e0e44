// Package protocol defines the JSON wire format spoken between a Hyperfy
// agent and its decision-making backend. Every frame is a JSON object with a
// "type" discriminator.
package protocol

import "encoding/json"

// Protocol version announced in the HELLO handshake frame.
const ProtocolVersion = 1

// Vec3 is an [x, y, z] position. Arrays compare structurally with ==.
type Vec3 [3]float64

// Quaternion is an [x, y, z, w] rotation.
type Quaternion [4]float64

// IdentityRotation is the zero rotation.
var IdentityRotation = Quaternion{0, 0, 0, 1}

// AgentStateWire is the state block of an outbound STATE_UPDATE.
type AgentStateWire struct {
	Position    Vec3       `json:"position"`
	Rotation    Quaternion `json:"rotation"`
	Animation   string     `json:"animation"`
	Interacting bool       `json:"interacting"`
}

// StateUpdateFrame mirrors local agent state to the backend.
type StateUpdateFrame struct {
	Type  string         `json:"type"` // always "STATE_UPDATE"
	State AgentStateWire `json:"state"`
}

// VoiceInputFrame forwards human chat and autonomous greetings.
type VoiceInputFrame struct {
	Type string `json:"type"` // always "VOICE_INPUT"
	Text string `json:"text"`
}

// ActionFrame carries a discrete one-off command, e.g. "rotate". Params is
// always present on the wire; ID is an optional correlation id the backend
// may ignore.
type ActionFrame struct {
	Type   string         `json:"type"` // always "ACTION"
	ID     string         `json:"id,omitempty"`
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// HelloFrame opens the application-level handshake.
type HelloFrame struct {
	Type     string `json:"type"` // always "HELLO"
	AgentID  string `json:"agentId"`
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
	Nonce    string `json:"nonce,omitempty"`
}

// ConnectedFrame acknowledges a HELLO.
type ConnectedFrame struct {
	Type      string `json:"type"` // always "CONNECTED"
	SessionID string `json:"sessionId,omitempty"`
}

// ErrorFrame rejects a handshake or reports a backend-side failure.
type ErrorFrame struct {
	Type    string `json:"type"` // always "ERROR"
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PartialState is the backend's desired subset of agent state. Nil fields
// are absent from the update.
type PartialState struct {
	Position    *Vec3       `json:"position,omitempty"`
	Rotation    *Quaternion `json:"rotation,omitempty"`
	Animation   *string     `json:"animation,omitempty"`
	ActiveModel *string     `json:"activeModel,omitempty"`
	Speaking    *bool       `json:"speaking,omitempty"`
	Thinking    *bool       `json:"thinking,omitempty"`
	Browsing    *bool       `json:"browsing,omitempty"`
	Moving      *bool       `json:"moving,omitempty"`
}

// Empty reports whether the update carries no fields.
func (p PartialState) Empty() bool {
	return p.Position == nil && p.Rotation == nil && p.Animation == nil &&
		p.ActiveModel == nil && p.Speaking == nil && p.Thinking == nil &&
		p.Browsing == nil && p.Moving == nil
}

// ObjectState is one entry of a PHYSICS_UPDATE.
type ObjectState struct {
	Position   *Vec3          `json:"position,omitempty"`
	Rotation   *Quaternion    `json:"rotation,omitempty"`
	Velocity   *Vec3          `json:"velocity,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// NewStateUpdate creates an outbound STATE_UPDATE frame.
func NewStateUpdate(s AgentStateWire) *StateUpdateFrame {
	return &StateUpdateFrame{Type: TypeStateUpdate, State: s}
}

// NewVoiceInput creates an outbound VOICE_INPUT frame.
func NewVoiceInput(text string) *VoiceInputFrame {
	return &VoiceInputFrame{Type: TypeVoiceInput, Text: text}
}

// NewAction creates an outbound ACTION frame.
func NewAction(id, action string, params map[string]any) *ActionFrame {
	if params == nil {
		params = map[string]any{}
	}
	return &ActionFrame{Type: TypeAction, ID: id, Action: action, Params: params}
}

// NewHello creates the handshake opener.
func NewHello(agentID, name, nonce string) *HelloFrame {
	return &HelloFrame{
		Type:     TypeHello,
		AgentID:  agentID,
		Name:     name,
		Protocol: ProtocolVersion,
		Nonce:    nonce,
	}
}

// ParseFrameType extracts the type discriminator from raw JSON bytes.
func ParseFrameType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}
