package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned for a well-formed JSON object without a type.
var ErrMissingType = errors.New("frame has no type")

// Inbound is the closed set of backend → agent messages routed after the
// handshake. Implementations: *StateUpdate, *Audio, *BrowserContent,
// *PhysicsUpdate and *Unrecognized.
type Inbound interface {
	FrameType() string
	inbound()
}

// StateUpdate carries the backend's desired partial state.
type StateUpdate struct {
	State PartialState `json:"state"`
}

// Audio is opaque; Raw is the whole frame as received.
type Audio struct {
	Raw json.RawMessage
}

// BrowserContent is opaque; Raw is the whole frame as received.
type BrowserContent struct {
	Raw json.RawMessage
}

// PhysicsUpdate maps object identifiers to their state.
type PhysicsUpdate struct {
	Objects map[string]ObjectState `json:"objects"`
}

// Unrecognized is any frame whose type this agent does not handle yet.
type Unrecognized struct {
	Type string
	Raw  json.RawMessage
}

func (*StateUpdate) FrameType() string    { return TypeStateUpdate }
func (*Audio) FrameType() string          { return TypeAudio }
func (*BrowserContent) FrameType() string { return TypeBrowserContent }
func (*PhysicsUpdate) FrameType() string  { return TypePhysicsUpdate }
func (u *Unrecognized) FrameType() string { return u.Type }

func (*StateUpdate) inbound()    {}
func (*Audio) inbound()          {}
func (*BrowserContent) inbound() {}
func (*PhysicsUpdate) inbound()  {}
func (*Unrecognized) inbound()   {}

// ParseInbound decodes one frame into its variant. Malformed JSON, a missing
// type, or a known type whose body does not decode return an error; unknown
// types return *Unrecognized with a nil error.
func ParseInbound(data []byte) (Inbound, error) {
	frameType, err := ParseFrameType(data)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if frameType == "" {
		return nil, ErrMissingType
	}

	raw := json.RawMessage(append([]byte(nil), data...))

	switch frameType {
	case TypeStateUpdate:
		var msg StateUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", frameType, err)
		}
		return &msg, nil
	case TypeAudio:
		return &Audio{Raw: raw}, nil
	case TypeBrowserContent:
		return &BrowserContent{Raw: raw}, nil
	case TypePhysicsUpdate:
		var msg PhysicsUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", frameType, err)
		}
		return &msg, nil
	default:
		return &Unrecognized{Type: frameType, Raw: raw}, nil
	}
}
