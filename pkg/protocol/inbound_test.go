package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound_StateUpdate(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"STATE_UPDATE","state":{"position":[1,2,3],"speaking":true,"activeModel":"large"}}`))
	require.NoError(t, err)

	su, ok := msg.(*StateUpdate)
	require.True(t, ok, "got %T", msg)
	require.NotNil(t, su.State.Position)
	assert.Equal(t, Vec3{1, 2, 3}, *su.State.Position)
	require.NotNil(t, su.State.Speaking)
	assert.True(t, *su.State.Speaking)
	assert.Equal(t, "large", *su.State.ActiveModel)
	assert.Nil(t, su.State.Rotation)
	assert.Nil(t, su.State.Thinking)
}

func TestParseInbound_OpaqueVariantsKeepWholeFrame(t *testing.T) {
	frame := []byte(`{"type":"AUDIO","data":"aGVsbG8=","format":"mp3"}`)
	msg, err := ParseInbound(frame)
	require.NoError(t, err)
	audio, ok := msg.(*Audio)
	require.True(t, ok)
	assert.JSONEq(t, string(frame), string(audio.Raw))

	msg, err = ParseInbound([]byte(`{"type":"BROWSER_CONTENT","url":"https://example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeBrowserContent, msg.FrameType())
}

func TestParseInbound_PhysicsUpdate(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"PHYSICS_UPDATE","objects":{"teacup":{"position":[0,1,0],"properties":{"mass":0.2}}}}`))
	require.NoError(t, err)
	pu, ok := msg.(*PhysicsUpdate)
	require.True(t, ok)
	require.Contains(t, pu.Objects, "teacup")
	assert.Equal(t, Vec3{0, 1, 0}, *pu.Objects["teacup"].Position)
	assert.Equal(t, 0.2, pu.Objects["teacup"].Properties["mass"])
}

func TestParseInbound_Unrecognized(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"WEATHER","rain":true}`))
	require.NoError(t, err)
	u, ok := msg.(*Unrecognized)
	require.True(t, ok)
	assert.Equal(t, "WEATHER", u.FrameType())
}

func TestParseInbound_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"type":`,
		"array":         `[1,2,3]`,
		"bad state":     `{"type":"STATE_UPDATE","state":{"position":"north"}}`,
		"bad objects":   `{"type":"PHYSICS_UPDATE","objects":[1]}`,
		"type not text": `{"type":7}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInbound([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseInbound_MissingType(t *testing.T) {
	_, err := ParseInbound([]byte(`{"state":{}}`))
	assert.ErrorIs(t, err, ErrMissingType)
}

func TestStateUpdateFrame_WireShape(t *testing.T) {
	data, err := json.Marshal(NewStateUpdate(AgentStateWire{
		Position:    Vec3{1, 0, -2},
		Rotation:    IdentityRotation,
		Animation:   "idle",
		Interacting: true,
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"STATE_UPDATE","state":{"position":[1,0,-2],"rotation":[0,0,0,1],"animation":"idle","interacting":true}}`, string(data))
}

func TestPartialState_Empty(t *testing.T) {
	assert.True(t, PartialState{}.Empty())
	yes := true
	assert.False(t, PartialState{Moving: &yes}.Empty())
}
