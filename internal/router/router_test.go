package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

type recordingHandlers struct {
	states  []*protocol.StateUpdate
	audio   []*protocol.Audio
	content []*protocol.BrowserContent
	physics []*protocol.PhysicsUpdate
	panicOn string
}

func (h *recordingHandlers) HandleStateUpdate(m *protocol.StateUpdate) {
	if h.panicOn == protocol.TypeStateUpdate {
		panic("boom")
	}
	h.states = append(h.states, m)
}

func (h *recordingHandlers) HandleAudio(m *protocol.Audio) { h.audio = append(h.audio, m) }

func (h *recordingHandlers) HandleBrowserContent(m *protocol.BrowserContent) {
	h.content = append(h.content, m)
}

func (h *recordingHandlers) HandlePhysicsUpdate(m *protocol.PhysicsUpdate) {
	h.physics = append(h.physics, m)
}

func TestRoute_Dispatch(t *testing.T) {
	h := &recordingHandlers{}
	r := New(h, nil)

	r.Route([]byte(`{"type":"STATE_UPDATE","state":{"speaking":true}}`))
	r.Route([]byte(`{"type":"AUDIO","data":"abc"}`))
	r.Route([]byte(`{"type":"BROWSER_CONTENT","url":"https://x"}`))
	r.Route([]byte(`{"type":"PHYSICS_UPDATE","objects":{"ball":{"position":[1,2,3]}}}`))

	require.Len(t, h.states, 1)
	require.NotNil(t, h.states[0].State.Speaking)
	assert.True(t, *h.states[0].State.Speaking)
	require.Len(t, h.audio, 1)
	assert.JSONEq(t, `{"type":"AUDIO","data":"abc"}`, string(h.audio[0].Raw))
	require.Len(t, h.content, 1)
	require.Len(t, h.physics, 1)
	assert.Equal(t, protocol.Vec3{1, 2, 3}, h.physics[0].Objects["ball"].Position)
}

func TestRoute_DropsWithoutRaising(t *testing.T) {
	h := &recordingHandlers{}
	r := New(h, nil)

	inputs := []string{
		``,
		`not json`,
		`{"state":{}}`,
		`{"type":"TELEPORT"}`,
		`{"type":"ERROR","code":"x"}`,
		`{"type":"STATE_UPDATE","state":"nope"}`,
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { r.Route([]byte(in)) }, in)
	}
	assert.Empty(t, h.states)
	assert.Empty(t, h.audio)
	assert.Empty(t, h.content)
	assert.Empty(t, h.physics)
}

func TestRoute_RecoversHandlerPanic(t *testing.T) {
	h := &recordingHandlers{panicOn: protocol.TypeStateUpdate}
	r := New(h, nil)

	assert.NotPanics(t, func() {
		r.Route([]byte(`{"type":"STATE_UPDATE","state":{}}`))
	})

	// Router stays usable afterwards.
	r.Route([]byte(`{"type":"AUDIO"}`))
	assert.Len(t, h.audio, 1)
}
