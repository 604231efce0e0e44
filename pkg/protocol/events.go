package protocol

// Frame type discriminators.
const (
	// Bidirectional.
	TypeStateUpdate = "STATE_UPDATE"

	// Agent → backend.
	TypeVoiceInput = "VOICE_INPUT"
	TypeAction     = "ACTION"
	TypeHello      = "HELLO"

	// Backend → agent.
	TypeAudio          = "AUDIO"
	TypeBrowserContent = "BROWSER_CONTENT"
	TypePhysicsUpdate  = "PHYSICS_UPDATE"
	TypeConnected      = "CONNECTED"
	TypeError          = "ERROR"
)

// Well-known ACTION names.
const (
	ActionRotate = "rotate"
	ActionEmote  = "emote"
)
