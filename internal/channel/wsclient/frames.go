package wsclient

import (
	"encoding/json"

	"github.com/sharetube/watchparty/internal/channel"
)

// Frame types exchanged with the relay.
const (
	FrameJoined       = "JOINED"
	FrameBroadcast    = "BROADCAST"
	FrameTrack        = "TRACK"
	FramePresenceSync = "PRESENCE_SYNC"
	FrameError        = "ERROR"
)

type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinedPayload struct {
	Ref string `json:"ref"`
}

type BroadcastPayload struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type TrackPayload = channel.Meta

type PresenceSyncPayload struct {
	Presence channel.Presence `json:"presence"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
