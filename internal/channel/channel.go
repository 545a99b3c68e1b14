// Package channel defines the room-scoped broadcast channel the watch party
// runs on, plus the wire envelope shared by its network backends.
//
// Delivery is best-effort, unordered and self-inclusive: a subscription
// receives its own sends. Consumers that must not observe their own messages
// filter by origin.
package channel

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrClosed       = errors.New("subscription closed")
	ErrInvalidTopic = errors.New("invalid topic")
)

// Meta is the presence record a subscription announces with Track.
type Meta struct {
	MemberKey   string `json:"member_key"`
	ConnectedAt int64  `json:"connected_at"`
}

// Presence maps subscription refs to the metas they track.
type Presence map[string][]Meta

type Handler struct {
	OnMessage      func(event string, payload json.RawMessage)
	OnPresenceSync func(presence Presence)
}

func (h Handler) message(event string, payload json.RawMessage) {
	if h.OnMessage != nil {
		h.OnMessage(event, payload)
	}
}

func (h Handler) presenceSync(presence Presence) {
	if h.OnPresenceSync != nil {
		h.OnPresenceSync(presence)
	}
}

// Dispatch calls the handler matching the envelope kind.
func (h Handler) Dispatch(env *Envelope) {
	switch env.Kind {
	case KindMessage:
		h.message(env.Event, env.Payload)
	case KindPresence:
		h.presenceSync(env.Presence)
	}
}

type Broadcaster interface {
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)
}

type Subscription interface {
	Ref() string
	// Send publishes to every subscriber of the topic, this one included.
	Send(ctx context.Context, event string, payload any) error
	Track(ctx context.Context, meta Meta) error
	Unsubscribe() error
}
