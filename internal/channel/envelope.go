package channel

import (
	"encoding/json"
	"fmt"
	"slices"
)

type Kind string

const (
	KindMessage  Kind = "message"
	KindPresence Kind = "presence"
	KindJoin     Kind = "join"
	KindLeave    Kind = "leave"
)

type Envelope struct {
	Kind     Kind            `json:"kind"`
	Ref      string          `json:"ref,omitempty"`
	Event    string          `json:"event,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Meta     *Meta           `json:"meta,omitempty"`
	Presence Presence        `json:"presence,omitempty"`
}

func NewMessage(ref, event string, payload any) (*Envelope, error) {
	raw, err := MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Kind:    KindMessage,
		Ref:     ref,
		Event:   event,
		Payload: raw,
	}, nil
}

// MarshalPayload encodes payload unless it is already raw JSON.
func MarshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return raw, nil
}

func (p Presence) Clone() Presence {
	out := make(Presence, len(p))
	for ref, metas := range p {
		out[ref] = slices.Clone(metas)
	}

	return out
}
