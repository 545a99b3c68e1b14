package watchparty

import (
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/player"
)

// Channel event names.
const (
	EventSync = "SYNC"
	EventChat = "CHAT"
)

var ErrInvalidEvent = errors.New("invalid sync event")

type Kind string

const (
	KindPlay  Kind = "PLAY"
	KindPause Kind = "PAUSE"
)

// State is the player state a member reaches after applying the kind.
func (k Kind) State() player.State {
	switch k {
	case KindPlay:
		return player.StatePlaying
	case KindPause:
		return player.StatePaused
	default:
		return player.StateUnknown
	}
}

func kindFromState(s player.State) (Kind, bool) {
	switch s {
	case player.StatePlaying:
		return KindPlay, true
	case player.StatePaused:
		return KindPause, true
	default:
		return "", false
	}
}

// SyncEvent is a member's local play or pause transition.
type SyncEvent struct {
	ID              string  `json:"id"`
	Kind            Kind    `json:"kind"`
	PositionSeconds float64 `json:"positionSeconds"`
	Origin          string  `json:"origin"`
	SentAt          int64   `json:"sentAt"`
}

func (e *SyncEvent) Validate() error {
	if e.Kind != KindPlay && e.Kind != KindPause {
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.PositionSeconds < 0 {
		return fmt.Errorf("%w: negative position", ErrInvalidEvent)
	}

	return nil
}
