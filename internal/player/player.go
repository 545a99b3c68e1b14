// Package player gives the sync client one control surface over the
// supported embedded player backends.
package player

import "errors"

var (
	ErrNotReady      = errors.New("player not ready")
	ErrNoVideoKey    = errors.New("no video key")
	ErrUnknownSource = errors.New("unknown content source")
	ErrClosed        = errors.New("player closed")
)

type State int

const (
	StateUnknown State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Player is implemented by every backend. Play and Pause are no-ops when the
// player is already in the requested state, so they never emit a state change
// in that case. OnStateChange callbacks fire only on playing/paused
// transitions and may run on any goroutine.
type Player interface {
	Ready() bool
	CurrentTime() float64
	SeekTo(seconds float64) error
	Play() error
	Pause() error
	State() State
	OnStateChange(fn func(State))
	Close() error
}
