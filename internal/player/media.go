package player

import "sync"

// MediaElement is the subset of a native media element the player drives.
type MediaElement interface {
	Ready() bool
	Play() error
	Pause() error
	Paused() bool
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	AddEventListener(event string, fn func()) (remove func())
}

// MediaPlayer drives a native media element through its play and pause
// events.
type MediaPlayer struct {
	el MediaElement

	mu       sync.Mutex
	closed   bool
	last     State
	onChange func(State)
	removers []func()
}

func NewMediaPlayer(el MediaElement) *MediaPlayer {
	p := &MediaPlayer{
		el:   el,
		last: StateUnknown,
	}

	p.removers = append(p.removers,
		el.AddEventListener("play", func() { p.notify(StatePlaying) }),
		el.AddEventListener("pause", func() { p.notify(StatePaused) }),
	)

	return p
}

func (p *MediaPlayer) notify(s State) {
	p.mu.Lock()
	if p.closed || p.last == s {
		p.mu.Unlock()
		return
	}
	p.last = s
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

func (p *MediaPlayer) Ready() bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	return !closed && p.el.Ready()
}

func (p *MediaPlayer) CurrentTime() float64 {
	if !p.Ready() {
		return 0
	}

	return p.el.CurrentTime()
}

func (p *MediaPlayer) State() State {
	if !p.Ready() {
		return StateUnknown
	}
	if p.el.Paused() {
		return StatePaused
	}

	return StatePlaying
}

func (p *MediaPlayer) SeekTo(seconds float64) error {
	if !p.Ready() {
		return ErrNotReady
	}

	p.el.SetCurrentTime(seconds)

	return nil
}

func (p *MediaPlayer) Play() error {
	if !p.Ready() {
		return ErrNotReady
	}
	if !p.el.Paused() {
		return nil
	}

	return p.el.Play()
}

func (p *MediaPlayer) Pause() error {
	if !p.Ready() {
		return ErrNotReady
	}
	if p.el.Paused() {
		return nil
	}

	return p.el.Pause()
}

func (p *MediaPlayer) OnStateChange(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onChange = fn
}

func (p *MediaPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	p.onChange = nil
	removers := p.removers
	p.removers = nil
	p.mu.Unlock()

	for _, remove := range removers {
		remove()
	}

	return nil
}
