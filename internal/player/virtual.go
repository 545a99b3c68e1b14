package player

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// VirtualElement is a headless media element whose playhead advances with
// its clock. It starts paused at zero.
type VirtualElement struct {
	clock      clockwork.Clock
	duration   float64
	eventDelay time.Duration

	mu        sync.Mutex
	paused    bool
	position  float64
	anchor    time.Time
	endTimer  clockwork.Timer
	listeners map[string]map[int]func()
	nextID    int
}

type VirtualOption func(*VirtualElement)

// WithDuration bounds the media; playback pauses at the end. Zero means
// unbounded.
func WithDuration(seconds float64) VirtualOption {
	return func(e *VirtualElement) {
		e.duration = seconds
	}
}

// WithEventDelay defers event listeners by d on the element clock, the way
// browsers queue media events. Zero dispatches synchronously.
func WithEventDelay(d time.Duration) VirtualOption {
	return func(e *VirtualElement) {
		e.eventDelay = d
	}
}

func NewVirtualElement(clock clockwork.Clock, opts ...VirtualOption) *VirtualElement {
	e := &VirtualElement{
		clock:     clock,
		paused:    true,
		listeners: make(map[string]map[int]func()),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *VirtualElement) Ready() bool {
	return true
}

func (e *VirtualElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.paused
}

func (e *VirtualElement) currentTimeLocked() float64 {
	pos := e.position
	if !e.paused {
		pos += e.clock.Since(e.anchor).Seconds()
	}
	if e.duration > 0 && pos > e.duration {
		pos = e.duration
	}

	return pos
}

func (e *VirtualElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.currentTimeLocked()
}

func (e *VirtualElement) SetCurrentTime(seconds float64) {
	e.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.position = seconds
	e.anchor = e.clock.Now()
	if !e.paused {
		e.scheduleEndLocked()
	}
	e.mu.Unlock()

	e.dispatch("seeked")
}

func (e *VirtualElement) Play() error {
	e.mu.Lock()
	if !e.paused {
		e.mu.Unlock()
		return nil
	}
	if e.duration > 0 && e.position >= e.duration {
		e.position = 0
	}
	e.paused = false
	e.anchor = e.clock.Now()
	e.scheduleEndLocked()
	e.mu.Unlock()

	e.dispatch("play")

	return nil
}

func (e *VirtualElement) Pause() error {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return nil
	}
	e.position = e.currentTimeLocked()
	e.paused = true
	e.stopEndLocked()
	e.mu.Unlock()

	e.dispatch("pause")

	return nil
}

func (e *VirtualElement) scheduleEndLocked() {
	e.stopEndLocked()
	if e.duration <= 0 {
		return
	}

	remaining := time.Duration((e.duration - e.position) * float64(time.Second))
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	var timer clockwork.Timer
	timer = e.clock.AfterFunc(remaining, func() {
		e.mu.Lock()
		if e.endTimer != timer || e.paused {
			e.mu.Unlock()
			return
		}
		e.position = e.duration
		e.paused = true
		e.endTimer = nil
		e.mu.Unlock()

		e.dispatch("pause")
		e.dispatch("ended")
	})
	e.endTimer = timer
}

func (e *VirtualElement) stopEndLocked() {
	if e.endTimer != nil {
		e.endTimer.Stop()
		e.endTimer = nil
	}
}

func (e *VirtualElement) AddEventListener(event string, fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]func())
	}
	e.listeners[event][id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		delete(e.listeners[event], id)
	}
}

func (e *VirtualElement) dispatch(event string) {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.listeners[event]))
	for _, fn := range e.listeners[event] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	fire := func() {
		for _, fn := range fns {
			fn()
		}
	}

	if e.eventDelay <= 0 {
		fire()
		return
	}

	e.clock.AfterFunc(e.eventDelay, fire)
}
