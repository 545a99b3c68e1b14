package player

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Frame is the cross-document message transport to an embedded player page.
type Frame interface {
	Post(msg any) error
	Receive() ([]byte, error)
	Close() error
}

// Player state codes delivered by onStateChange.
const (
	codeUnstarted = -1
	codeEnded     = 0
	codePlaying   = 1
	codePaused    = 2
	codeBuffering = 3
	codeCued      = 5
)

type command struct {
	Event string `json:"event"`
	Func  string `json:"func,omitempty"`
	Args  []any  `json:"args,omitempty"`
	ID    string `json:"id,omitempty"`
}

type inbound struct {
	Event string          `json:"event"`
	Info  json.RawMessage `json:"info"`
}

type infoDelivery struct {
	CurrentTime *float64 `json:"currentTime"`
}

// IframePlayer drives an embedded player speaking the iframe postMessage
// protocol.
type IframePlayer struct {
	frame    Frame
	clock    clockwork.Clock
	logger   *slog.Logger
	videoKey string

	mu       sync.Mutex
	ready    bool
	closed   bool
	state    State
	position float64
	anchor   time.Time
	onChange func(State)

	stopped chan struct{}
}

type IframeOption func(*IframePlayer)

func WithIframeClock(clock clockwork.Clock) IframeOption {
	return func(p *IframePlayer) {
		p.clock = clock
	}
}

// NewIframePlayer starts listening on frame and cues videoKey. With an empty
// video key the player never becomes ready.
func NewIframePlayer(frame Frame, videoKey string, logger *slog.Logger, opts ...IframeOption) *IframePlayer {
	p := &IframePlayer{
		frame:    frame,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		videoKey: videoKey,
		state:    StateUnknown,
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if videoKey == "" {
		p.logger.Error("iframe player disabled", "error", ErrNoVideoKey)
		close(p.stopped)
		return p
	}

	if err := frame.Post(command{Event: "listening", ID: videoKey}); err != nil {
		p.logger.Error("failed to start listening", "error", err)
	}
	if err := p.post("cueVideoById", videoKey); err != nil {
		p.logger.Error("failed to cue video", "error", err)
	}

	go p.listen()

	return p
}

func (p *IframePlayer) post(fn string, args ...any) error {
	return p.frame.Post(command{Event: "command", Func: fn, Args: args})
}

func (p *IframePlayer) listen() {
	defer close(p.stopped)

	for {
		data, err := p.frame.Receive()
		if err != nil {
			p.mu.Lock()
			closed := p.closed
			p.ready = false
			p.mu.Unlock()
			if !closed {
				p.logger.Warn("player frame closed", "error", err)
			}
			return
		}

		p.handle(data)
	}
}

func (p *IframePlayer) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Debug("ignoring malformed player message", "error", err)
		return
	}

	switch msg.Event {
	case "onReady":
		p.mu.Lock()
		p.ready = true
		p.anchor = p.clock.Now()
		p.mu.Unlock()
	case "onStateChange":
		var code int
		if err := json.Unmarshal(msg.Info, &code); err != nil {
			return
		}
		p.stateCode(code)
	case "infoDelivery":
		var info infoDelivery
		if err := json.Unmarshal(msg.Info, &info); err != nil || info.CurrentTime == nil {
			return
		}
		p.mu.Lock()
		p.position = *info.CurrentTime
		p.anchor = p.clock.Now()
		p.mu.Unlock()
	case "onError":
		p.logger.Warn("player reported error", "code", string(msg.Info))
	}
}

func (p *IframePlayer) stateCode(code int) {
	var next State
	switch code {
	case codePlaying:
		next = StatePlaying
	case codePaused, codeEnded:
		next = StatePaused
	default:
		// unstarted, buffering and cued are not transitions
		return
	}

	p.mu.Lock()
	if p.state == next {
		p.mu.Unlock()
		return
	}
	now := p.clock.Now()
	p.position = p.currentTimeLocked(now)
	p.anchor = now
	p.state = next
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(next)
	}
}

func (p *IframePlayer) currentTimeLocked(now time.Time) float64 {
	if p.state != StatePlaying {
		return p.position
	}

	return p.position + now.Sub(p.anchor).Seconds()
}

func (p *IframePlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ready && !p.closed
}

// CurrentTime extrapolates from the last delivered position while playing.
func (p *IframePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return 0
	}

	return p.currentTimeLocked(p.clock.Now())
}

func (p *IframePlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *IframePlayer) SeekTo(seconds float64) error {
	if !p.Ready() {
		return ErrNotReady
	}

	if err := p.post("seekTo", seconds, true); err != nil {
		return err
	}

	p.mu.Lock()
	p.position = seconds
	p.anchor = p.clock.Now()
	p.mu.Unlock()

	return nil
}

func (p *IframePlayer) Play() error {
	if !p.Ready() {
		return ErrNotReady
	}
	if p.State() == StatePlaying {
		return nil
	}

	return p.post("playVideo")
}

func (p *IframePlayer) Pause() error {
	if !p.Ready() {
		return ErrNotReady
	}
	if p.State() == StatePaused {
		return nil
	}

	return p.post("pauseVideo")
}

func (p *IframePlayer) OnStateChange(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onChange = fn
}

func (p *IframePlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	p.onChange = nil
	p.mu.Unlock()

	if p.videoKey == "" {
		return nil
	}

	err := p.frame.Close()
	<-p.stopped

	return err
}
