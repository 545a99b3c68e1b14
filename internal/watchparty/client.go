// Package watchparty keeps a member's player in step with the rest of the
// room. Every member publishes its own play and pause transitions and applies
// everyone else's; there is no arbiter.
package watchparty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/player"
)

var (
	ErrAlreadyJoined = errors.New("already joined")
	ErrNotJoined     = errors.New("not joined")
	ErrLeft          = errors.New("client left the room")
)

// Player is the control surface the client needs from a player backend.
type Player interface {
	Ready() bool
	CurrentTime() float64
	SeekTo(seconds float64) error
	Play() error
	Pause() error
	State() player.State
	OnStateChange(fn func(player.State))
}

type Config struct {
	RoomID     string
	MemberKey  string
	Tolerance  float64
	EchoWindow time.Duration
	Clock      clockwork.Clock
}

type clientState int

const (
	stateIdle clientState = iota
	stateJoined
	stateLeft
)

// Client binds one player to one room. Player and channel callbacks are
// serialised onto the client's event loop.
type Client struct {
	roomID      string
	memberKey   string
	origin      string
	clock       clockwork.Clock
	broadcaster channel.Broadcaster
	player      Player
	logger      *slog.Logger

	suppressor *Suppressor
	reconciler Reconciler
	presence   *Tracker
	chat       *Chat
	loop       *eventLoop

	mu    sync.Mutex
	state clientState
	sub   channel.Subscription
}

func NewClient(b channel.Broadcaster, p Player, logger *slog.Logger, cfg Config) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Client{
		roomID:      cfg.RoomID,
		memberKey:   cfg.MemberKey,
		origin:      uuid.NewString(),
		clock:       clock,
		broadcaster: b,
		player:      p,
		suppressor:  NewSuppressor(clock, cfg.EchoWindow),
		reconciler:  NewReconciler(cfg.Tolerance),
		presence:    NewTracker(),
		loop:        newEventLoop(),
	}
	c.logger = logger.With("room_id", cfg.RoomID, "origin", c.origin)
	c.chat = &Chat{
		user:  cfg.MemberKey,
		clock: clock,
		send:  c.send,
	}

	return c
}

func (c *Client) Origin() string {
	return c.origin
}

func (c *Client) Presence() *Tracker {
	return c.presence
}

func (c *Client) Chat() *Chat {
	return c.chat
}

func (c *Client) left() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateLeft
}

// Join subscribes to the room and announces presence. A client joins at most
// one room, once. A failed Join leaves the client idle so it can retry.
func (c *Client) Join(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateJoined:
		return ErrAlreadyJoined
	case stateLeft:
		return ErrLeft
	}

	go c.loop.run()

	sub, err := c.broadcaster.Subscribe(ctx, c.roomID, channel.Handler{
		OnMessage:      c.onMessage,
		OnPresenceSync: c.onPresenceSync,
	})
	if err != nil {
		c.loop.stop()
		c.loop = newEventLoop()
		return fmt.Errorf("failed to subscribe to room: %w", err)
	}

	c.sub = sub
	c.state = stateJoined
	c.player.OnStateChange(c.onPlayerState)

	if err := sub.Track(ctx, channel.Meta{
		MemberKey:   c.memberKey,
		ConnectedAt: c.clock.Now().UnixMilli(),
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to announce presence", "error", err)
	}

	c.logger.InfoContext(ctx, "joined room", "member_key", c.memberKey)

	return nil
}

// Leave unsubscribes, detaches from the player and stops the event loop.
// Afterwards nothing is applied or published. It must not be called from a
// client callback.
func (c *Client) Leave() error {
	c.mu.Lock()
	if c.state != stateJoined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	c.state = stateLeft
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	err := sub.Unsubscribe()
	c.player.OnStateChange(nil)
	c.loop.stop()

	c.logger.Info("left room")

	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	return nil
}

func (c *Client) send(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()

	if sub == nil {
		return ErrNotJoined
	}

	return sub.Send(ctx, event, payload)
}

func (c *Client) onMessage(event string, payload json.RawMessage) {
	switch event {
	case EventSync:
		var ev SyncEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.logger.Warn("dropping malformed sync event", "error", err)
			return
		}
		if err := ev.Validate(); err != nil {
			c.logger.Warn("dropping sync event", "error", err)
			return
		}
		c.loop.post(func() { c.OnRemoteEvent(ev) })
	case EventChat:
		var msg ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn("dropping malformed chat message", "error", err)
			return
		}
		c.loop.post(func() {
			if !c.left() {
				c.chat.receive(msg)
			}
		})
	default:
		c.logger.Debug("ignoring event", "event", event)
	}
}

func (c *Client) onPresenceSync(p channel.Presence) {
	c.loop.post(func() {
		if !c.left() {
			c.presence.Sync(p)
		}
	})
}

func (c *Client) onPlayerState(s player.State) {
	c.loop.post(func() { c.handleLocalState(s) })
}

func (c *Client) handleLocalState(s player.State) {
	if c.left() {
		return
	}

	if c.suppressor.Absorb(s) {
		c.logger.Debug("absorbed remote echo", "state", s.String())
		return
	}

	if !c.player.Ready() {
		return
	}

	kind, ok := kindFromState(s)
	if !ok {
		return
	}

	c.PublishLocalTransition(kind, c.player.CurrentTime())
}

// PublishLocalTransition broadcasts a local play or pause. Send failures are
// logged and never retried.
func (c *Client) PublishLocalTransition(kind Kind, positionSeconds float64) {
	if c.left() {
		return
	}

	ev := SyncEvent{
		ID:              uuid.NewString(),
		Kind:            kind,
		PositionSeconds: positionSeconds,
		Origin:          c.origin,
		SentAt:          c.clock.Now().UnixMilli(),
	}

	if err := c.send(context.Background(), EventSync, ev); err != nil {
		c.logger.Warn("failed to publish sync event", "kind", kind, "error", err)
		return
	}

	c.logger.Debug("published sync event", "id", ev.ID, "kind", kind, "position", positionSeconds)
}

// OnRemoteEvent applies a peer's transition to the local player. It runs on
// the event loop.
func (c *Client) OnRemoteEvent(ev SyncEvent) {
	if c.left() || ev.Origin == c.origin {
		return
	}

	if !c.player.Ready() {
		c.logger.Debug("player not ready, skipping sync event", "id", ev.ID)
		return
	}

	target := ev.Kind.State()
	seek := c.reconciler.ShouldSeek(c.player.CurrentTime(), ev.PositionSeconds)
	transition := c.player.State() != target

	if !seek && !transition {
		return
	}

	apply := func() {
		if seek {
			if err := c.player.SeekTo(ev.PositionSeconds); err != nil {
				c.logger.Warn("failed to seek", "position", ev.PositionSeconds, "error", err)
			}
		}
		if !transition {
			return
		}

		var err error
		if target == player.StatePlaying {
			err = c.player.Play()
		} else {
			err = c.player.Pause()
		}
		if err != nil {
			c.logger.Warn("failed to apply sync event", "kind", ev.Kind, "error", err)
		}
	}

	if !transition {
		apply()
		return
	}

	corr := c.suppressor.WithRemoteApplication(target, apply)
	c.logger.Debug("applied sync event", "id", ev.ID, "kind", ev.Kind, "seek", seek, "correlation_id", corr)
}

func (c *Client) flush() bool {
	return c.loop.flush()
}
