// Package wsclient implements channel.Broadcaster on top of the relay's
// websocket endpoint. Each subscription owns one connection.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/channel"
)

var ErrUnexpectedFrame = errors.New("unexpected frame")

const writeWait = 10 * time.Second

type Client struct {
	baseURL   string
	memberKey string
	dialer    *websocket.Dialer
	logger    *slog.Logger
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithMemberKey adds the member key to the connect URL so relay logs can
// attribute the session before it tracks.
func WithMemberKey(memberKey string) Option {
	return func(c *Client) {
		c.memberKey = memberKey
	}
}

// New creates a client for the relay at baseURL (http, https, ws or wss).
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) roomURL(topic string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse relay url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	u = u.JoinPath("ws", "rooms", topic)
	if c.memberKey != "" {
		q := u.Query()
		q.Set("member-key", c.memberKey)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func (c *Client) Subscribe(ctx context.Context, topic string, h channel.Handler) (channel.Subscription, error) {
	if topic == "" {
		return nil, channel.ErrInvalidTopic
	}

	u, err := c.roomURL(topic)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	var joined Frame
	if err := conn.ReadJSON(&joined); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read joined frame: %w", err)
	}
	if joined.Type != FrameJoined {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFrame, joined.Type)
	}

	var jp JoinedPayload
	if err := json.Unmarshal(joined.Payload, &jp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to decode joined frame: %w", err)
	}

	s := &subscription{
		conn:    conn,
		ref:     jp.Ref,
		handler: h,
		logger:  c.logger.With("topic", topic, "ref", jp.Ref),
		stopped: make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

type subscription struct {
	conn    *websocket.Conn
	ref     string
	handler channel.Handler
	logger  *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
	stopped chan struct{}
}

func (s *subscription) Ref() string {
	return s.ref
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *subscription) readLoop() {
	defer close(s.stopped)

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !s.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("relay connection lost", "error", err)
			}
			return
		}

		if s.isClosed() {
			return
		}

		switch frame.Type {
		case FrameBroadcast:
			var p BroadcastPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil {
				s.logger.Warn("dropping malformed broadcast", "error", err)
				continue
			}
			s.handler.Dispatch(&channel.Envelope{Kind: channel.KindMessage, Event: p.Event, Payload: p.Payload})
		case FramePresenceSync:
			var p PresenceSyncPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil {
				s.logger.Warn("dropping malformed presence sync", "error", err)
				continue
			}
			s.handler.Dispatch(&channel.Envelope{Kind: channel.KindPresence, Presence: p.Presence})
		case FrameError:
			var p ErrorPayload
			_ = json.Unmarshal(frame.Payload, &p)
			s.logger.Warn("relay reported error", "message", p.Message)
		default:
			s.logger.Debug("ignoring frame", "type", frame.Type)
		}
	}
}

func (s *subscription) write(frame *Output) error {
	if s.isClosed() {
		return channel.ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

func (s *subscription) Send(ctx context.Context, event string, payload any) error {
	raw, err := channel.MarshalPayload(payload)
	if err != nil {
		return err
	}

	return s.write(&Output{
		Type:    FrameBroadcast,
		Payload: BroadcastPayload{Event: event, Payload: raw},
	})
}

func (s *subscription) Track(ctx context.Context, meta channel.Meta) error {
	return s.write(&Output{
		Type:    FrameTrack,
		Payload: TrackPayload(meta),
	})
}

func (s *subscription) Unsubscribe() error {
	s.writeMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return channel.ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.writeMu.Unlock()

	err := s.conn.Close()
	<-s.stopped

	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	return nil
}
