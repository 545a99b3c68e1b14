package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/sharetube/watchparty/internal/channel"
)

type Config struct {
	SubjectPrefix string
	PresenceTTL   time.Duration
	Heartbeat     time.Duration
	Clock         clockwork.Clock
}

// Connect dials NATS with reconnects enabled for the lifetime of the relay.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("watchparty-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}

// Broadcaster publishes room envelopes on one subject per room. NATS has no
// presence primitive, so tracking subscriptions heartbeat their meta and every
// subscriber keeps its own presence table.
type Broadcaster struct {
	nc            *nats.Conn
	logger        *slog.Logger
	clock         clockwork.Clock
	subjectPrefix string
	presenceTTL   time.Duration
	heartbeat     time.Duration
}

func NewBroadcaster(nc *nats.Conn, logger *slog.Logger, cfg *Config) *Broadcaster {
	b := &Broadcaster{
		nc:            nc,
		logger:        logger,
		clock:         clockwork.NewRealClock(),
		subjectPrefix: "watchparty.room.",
		presenceTTL:   30 * time.Second,
		heartbeat:     10 * time.Second,
	}
	if cfg != nil {
		if cfg.Clock != nil {
			b.clock = cfg.Clock
		}
		if cfg.SubjectPrefix != "" {
			b.subjectPrefix = cfg.SubjectPrefix
		}
		if cfg.PresenceTTL > 0 {
			b.presenceTTL = cfg.PresenceTTL
		}
		if cfg.Heartbeat > 0 {
			b.heartbeat = cfg.Heartbeat
		}
	}

	return b
}

func (b *Broadcaster) subject(topic string) (string, error) {
	if topic == "" || strings.ContainsAny(topic, ".*> \t\r\n") {
		return "", channel.ErrInvalidTopic
	}

	return b.subjectPrefix + topic, nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, topic string, h channel.Handler) (channel.Subscription, error) {
	subject, err := b.subject(topic)
	if err != nil {
		return nil, err
	}

	s := b.newSubscription(topic, subject, h)

	ns, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		s.receive(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	s.ns = ns

	b.logger.DebugContext(ctx, "subscribed", "subject", subject, "ref", s.ref)

	return s, nil
}

func (b *Broadcaster) newSubscription(topic, subject string, h channel.Handler) *subscription {
	return &subscription{
		b:       b,
		topic:   topic,
		subject: subject,
		ref:     uuid.NewString(),
		handler: h,
		table:   channel.NewPresenceTable(b.clock, b.presenceTTL),
		done:    make(chan struct{}),
	}
}

type subscription struct {
	b       *Broadcaster
	topic   string
	subject string
	ref     string
	handler channel.Handler
	table   *channel.PresenceTable
	ns      *nats.Subscription

	mu       sync.Mutex
	closed   bool
	meta     *channel.Meta
	done     chan struct{}
	ticker   clockwork.Ticker
	tracking bool
}

func (s *subscription) Ref() string {
	return s.ref
}

func (s *subscription) publish(env *channel.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := s.b.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	return nil
}

func (s *subscription) receive(data []byte) {
	s.mu.Lock()
	closed := s.closed
	meta := s.meta
	s.mu.Unlock()
	if closed {
		return
	}

	var env channel.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.b.logger.Warn("dropping malformed envelope", "subject", s.subject, "error", err)
		return
	}

	switch env.Kind {
	case channel.KindMessage:
		s.handler.Dispatch(&env)
	case channel.KindJoin:
		if env.Meta == nil {
			return
		}
		if s.table.Upsert(env.Ref, *env.Meta) {
			// answer newcomers so they do not wait a full heartbeat to see us
			if meta != nil && env.Ref != s.ref {
				if err := s.publish(&channel.Envelope{Kind: channel.KindJoin, Ref: s.ref, Meta: meta}); err != nil {
					s.b.logger.Warn("failed to answer join", "subject", s.subject, "error", err)
				}
			}
			s.dispatchPresence()
		}
	case channel.KindLeave:
		if s.table.Remove(env.Ref) {
			s.dispatchPresence()
		}
	}
}

func (s *subscription) dispatchPresence() {
	s.handler.Dispatch(&channel.Envelope{Kind: channel.KindPresence, Presence: s.table.Snapshot()})
}

func (s *subscription) Send(ctx context.Context, event string, payload any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return channel.ErrClosed
	}

	env, err := channel.NewMessage(s.ref, event, payload)
	if err != nil {
		return err
	}

	return s.publish(env)
}

func (s *subscription) Track(ctx context.Context, meta channel.Meta) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return channel.ErrClosed
	}
	s.meta = &meta
	start := !s.tracking
	s.tracking = true
	if start {
		s.ticker = s.b.clock.NewTicker(s.b.heartbeat)
	}
	s.mu.Unlock()

	if start {
		go s.beat()
	}

	return s.publish(&channel.Envelope{Kind: channel.KindJoin, Ref: s.ref, Meta: &meta})
}

func (s *subscription) beat() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.Chan():
			s.mu.Lock()
			meta := s.meta
			s.mu.Unlock()

			if err := s.publish(&channel.Envelope{Kind: channel.KindJoin, Ref: s.ref, Meta: meta}); err != nil {
				s.b.logger.Warn("failed to publish heartbeat", "subject", s.subject, "error", err)
			}

			if s.table.Sweep() {
				s.dispatchPresence()
			}
		}
	}
}

func (s *subscription) Unsubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return channel.ErrClosed
	}
	tracking := s.tracking
	if tracking {
		s.ticker.Stop()
	}
	close(s.done)
	s.mu.Unlock()

	if tracking {
		if err := s.publish(&channel.Envelope{Kind: channel.KindLeave, Ref: s.ref}); err != nil {
			s.b.logger.Warn("failed to publish leave", "subject", s.subject, "error", err)
		}
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.ns.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	return nil
}
