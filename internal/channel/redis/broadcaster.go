package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/channel"
)

type Config struct {
	PresenceTTL time.Duration
	Heartbeat   time.Duration
	Clock       clockwork.Clock
}

// Broadcaster fans room messages out over redis pub/sub. Presence lives in a
// per-room hash of metas plus a sorted set of expiry deadlines refreshed by
// each tracking subscription's heartbeat.
type Broadcaster struct {
	rc          *redis.Client
	logger      *slog.Logger
	clock       clockwork.Clock
	presenceTTL time.Duration
	heartbeat   time.Duration
}

func NewBroadcaster(rc *redis.Client, logger *slog.Logger, cfg *Config) *Broadcaster {
	b := &Broadcaster{
		rc:          rc,
		logger:      logger,
		clock:       clockwork.NewRealClock(),
		presenceTTL: 30 * time.Second,
		heartbeat:   10 * time.Second,
	}
	if cfg != nil {
		if cfg.Clock != nil {
			b.clock = cfg.Clock
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

func (b *Broadcaster) getBroadcastKey(topic string) string {
	return "room:" + topic + ":broadcast"
}

func (b *Broadcaster) getPresenceKey(topic string) string {
	return "room:" + topic + ":presence"
}

func (b *Broadcaster) getPresenceExpiryKey(topic string) string {
	return "room:" + topic + ":presence-expiry"
}

func (b *Broadcaster) Subscribe(ctx context.Context, topic string, h channel.Handler) (channel.Subscription, error) {
	if topic == "" {
		return nil, channel.ErrInvalidTopic
	}

	ps := b.rc.Subscribe(ctx, b.getBroadcastKey(topic))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	s := &subscription{
		b:       b,
		topic:   topic,
		ref:     uuid.NewString(),
		handler: h,
		ps:      ps,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go s.listen(ps.Channel())

	b.logger.DebugContext(ctx, "subscribed", "topic", topic, "ref", s.ref)

	return s, nil
}

func (b *Broadcaster) publish(ctx context.Context, topic string, env *channel.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := b.rc.Publish(ctx, b.getBroadcastKey(topic), data).Err(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	return nil
}

func (b *Broadcaster) readPresence(ctx context.Context, topic string) (channel.Presence, error) {
	now := strconv.FormatInt(b.clock.Now().UnixMilli(), 10)
	alive, err := b.rc.ZRangeByScore(ctx, b.getPresenceExpiryKey(topic), &redis.ZRangeBy{
		Min: "(" + now,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get alive refs: %w", err)
	}

	p := make(channel.Presence, len(alive))
	if len(alive) == 0 {
		return p, nil
	}

	values, err := b.rc.HMGet(ctx, b.getPresenceKey(topic), alive...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get metas: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		var meta channel.Meta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			b.logger.WarnContext(ctx, "skipping malformed presence meta", "ref", alive[i], "error", err)
			continue
		}
		p[alive[i]] = []channel.Meta{meta}
	}

	return p, nil
}

func (b *Broadcaster) publishPresence(ctx context.Context, topic string) error {
	p, err := b.readPresence(ctx, topic)
	if err != nil {
		return err
	}

	return b.publish(ctx, topic, &channel.Envelope{Kind: channel.KindPresence, Presence: p})
}

// sweep drops presence entries whose deadline passed and reports whether any
// were removed.
func (b *Broadcaster) sweep(ctx context.Context, topic string) (bool, error) {
	now := strconv.FormatInt(b.clock.Now().UnixMilli(), 10)
	expiryKey := b.getPresenceExpiryKey(topic)

	expired, err := b.rc.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("failed to get expired refs: %w", err)
	}

	if len(expired) == 0 {
		return false, nil
	}

	members := make([]any, 0, len(expired))
	for _, ref := range expired {
		members = append(members, ref)
	}

	pipe := b.rc.TxPipeline()
	pipe.ZRem(ctx, expiryKey, members...)
	pipe.HDel(ctx, b.getPresenceKey(topic), expired...)
	if err := executePipe(ctx, pipe); err != nil {
		return false, fmt.Errorf("failed to remove expired refs: %w", err)
	}

	return true, nil
}

func executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

type subscription struct {
	b       *Broadcaster
	topic   string
	ref     string
	handler channel.Handler
	ps      *redis.PubSub

	mu        sync.Mutex
	closed    bool
	tracking  bool
	meta      channel.Meta
	done      chan struct{}
	stopped   chan struct{}
	heartbeat clockwork.Ticker
}

func (s *subscription) Ref() string {
	return s.ref
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *subscription) listen(ch <-chan *redis.Message) {
	defer close(s.stopped)

	for msg := range ch {
		if s.isClosed() {
			continue
		}

		var env channel.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			s.b.logger.Warn("dropping malformed envelope", "topic", s.topic, "error", err)
			continue
		}

		s.handler.Dispatch(&env)
	}
}

func (s *subscription) Send(ctx context.Context, event string, payload any) error {
	if s.isClosed() {
		return channel.ErrClosed
	}

	env, err := channel.NewMessage(s.ref, event, payload)
	if err != nil {
		return err
	}

	return s.b.publish(ctx, s.topic, env)
}

func (s *subscription) Track(ctx context.Context, meta channel.Meta) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return channel.ErrClosed
	}
	s.meta = meta
	startHeartbeat := !s.tracking
	s.tracking = true
	if startHeartbeat {
		s.heartbeat = s.b.clock.NewTicker(s.b.heartbeat)
	}
	s.mu.Unlock()

	if err := s.refresh(ctx, meta); err != nil {
		return err
	}

	if startHeartbeat {
		go s.beat()
	}

	return s.b.publishPresence(ctx, s.topic)
}

func (s *subscription) refresh(ctx context.Context, meta channel.Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	deadline := s.b.clock.Now().Add(s.b.presenceTTL).UnixMilli()
	presenceKey := s.b.getPresenceKey(s.topic)
	expiryKey := s.b.getPresenceExpiryKey(s.topic)

	pipe := s.b.rc.TxPipeline()
	pipe.HSet(ctx, presenceKey, s.ref, data)
	pipe.ZAdd(ctx, expiryKey, redis.Z{Score: float64(deadline), Member: s.ref})
	pipe.Expire(ctx, presenceKey, 2*s.b.presenceTTL)
	pipe.Expire(ctx, expiryKey, 2*s.b.presenceTTL)
	if err := executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}

	return nil
}

func (s *subscription) beat() {
	for {
		select {
		case <-s.done:
			return
		case <-s.heartbeat.Chan():
			ctx := context.Background()

			s.mu.Lock()
			meta := s.meta
			s.mu.Unlock()

			if err := s.refresh(ctx, meta); err != nil {
				s.b.logger.Warn("failed to refresh presence", "topic", s.topic, "error", err)
				continue
			}

			changed, err := s.b.sweep(ctx, s.topic)
			if err != nil {
				s.b.logger.Warn("failed to sweep presence", "topic", s.topic, "error", err)
				continue
			}

			if changed {
				if err := s.b.publishPresence(ctx, s.topic); err != nil {
					s.b.logger.Warn("failed to publish presence", "topic", s.topic, "error", err)
				}
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
	s.closed = true
	tracking := s.tracking
	if tracking {
		s.heartbeat.Stop()
	}
	close(s.done)
	s.mu.Unlock()

	ctx := context.Background()

	if tracking {
		pipe := s.b.rc.TxPipeline()
		pipe.ZRem(ctx, s.b.getPresenceExpiryKey(s.topic), s.ref)
		pipe.HDel(ctx, s.b.getPresenceKey(s.topic), s.ref)
		if err := executePipe(ctx, pipe); err != nil {
			s.b.logger.Warn("failed to remove presence", "topic", s.topic, "error", err)
		} else if err := s.b.publishPresence(ctx, s.topic); err != nil {
			s.b.logger.Warn("failed to publish presence", "topic", s.topic, "error", err)
		}
	}

	if err := s.ps.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub: %w", err)
	}
	<-s.stopped

	return nil
}
