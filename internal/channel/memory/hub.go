package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/channel"
)

// Hub is an in-process broadcaster. Handlers run on the sender's goroutine
// and must not block.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscription
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[string]*subscription),
		logger: logger,
	}
}

type subscription struct {
	hub     *Hub
	topic   string
	ref     string
	handler channel.Handler

	mu     sync.Mutex
	meta   *channel.Meta
	closed bool
}

func (h *Hub) Subscribe(ctx context.Context, topic string, handler channel.Handler) (channel.Subscription, error) {
	if topic == "" {
		return nil, channel.ErrInvalidTopic
	}

	s := &subscription{
		hub:     h,
		topic:   topic,
		ref:     uuid.NewString(),
		handler: handler,
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*subscription)
		h.topics[topic] = subs
	}
	subs[s.ref] = s
	h.mu.Unlock()

	h.logger.DebugContext(ctx, "subscribed", "topic", topic, "ref", s.ref)

	return s, nil
}

// Topics returns the number of topics with at least one subscriber.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.topics)
}

func (h *Hub) subscribers(topic string) []*subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]*subscription, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		subs = append(subs, s)
	}

	return subs
}

func (h *Hub) presence(topic string) channel.Presence {
	p := make(channel.Presence)
	for _, s := range h.subscribers(topic) {
		s.mu.Lock()
		if s.meta != nil {
			p[s.ref] = []channel.Meta{*s.meta}
		}
		s.mu.Unlock()
	}

	return p
}

func (h *Hub) syncPresence(topic string) {
	p := h.presence(topic)
	for _, s := range h.subscribers(topic) {
		s.handler.Dispatch(&channel.Envelope{Kind: channel.KindPresence, Presence: p.Clone()})
	}
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[s.topic]
	delete(subs, s.ref)
	if len(subs) == 0 {
		delete(h.topics, s.topic)
	}
}

func (s *subscription) Ref() string {
	return s.ref
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *subscription) Send(ctx context.Context, event string, payload any) error {
	if s.isClosed() {
		return channel.ErrClosed
	}

	env, err := channel.NewMessage(s.ref, event, payload)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	for _, sub := range s.hub.subscribers(s.topic) {
		sub.handler.Dispatch(env)
	}

	return nil
}

func (s *subscription) Track(ctx context.Context, meta channel.Meta) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return channel.ErrClosed
	}
	s.meta = &meta
	s.mu.Unlock()

	s.hub.syncPresence(s.topic)

	return nil
}

func (s *subscription) Unsubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return channel.ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.remove(s)
	s.hub.syncPresence(s.topic)

	return nil
}
