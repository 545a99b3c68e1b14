package watchparty

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

var ErrEmptyMessage = errors.New("empty chat message")

type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Chat sends and receives room chat. Own messages are delivered back like
// any other.
type Chat struct {
	user  string
	clock clockwork.Clock
	send  func(ctx context.Context, event string, payload any) error

	mu        sync.Mutex
	onMessage func(ChatMessage)
}

func (c *Chat) OnMessage(fn func(ChatMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onMessage = fn
}

func (c *Chat) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	return c.send(ctx, EventChat, ChatMessage{
		User:      c.user,
		Text:      text,
		Timestamp: c.clock.Now().UnixMilli(),
	})
}

func (c *Chat) receive(msg ChatMessage) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()

	if fn != nil {
		fn(msg)
	}
}
