package nats

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster() *Broadcaster {
	return NewBroadcaster(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), &Config{
		Clock: clockwork.NewFakeClock(),
	})
}

func TestSubject(t *testing.T) {
	b := newTestBroadcaster()

	subject, err := b.subject("movie-night")
	require.NoError(t, err)
	assert.Equal(t, "watchparty.room.movie-night", subject)

	for _, topic := range []string{"", "a.b", "a*", "a>", "a b"} {
		_, err := b.subject(topic)
		assert.ErrorIs(t, err, channel.ErrInvalidTopic, topic)
	}
}

func TestReceiveMaintainsPresence(t *testing.T) {
	b := newTestBroadcaster()

	var messages []string
	var presence channel.Presence
	s := b.newSubscription("alpha", "watchparty.room.alpha", channel.Handler{
		OnMessage: func(event string, payload json.RawMessage) {
			messages = append(messages, event)
		},
		OnPresenceSync: func(p channel.Presence) {
			presence = p
		},
	})

	encode := func(env channel.Envelope) []byte {
		data, err := json.Marshal(env)
		require.NoError(t, err)
		return data
	}

	ann := channel.Meta{MemberKey: "ann", ConnectedAt: 1}
	s.receive(encode(channel.Envelope{Kind: channel.KindJoin, Ref: "r1", Meta: &ann}))
	assert.Equal(t, channel.Presence{"r1": {ann}}, presence)

	s.receive(encode(channel.Envelope{Kind: channel.KindMessage, Ref: "r1", Event: "SYNC", Payload: json.RawMessage(`{}`)}))
	assert.Equal(t, []string{"SYNC"}, messages)

	s.receive(encode(channel.Envelope{Kind: channel.KindLeave, Ref: "r1"}))
	assert.Empty(t, presence)

	s.receive([]byte("garbage"))
	assert.Len(t, messages, 1)
}
