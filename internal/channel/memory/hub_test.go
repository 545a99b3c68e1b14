package memory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/sharetube/watchparty/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	messages  []string
	presences []channel.Presence
}

func (r *recorder) handler() channel.Handler {
	return channel.Handler{
		OnMessage: func(event string, payload json.RawMessage) {
			r.messages = append(r.messages, event+":"+string(payload))
		},
		OnPresenceSync: func(p channel.Presence) {
			r.presences = append(r.presences, p)
		},
	}
}

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubSendIsSelfInclusiveAndRoomScoped(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	var a, b, other recorder
	subA, err := hub.Subscribe(ctx, "alpha", a.handler())
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "alpha", b.handler())
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "beta", other.handler())
	require.NoError(t, err)

	require.NoError(t, subA.Send(ctx, "SYNC", map[string]string{"kind": "PLAY"}))

	assert.Equal(t, []string{`SYNC:{"kind":"PLAY"}`}, a.messages)
	assert.Equal(t, []string{`SYNC:{"kind":"PLAY"}`}, b.messages)
	assert.Empty(t, other.messages)
}

func TestHubPresence(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	var a, b recorder
	subA, err := hub.Subscribe(ctx, "alpha", a.handler())
	require.NoError(t, err)
	subB, err := hub.Subscribe(ctx, "alpha", b.handler())
	require.NoError(t, err)

	require.NoError(t, subA.Track(ctx, channel.Meta{MemberKey: "ann", ConnectedAt: 1}))
	require.NoError(t, subB.Track(ctx, channel.Meta{MemberKey: "bob", ConnectedAt: 2}))

	require.NotEmpty(t, a.presences)
	last := a.presences[len(a.presences)-1]
	assert.Len(t, last, 2)
	assert.Equal(t, "bob", last[subB.Ref()][0].MemberKey)

	require.NoError(t, subB.Unsubscribe())
	last = a.presences[len(a.presences)-1]
	assert.Len(t, last, 1)
	assert.Contains(t, last, subA.Ref())

	assert.ErrorIs(t, subB.Send(ctx, "SYNC", nil), channel.ErrClosed)
	assert.ErrorIs(t, subB.Unsubscribe(), channel.ErrClosed)

	require.NoError(t, subA.Unsubscribe())
	assert.Equal(t, 0, hub.Topics())
}

func TestHubRejectsEmptyTopic(t *testing.T) {
	_, err := newTestHub().Subscribe(context.Background(), "", channel.Handler{})
	assert.ErrorIs(t, err, channel.ErrInvalidTopic)
}
