package controller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/channel/memory"
	"github.com/sharetube/watchparty/internal/channel/wsclient"
	"github.com/sharetube/watchparty/internal/metrics"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	partyRedis "github.com/sharetube/watchparty/internal/repository/party/redis"
	"github.com/sharetube/watchparty/internal/service/party"
	"github.com/sharetube/watchparty/pkg/roomid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	partyService := party.NewService(
		partyRedis.NewRepo(rc, time.Hour),
		inmemory.NewRepo(),
		memory.NewHub(logger),
		nil,
		roomid.New(),
		m,
		logger,
		&party.Config{},
	)

	srv := httptest.NewServer(NewController(partyService, m, logger).GetMux())
	t.Cleanup(srv.Close)

	return srv
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func TestPartyEndpoints(t *testing.T) {
	srv := newTestServer(t)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/watch-parties",
		`{"creator":"ann","room_id":"movie-night","content_id":"https://cdn.example.com/a.mp4","content_source":"media"}`)
	require.Equal(t, http.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "movie-night", data["room_id"])
	assert.Equal(t, "/rooms/movie-night?content=https%3A%2F%2Fcdn.example.com%2Fa.mp4", data["join_path"])

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/api/watch-parties",
		`{"creator":"bob","room_id":"movie-night","content_id":"x","content_source":"media"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, body = doJSON(t, http.MethodPost, srv.URL+"/api/watch-parties",
		`{"creator":"bob","room_id":"a!","content_id":"x","content_source":"vimeo"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Len(t, body["errors"], 2)

	status, body = doJSON(t, http.MethodPost, srv.URL+"/api/watch-parties",
		`{"creator":"bob","content_id":"x","content_source":"media"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, body["data"].(map[string]any)["room_id"], 10)

	status, body = doJSON(t, http.MethodGet, srv.URL+"/api/watch-parties/movie-night", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ann", body["data"].(map[string]any)["creator"])

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/api/watch-parties/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/api/watch-parties/ab", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

type inbox struct {
	mu       sync.Mutex
	events   []string
	presence channel.Presence
}

func (in *inbox) handler() channel.Handler {
	return channel.Handler{
		OnMessage: func(event string, payload json.RawMessage) {
			in.mu.Lock()
			defer in.mu.Unlock()
			in.events = append(in.events, event+" "+string(payload))
		},
		OnPresenceSync: func(p channel.Presence) {
			in.mu.Lock()
			defer in.mu.Unlock()
			in.presence = p
		},
	}
}

func (in *inbox) snapshot() ([]string, channel.Presence) {
	in.mu.Lock()
	defer in.mu.Unlock()

	return append([]string(nil), in.events...), in.presence
}

func TestRelayForwardsWithinRoom(t *testing.T) {
	srv := newTestServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	var ann, bob, cid inbox
	annSub, err := wsclient.New(srv.URL, logger, wsclient.WithMemberKey("ann")).Subscribe(ctx, "alpha", ann.handler())
	require.NoError(t, err)
	defer annSub.Unsubscribe()
	bobSub, err := wsclient.New(srv.URL, logger, wsclient.WithMemberKey("bob")).Subscribe(ctx, "alpha", bob.handler())
	require.NoError(t, err)
	defer bobSub.Unsubscribe()
	cidSub, err := wsclient.New(srv.URL, logger).Subscribe(ctx, "beta", cid.handler())
	require.NoError(t, err)
	defer cidSub.Unsubscribe()

	assert.NotEqual(t, annSub.Ref(), bobSub.Ref())

	require.NoError(t, annSub.Track(ctx, channel.Meta{MemberKey: "ann", ConnectedAt: 1}))
	require.NoError(t, bobSub.Track(ctx, channel.Meta{ConnectedAt: 2}))
	require.NoError(t, annSub.Send(ctx, "SYNC", map[string]any{"kind": "PLAY"}))

	require.Eventually(t, func() bool {
		annEvents, annPresence := ann.snapshot()
		bobEvents, _ := bob.snapshot()
		return len(annEvents) == 1 && len(bobEvents) == 1 && len(annPresence) == 2
	}, 2*time.Second, 10*time.Millisecond)

	bobEvents, _ := bob.snapshot()
	assert.Equal(t, `SYNC {"kind":"PLAY"}`, bobEvents[0])

	_, annPresence := ann.snapshot()
	assert.Equal(t, []channel.Meta{{MemberKey: "bob", ConnectedAt: 2}}, annPresence[bobSub.Ref()])

	cidEvents, _ := cid.snapshot()
	assert.Empty(t, cidEvents)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	metricsBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), `watchparty_relayed_frames_total{event="SYNC"} 1`)
	assert.Contains(t, string(metricsBody), "watchparty_connections 3")
}

func TestRelayRejectsInvalidRoomID(t *testing.T) {
	srv := newTestServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := wsclient.New(srv.URL, logger).Subscribe(context.Background(), "ab", channel.Handler{})
	assert.Error(t, err)
}
