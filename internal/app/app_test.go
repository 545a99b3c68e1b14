package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/channel/wsclient"
	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/watchparty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *AppConfig {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	return &AppConfig{
		Host:              "127.0.0.1",
		Port:              8080,
		LogLevel:          "debug",
		Backend:           backend,
		PartyTTL:          time.Hour,
		PresenceTTL:       30 * time.Second,
		PresenceHeartbeat: 10 * time.Second,
		RedisHost:         s.Host(),
		RedisPort:         port,
	}
}

func TestAppConfigValidate(t *testing.T) {
	cfg := testConfig(t, BackendRedis)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Backend = "kafka"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Backend = BackendNats
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.PresenceTTL = bad.PresenceHeartbeat
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.LogLevel = "loud"
	assert.Error(t, bad.Validate())
}

type watcher struct {
	client *watchparty.Client
	el     *player.VirtualElement
}

func joinRelay(t *testing.T, relayURL, room, memberKey string, position float64, playing bool) *watcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	el := player.NewVirtualElement(clockwork.NewRealClock())
	el.SetCurrentTime(position)
	if playing {
		require.NoError(t, el.Play())
	}

	c := watchparty.NewClient(
		wsclient.New(relayURL, logger, wsclient.WithMemberKey(memberKey)),
		player.NewMediaPlayer(el),
		logger,
		watchparty.Config{RoomID: room, MemberKey: memberKey},
	)
	require.NoError(t, c.Join(context.Background()))
	t.Cleanup(func() { _ = c.Leave() })

	return &watcher{client: c, el: el}
}

func TestRelayEndToEnd(t *testing.T) {
	for _, backend := range []string{BackendMemory, BackendRedis} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			a, err := New(context.Background(), cfg, logger)
			require.NoError(t, err)
			srv := httptest.NewServer(a.Handler())
			t.Cleanup(func() {
				srv.Close()
				_ = a.Shutdown(context.Background(), nil)
			})

			resp, err := http.Post(srv.URL+"/api/watch-parties", "application/json", strings.NewReader(
				`{"creator":"ann","room_id":"movie-night","content_id":"https://cdn.example.com/a.mp4","content_source":"media"}`))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			p, err := fetchParty(context.Background(), http.DefaultClient, srv.URL, "movie-night")
			require.NoError(t, err)
			assert.Equal(t, player.SourceMedia, p.ContentSource)

			_, err = fetchParty(context.Background(), http.DefaultClient, srv.URL, "no-such-room")
			assert.ErrorIs(t, err, ErrPartyNotFound)

			ann := joinRelay(t, srv.URL, "movie-night", "ann", 0, false)
			bob := joinRelay(t, srv.URL, "movie-night", "bob", 0, false)

			require.Eventually(t, func() bool {
				return ann.client.Presence().Count() == 2 && bob.client.Presence().Count() == 2
			}, 3*time.Second, 10*time.Millisecond)

			require.NoError(t, ann.el.Play())
			require.Eventually(t, func() bool { return !bob.el.Paused() }, 3*time.Second, 10*time.Millisecond)
			assert.Less(t, bob.el.CurrentTime(), 2.0)

			require.NoError(t, ann.el.Pause())
			require.Eventually(t, func() bool { return bob.el.Paused() }, 3*time.Second, 10*time.Millisecond)
			assert.True(t, ann.el.Paused(), "remote echo must not flip the sender back")
		})
	}
}

func TestShutdownClosesMemberConnections(t *testing.T) {
	cfg := testConfig(t, BackendMemory)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ann := joinRelay(t, srv.URL, "alpha", "ann", 0, false)
	require.Eventually(t, func() bool { return ann.client.Presence().Count() == 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Shutdown(context.Background(), nil))

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && strings.Contains(string(body), "watchparty_connections 0")
	}, 3*time.Second, 10*time.Millisecond)
}
