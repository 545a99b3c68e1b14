package party

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/channel/memory"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	partyRedis "github.com/sharetube/watchparty/internal/repository/party/redis"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVideoData struct {
	videos map[string]ytvideodata.VideoData
}

func (f fakeVideoData) Get(_ context.Context, videoID string) (*ytvideodata.VideoData, error) {
	v, ok := f.videos[videoID]
	if !ok {
		return nil, ytvideodata.ErrVideoNotFound
	}

	return &v, nil
}

type sequenceGenerator struct {
	ids []string
}

func (g *sequenceGenerator) GenerateRandomString(int) string {
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id
}

type countingMetrics struct {
	created map[string]int
}

func (m *countingMetrics) IncPartiesCreated(source string) {
	m.created[source]++
}

func newTestService(t *testing.T, gen iGenerator, cfg *Config) (*service, *countingMetrics) {
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := &countingMetrics{created: map[string]int{}}
	videos := fakeVideoData{videos: map[string]ytvideodata.VideoData{
		"dQw4w9WgXcQ": {Title: "Never Gonna Give You Up", AuthorName: "Rick Astley", ThumbnailUrl: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"},
	}}

	return NewService(
		partyRedis.NewRepo(rc, time.Hour),
		inmemory.NewRepo(),
		memory.NewHub(logger),
		videos,
		gen,
		metrics,
		logger,
		cfg,
	), metrics
}

func TestCreateParty(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gen := &sequenceGenerator{ids: []string{"taken00000", "fresh00000"}}
	service, metrics := newTestService(t, gen, &Config{Clock: clock})
	ctx := context.Background()

	createResp, err := service.CreateParty(ctx, &CreatePartyParams{
		Creator:       "ann",
		RoomID:        "taken00000",
		ContentID:     "dQw4w9WgXcQ",
		ContentSource: "youtube",
	})
	require.NoError(t, err)
	assert.Equal(t, "taken00000", createResp.Party.RoomID)
	assert.Equal(t, "/rooms/taken00000?content=dQw4w9WgXcQ", createResp.Party.JoinPath)
	require.NotNil(t, createResp.Party.Video)
	assert.Equal(t, "Rick Astley", createResp.Party.Video.AuthorName)

	_, err = service.CreateParty(ctx, &CreatePartyParams{Creator: "bob", RoomID: "taken00000", ContentID: "x", ContentSource: "media"})
	assert.ErrorIs(t, err, ErrRoomIDTaken)

	generatedResp, err := service.CreateParty(ctx, &CreatePartyParams{
		Creator:       "bob",
		ContentID:     "https://cdn.example.com/movie.mp4",
		ContentSource: "media",
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh00000", generatedResp.Party.RoomID, "collided id must be retried")
	assert.Nil(t, generatedResp.Party.Video)
	assert.Equal(t, clock.Now().UnixMilli(), generatedResp.Party.CreatedAt)

	getResp, err := service.GetParty(ctx, &GetPartyParams{RoomID: "taken00000"})
	require.NoError(t, err)
	assert.Equal(t, createResp.Party, getResp.Party)

	_, err = service.GetParty(ctx, &GetPartyParams{RoomID: "missing"})
	assert.ErrorIs(t, err, ErrPartyNotFound)

	assert.Equal(t, map[string]int{"youtube": 1, "media": 1}, metrics.created)
}

func TestCreatePartyUnknownVideo(t *testing.T) {
	service, _ := newTestService(t, &sequenceGenerator{ids: []string{"abc0000000"}}, &Config{})

	_, err := service.CreateParty(context.Background(), &CreatePartyParams{
		Creator:       "ann",
		ContentID:     "nope",
		ContentSource: "youtube",
	})
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestCreatePartyGivesUpOnCollisions(t *testing.T) {
	gen := &sequenceGenerator{ids: []string{"same000000", "same000000", "same000000"}}
	service, _ := newTestService(t, gen, &Config{MaxCreateAttempts: 2})
	ctx := context.Background()

	_, err := service.CreateParty(ctx, &CreatePartyParams{Creator: "ann", ContentID: "x", ContentSource: "media"})
	require.NoError(t, err)

	_, err = service.CreateParty(ctx, &CreatePartyParams{Creator: "bob", ContentID: "y", ContentSource: "media"})
	assert.ErrorIs(t, err, ErrIDSpaceExhausted)
}

func TestJoinAndLeaveRoom(t *testing.T) {
	service, _ := newTestService(t, nil, &Config{MembersLimit: 2})
	ctx := context.Background()

	var got []string
	handler := channel.Handler{OnMessage: func(event string, _ json.RawMessage) { got = append(got, event) }}

	first, err := service.JoinRoom(ctx, &JoinRoomParams{RoomID: "alpha", SessionID: "s1", Handler: handler})
	require.NoError(t, err)
	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomID: "alpha", SessionID: "s1", Handler: handler})
	assert.Error(t, err)

	second, err := service.JoinRoom(ctx, &JoinRoomParams{RoomID: "alpha", SessionID: "s2", Handler: handler})
	require.NoError(t, err)
	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomID: "alpha", SessionID: "s3", Handler: handler})
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 2, service.ConnectionCount())

	require.NoError(t, first.Subscription.Send(ctx, "SYNC", map[string]any{}))
	assert.Equal(t, []string{"SYNC", "SYNC"}, got)

	require.NoError(t, service.LeaveRoom(ctx, &LeaveRoomParams{SessionID: "s1", Subscription: first.Subscription}))
	require.NoError(t, service.LeaveRoom(ctx, &LeaveRoomParams{SessionID: "s2", Subscription: second.Subscription}))
	assert.Zero(t, service.ConnectionCount())
	assert.Zero(t, service.DisconnectAll("shutdown"))
}

func TestJoinRoomConcurrentRespectsLimit(t *testing.T) {
	service, _ := newTestService(t, nil, &Config{MembersLimit: 3})
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined []JoinRoomResponse
		full   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := service.JoinRoom(ctx, &JoinRoomParams{RoomID: "alpha", SessionID: fmt.Sprintf("s%d", i)})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrRoomFull)
				full++
				return
			}
			joined = append(joined, resp)
		}(i)
	}
	wg.Wait()

	assert.Len(t, joined, 3)
	assert.Equal(t, 17, full)
	assert.Equal(t, 3, service.ConnectionCount())

	for _, resp := range joined {
		require.NoError(t, resp.Subscription.Unsubscribe())
	}
}
