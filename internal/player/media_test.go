package player

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualElementPlayhead(t *testing.T) {
	clock := clockwork.NewFakeClock()
	el := NewVirtualElement(clock)

	assert.True(t, el.Paused())
	require.NoError(t, el.Play())
	clock.Advance(5 * time.Second)
	assert.InDelta(t, 5.0, el.CurrentTime(), 1e-9)

	require.NoError(t, el.Pause())
	clock.Advance(5 * time.Second)
	assert.InDelta(t, 5.0, el.CurrentTime(), 1e-9)

	el.SetCurrentTime(-3)
	assert.Zero(t, el.CurrentTime())
}

func TestVirtualElementPausesAtEnd(t *testing.T) {
	clock := clockwork.NewFakeClock()
	el := NewVirtualElement(clock, WithDuration(10))

	ended := make(chan struct{}, 1)
	el.AddEventListener("ended", func() { ended <- struct{}{} })

	require.NoError(t, el.Play())
	clock.Advance(11 * time.Second)

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended not dispatched")
	}
	assert.True(t, el.Paused())
	assert.InDelta(t, 10.0, el.CurrentTime(), 1e-9)
}

func TestMediaPlayerIdempotentCommands(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewMediaPlayer(NewVirtualElement(clock))

	var changes []State
	p.OnStateChange(func(s State) { changes = append(changes, s) })

	assert.True(t, p.Ready())
	assert.Equal(t, StatePaused, p.State())

	require.NoError(t, p.Pause())
	require.NoError(t, p.Play())
	require.NoError(t, p.Play())
	require.NoError(t, p.Pause())

	assert.Equal(t, []State{StatePlaying, StatePaused}, changes)
}

func TestMediaPlayerDelayedEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewMediaPlayer(NewVirtualElement(clock, WithEventDelay(100*time.Millisecond)))

	changes := make(chan State, 1)
	p.OnStateChange(func(s State) { changes <- s })

	require.NoError(t, p.Play())
	assert.Equal(t, StatePlaying, p.State())
	assert.Empty(t, changes)

	clock.Advance(100 * time.Millisecond)
	select {
	case s := <-changes:
		assert.Equal(t, StatePlaying, s)
	case <-time.After(time.Second):
		t.Fatal("play event not dispatched")
	}
}

func TestMediaPlayerClose(t *testing.T) {
	clock := clockwork.NewFakeClock()
	el := NewVirtualElement(clock)
	p := NewMediaPlayer(el)

	var changes []State
	p.OnStateChange(func(s State) { changes = append(changes, s) })

	require.NoError(t, p.Close())
	require.NoError(t, el.Play())

	assert.Empty(t, changes)
	assert.False(t, p.Ready())
	assert.Zero(t, p.CurrentTime())
	assert.ErrorIs(t, p.Play(), ErrNotReady)
	assert.ErrorIs(t, p.Close(), ErrClosed)
}

func TestSelect(t *testing.T) {
	clock := clockwork.NewFakeClock()

	p, err := Select(SourceMedia, Backends{Element: NewVirtualElement(clock)})
	require.NoError(t, err)
	assert.IsType(t, &MediaPlayer{}, p)

	p, err = Select(SourceYouTube, Backends{Frame: newFakeFrame(), VideoKey: "abc", Clock: clock, Logger: discardLogger()})
	require.NoError(t, err)
	assert.IsType(t, &IframePlayer{}, p)
	require.NoError(t, p.Close())

	_, err = Select(SourceYouTube, Backends{})
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = Select("vimeo", Backends{})
	assert.ErrorIs(t, err, ErrUnknownSource)
}
