package watchparty

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/player"
)

const DefaultEchoWindow = 500 * time.Millisecond

type pendingApply struct {
	id       string
	expect   player.State
	deadline time.Time
}

// Suppressor tells player notifications caused by applying a remote event
// apart from genuine local transitions. Each remote application registers
// the state it is expected to produce with its own deadline; a notification
// for a registered state is absorbed, any other notification passes.
type Suppressor struct {
	clock  clockwork.Clock
	window time.Duration

	mu      sync.Mutex
	pending []pendingApply
}

func NewSuppressor(clock clockwork.Clock, window time.Duration) *Suppressor {
	if window <= 0 {
		window = DefaultEchoWindow
	}

	return &Suppressor{
		clock:  clock,
		window: window,
	}
}

// expireLocked drops registrations whose window has closed. Entries are kept
// in registration order, so deadlines are ascending.
func (s *Suppressor) expireLocked() {
	now := s.clock.Now()

	i := 0
	for i < len(s.pending) && !now.Before(s.pending[i].deadline) {
		i++
	}
	if i > 0 {
		s.pending = slices.Delete(s.pending, 0, i)
	}
}

// IsApplyingRemote reports whether any remote application window is open.
func (s *Suppressor) IsApplyingRemote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	return len(s.pending) > 0
}

// WithRemoteApplication registers a window expecting the player to reach
// expect, runs fn and returns the correlation id of the registration.
func (s *Suppressor) WithRemoteApplication(expect player.State, fn func()) string {
	id := uuid.NewString()

	s.mu.Lock()
	s.pending = append(s.pending, pendingApply{
		id:       id,
		expect:   expect,
		deadline: s.clock.Now().Add(s.window),
	})
	s.mu.Unlock()

	fn()

	return id
}

// Absorb reports whether a player notification is the echo of a pending
// remote application, consuming the oldest matching registration if so.
func (s *Suppressor) Absorb(state player.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	i := slices.IndexFunc(s.pending, func(p pendingApply) bool { return p.expect == state })
	if i < 0 {
		return false
	}
	s.pending = slices.Delete(s.pending, i, i+1)

	return true
}
