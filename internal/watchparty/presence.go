package watchparty

import (
	"slices"
	"sort"
	"sync"

	"github.com/sharetube/watchparty/internal/channel"
	"golang.org/x/exp/maps"
)

// Tracker keeps the de-duplicated member keys of the room.
type Tracker struct {
	mu       sync.Mutex
	members  []string
	onChange func(members []string)
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) OnChange(fn func(members []string)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onChange = fn
}

// Sync replaces the member set from a presence snapshot.
func (t *Tracker) Sync(p channel.Presence) {
	set := make(map[string]struct{})
	for _, metas := range p {
		for _, meta := range metas {
			if meta.MemberKey != "" {
				set[meta.MemberKey] = struct{}{}
			}
		}
	}

	members := maps.Keys(set)
	sort.Strings(members)

	t.mu.Lock()
	if slices.Equal(t.members, members) {
		t.mu.Unlock()
		return
	}
	t.members = members
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(slices.Clone(members))
	}
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.members)
}

func (t *Tracker) Members() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.members)
}
