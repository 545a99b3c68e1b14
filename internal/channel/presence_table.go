package channel

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type presenceEntry struct {
	meta Meta
	seen time.Time
}

// PresenceTable keeps heartbeat-driven presence for backends without a
// native presence primitive. Entries not refreshed within ttl are dropped by
// Sweep.
type PresenceTable struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[string]presenceEntry
}

func NewPresenceTable(clock clockwork.Clock, ttl time.Duration) *PresenceTable {
	return &PresenceTable{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]presenceEntry),
	}
}

// Upsert records a heartbeat and reports whether the visible state changed.
func (t *PresenceTable) Upsert(ref string, meta Meta) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.entries[ref]
	t.entries[ref] = presenceEntry{meta: meta, seen: t.clock.Now()}

	return !ok || prev.meta != meta
}

func (t *PresenceTable) Remove(ref string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[ref]; !ok {
		return false
	}
	delete(t.entries, ref)

	return true
}

func (t *PresenceTable) Sweep() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	changed := false
	for ref, e := range t.entries {
		if now.Sub(e.seen) > t.ttl {
			delete(t.entries, ref)
			changed = true
		}
	}

	return changed
}

func (t *PresenceTable) Snapshot() Presence {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := make(Presence, len(t.entries))
	for ref, e := range t.entries {
		p[ref] = []Meta{e.meta}
	}

	return p
}
