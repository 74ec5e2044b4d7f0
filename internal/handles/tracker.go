package handles

import (
	"sort"
	"sync"
)

// DefaultSlot holds a session's primary output.
const DefaultSlot = "output"

// Tracker owns the handles of one session. Each slot has at most one live
// handle; creating a new one revokes the previous.
type Tracker struct {
	registry *Registry

	mu    sync.Mutex
	slots map[string]Handle
}

// NewTracker returns a tracker issuing handles from registry.
func NewTracker(registry *Registry) *Tracker {
	return &Tracker{registry: registry, slots: make(map[string]Handle)}
}

// Create replaces the default slot's handle.
func (t *Tracker) Create(blob Blob) Handle {
	return t.CreateFor(DefaultSlot, blob)
}

// CreateFor revokes the handle currently held in slot, if any, then
// registers blob in its place.
func (t *Tracker) CreateFor(slot string, blob Blob) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.slots[slot]; ok {
		t.registry.Revoke(prev)
	}
	h := t.registry.Register(blob)
	t.slots[slot] = h
	return h
}

// Current returns the handle in slot.
func (t *Tracker) Current(slot string) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.slots[slot]
	return h, ok
}

// Handles returns every tracked handle ordered by slot name.
func (t *Tracker) Handles() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.slots))
	for slot := range t.slots {
		names = append(names, slot)
	}
	sort.Strings(names)
	out := make([]Handle, len(names))
	for i, slot := range names {
		out[i] = t.slots[slot]
	}
	return out
}

// ReleaseAll revokes every tracked handle and returns how many were live.
func (t *Tracker) ReleaseAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	released := 0
	for slot, h := range t.slots {
		if t.registry.Revoke(h) {
			released++
		}
		delete(t.slots, slot)
	}
	return released
}
