package membership

import (
	"context"
	"sort"
	"sync"
)

// MemoryTracker keeps membership in process memory.
type MemoryTracker struct {
	members map[string]Member // userID -> member
	mu      sync.Mutex
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{members: make(map[string]Member)}
}

func (t *MemoryTracker) Add(_ context.Context, m Member) (bool, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.members[m.UserID]; ok {
		return false, len(t.members), nil
	}
	t.members[m.UserID] = m
	return true, len(t.members), nil
}

func (t *MemoryTracker) Remove(_ context.Context, userID, connectionID string) (bool, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.members[userID]
	if !ok || m.ConnectionID != connectionID {
		return false, len(t.members), nil
	}
	delete(t.members, userID)
	return true, len(t.members), nil
}

func (t *MemoryTracker) Count(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.members), nil
}

// Members returns the members ordered by user ID.
func (t *MemoryTracker) Members(_ context.Context) ([]Member, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Member, 0, len(t.members))
	for _, m := range t.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
