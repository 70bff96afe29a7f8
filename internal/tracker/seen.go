package tracker

import (
	"context"
	"sync"
	"time"
)

// SeenMarker posts a "seen" acknowledgement for a broadcast and returns the
// authoritative seen_at assigned by the backend.
type SeenMarker interface {
	MarkSeen(ctx context.Context, id string) (time.Time, error)
}

// AckSet tracks broadcast IDs whose seen acknowledgement is outstanding
// within this tracker session. It is the idempotency guard that keeps
// ensureSeen from issuing duplicate concurrent requests while the visibility
// manager runs every second.
//
// In-memory only: a process restart intentionally resets it (the backend's
// seen_at is the durable record).
type AckSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewAckSet() *AckSet {
	return &AckSet{ids: map[string]struct{}{}}
}

// TryAdd marks id as in flight. It returns false if the id was already
// present, in which case the caller must not issue another request.
func (a *AckSet) TryAdd(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ids[id]; ok {
		return false
	}
	a.ids[id] = struct{}{}
	return true
}

// Remove rolls back an in-flight mark so a later cycle can retry.
func (a *AckSet) Remove(id string) {
	a.mu.Lock()
	delete(a.ids, id)
	a.mu.Unlock()
}

func (a *AckSet) Contains(id string) bool {
	a.mu.Lock()
	_, ok := a.ids[id]
	a.mu.Unlock()
	return ok
}

func (a *AckSet) Len() int {
	a.mu.Lock()
	n := len(a.ids)
	a.mu.Unlock()
	return n
}
