package tracker

import (
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
)

// Snapshot returns a copy of the current visible set and refresh diagnostics.
// Safe to call from any goroutine; the returned slice is private to the
// caller.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	network := s.cfg.NetworkID
	s.mu.Unlock()

	s.stateMu.RLock()
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	lastRefresh := s.lastRefresh
	lastErr := s.lastErr
	s.stateMu.RUnlock()

	snap := Snapshot{
		NetworkID:   network,
		Entries:     entries,
		LastRefresh: lastRefresh,
		PendingAcks: s.acks.Len(),
	}
	if lastErr != nil {
		snap.LastError = lastErr.Error()
	}
	return snap
}

// Prime seeds the visible set from a persisted snapshot taken at savedAt so
// a restart renders immediately while the first poll is in flight. Stale
// data never triggers seen acknowledgements or transition events; the first
// successful refresh replaces the seed wholesale.
func (s *Service) Prime(items []broadcast.ScheduledBroadcast, savedAt time.Time) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	now := time.Now()
	visible, _ := PartitionVisible(items, now, cfg.SentDisplayWindow, s.acks)
	entries := make([]Entry, 0, len(visible))
	for _, b := range visible {
		entries = append(entries, computeEntry(b, now))
	}

	s.stateMu.Lock()
	if !s.refreshed {
		s.entries = entries
		s.lastRefresh = savedAt
	}
	s.stateMu.Unlock()
}
