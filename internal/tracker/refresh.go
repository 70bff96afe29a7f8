package tracker

import (
	"context"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/eventbus"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

// Refresh forces one list refresh outside the poll gating. Used to prime the
// tracker on start; safe to call any time.
func (s *Service) Refresh(ctx context.Context) error {
	return s.refresh(ctx, time.Now())
}

// refresh is one visibility cycle: fetch, filter to the network, detect
// transitions, apply the visibility window, and trigger outstanding seen
// acknowledgements. On fetch failure the previous visible list is retained
// unchanged; the error stays internal to the tracker.
func (s *Service) refresh(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	cfg := s.cfg
	sink := s.sink
	s.mu.Unlock()

	list, err := s.src.ListScheduled(ctx, cfg.NetworkID, cfg.IncludeCompleted)
	if err != nil {
		s.stateMu.Lock()
		s.lastErr = err
		s.stateMu.Unlock()
		s.publish(eventbus.Event{Type: eventbus.TopicRefreshError, Time: now, Data: err.Error()})
		return err
	}

	// The backend query is already scoped to the network; filter again so a
	// misbehaving response can't leak foreign broadcasts into the view.
	filtered := list[:0:0]
	for _, b := range list {
		if b.NetworkID == cfg.NetworkID {
			filtered = append(filtered, b)
		}
	}

	visible, needAck := PartitionVisible(filtered, now, cfg.SentDisplayWindow, s.acks)

	entries := make([]Entry, 0, len(visible))
	for _, b := range visible {
		entries = append(entries, computeEntry(b, now))
	}

	s.stateMu.Lock()
	s.detectTransitionsLocked(filtered, now)
	s.entries = entries
	s.refreshed = true
	s.lastRefresh = now
	s.lastErr = nil
	s.stateMu.Unlock()

	for _, id := range needAck {
		for i := range visible {
			if visible[i].ID == id {
				s.ensureSeen(visible[i])
				break
			}
		}
	}

	if sink != nil {
		if err := sink.SaveBroadcasts(ctx, cfg.NetworkID, filtered); err != nil {
			s.log.Debug("broadcast snapshot persist failed", logx.Err(err))
		}
	}
	return nil
}

// detectTransitionsLocked compares the fetched list against the last
// observed statuses and publishes one event per backend-side change. It also
// prunes tracking for ids that left the remote list so the maps stay
// bounded. Caller holds stateMu.
func (s *Service) detectTransitionsLocked(list []broadcast.ScheduledBroadcast, now time.Time) {
	seen := make(map[string]struct{}, len(list))
	for i := range list {
		b := &list[i]
		seen[b.ID] = struct{}{}
		prev, known := s.statuses[b.ID]
		s.statuses[b.ID] = b.Status
		if known && prev != b.Status {
			delete(s.sending, b.ID)
			s.publish(eventbus.Event{Type: eventbus.TopicTransition, Time: now, Data: Transition{
				ID:            b.ID,
				Title:         b.Title,
				NetworkID:     b.NetworkID,
				Priority:      b.Priority,
				From:          prev,
				To:            b.Status,
				UsersNotified: b.UsersNotified,
			}})
		}
	}
	for id := range s.statuses {
		if _, ok := seen[id]; !ok {
			delete(s.statuses, id)
			delete(s.sending, id)
		}
	}
}

// ensureSeen issues the backend acknowledgement for a sent-and-unseen
// broadcast at most once per tracker session. Fire-and-forget: the refresh
// cycle never waits for the response. On failure the id is rolled back so a
// later cycle retries; on success the authoritative seen_at is folded into
// the local record for the next visibility evaluation.
func (s *Service) ensureSeen(b broadcast.ScheduledBroadcast) {
	if s.marker == nil {
		return
	}
	if b.Status != broadcast.StatusSent || b.Seen() {
		return
	}
	if !s.acks.TryAdd(b.ID) {
		return
	}

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	id := b.ID
	go func() {
		seenAt, err := s.marker.MarkSeen(ctx, id)
		if ctx.Err() != nil {
			// Tracker stopped while the request was in flight; leave state alone.
			return
		}
		if err != nil {
			s.acks.Remove(id)
			s.log.Debug("mark-seen failed; will retry", logx.String("id", id), logx.Err(err))
			return
		}
		s.applySeen(id, seenAt)
	}()
}

func (s *Service) applySeen(id string, seenAt time.Time) {
	raw := seenAt.UTC().Format(time.RFC3339)
	s.stateMu.Lock()
	for i := range s.entries {
		if s.entries[i].Broadcast.ID == id {
			s.entries[i].Broadcast.SeenAt = raw
			break
		}
	}
	s.stateMu.Unlock()
	s.publish(eventbus.Event{Type: eventbus.TopicSeenAcked, Data: id})
}
