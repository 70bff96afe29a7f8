package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/eventbus"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

type fakeSource struct {
	mu    sync.Mutex
	list  []broadcast.ScheduledBroadcast
	err   error
	calls int
}

func (f *fakeSource) set(list []broadcast.ScheduledBroadcast, err error) {
	f.mu.Lock()
	f.list = list
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) ListScheduled(_ context.Context, _ string, _ bool) ([]broadcast.ScheduledBroadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]broadcast.ScheduledBroadcast, len(f.list))
	copy(out, f.list)
	return out, nil
}

type fakeMarker struct {
	mu     sync.Mutex
	calls  int
	err    error
	seenAt time.Time
	done   chan struct{}
}

func newFakeMarker(seenAt time.Time) *fakeMarker {
	return &fakeMarker{seenAt: seenAt, done: make(chan struct{}, 16)}
}

func (f *fakeMarker) MarkSeen(_ context.Context, _ string) (time.Time, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	at := f.seenAt
	f.mu.Unlock()
	f.done <- struct{}{}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (f *fakeMarker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func drainUntil(t *testing.T, events <-chan eventbus.Event, topic string) eventbus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == topic {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", topic)
		}
	}
}

func newTestService(src BroadcastSource, marker SeenMarker, bus eventbus.Bus) *Service {
	return New(Config{NetworkID: "net-1"}, src, marker, logx.Nop(), bus)
}

func TestRefreshFiltersForeignNetworks(t *testing.T) {
	src := &fakeSource{}
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "a", NetworkID: "net-1", Status: broadcast.StatusPending},
		{ID: "b", NetworkID: "net-2", Status: broadcast.StatusPending},
	}, nil)
	s := newTestService(src, nil, nil)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Broadcast.ID != "a" {
		t.Fatalf("entries = %+v, want only 'a'", snap.Entries)
	}
	if snap.LastRefresh.IsZero() {
		t.Fatalf("LastRefresh not recorded")
	}
}

func TestRefreshMarksSeenExactlyOnce(t *testing.T) {
	seenAt := time.Now().UTC()
	src := &fakeSource{}
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "x", NetworkID: "net-1", Status: broadcast.StatusSent, UsersNotified: 3},
	}, nil)
	marker := newFakeMarker(seenAt)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := newTestService(src, marker, bus)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	<-marker.done
	drainUntil(t, events, eventbus.TopicSeenAcked)

	snap := s.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Broadcast.SeenAt == "" {
		t.Fatalf("seen_at not folded into local entry: %+v", snap.Entries)
	}

	// The remote list still reports the broadcast unseen; further cycles
	// must not re-acknowledge.
	for i := 0; i < 3; i++ {
		if err := s.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	if got := marker.callCount(); got != 1 {
		t.Fatalf("MarkSeen calls = %d, want 1", got)
	}
}

func TestRefreshRollsBackFailedAck(t *testing.T) {
	src := &fakeSource{}
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "x", NetworkID: "net-1", Status: broadcast.StatusSent},
	}, nil)
	marker := newFakeMarker(time.Now())
	marker.err = errors.New("backend down")

	s := newTestService(src, marker, nil)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	<-marker.done
	waitFor(t, "ack rollback", func() bool { return s.acks.Len() == 0 })

	marker.mu.Lock()
	marker.err = nil
	marker.mu.Unlock()

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	<-marker.done
	if got := marker.callCount(); got != 2 {
		t.Fatalf("MarkSeen calls = %d, want 2 (one retry)", got)
	}
}

func TestRefreshErrorKeepsPreviousView(t *testing.T) {
	src := &fakeSource{}
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "a", NetworkID: "net-1", Status: broadcast.StatusPending},
	}, nil)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := newTestService(src, nil, bus)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	src.set(nil, errors.New("boom"))
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	drainUntil(t, events, eventbus.TopicRefreshError)

	snap := s.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Broadcast.ID != "a" {
		t.Fatalf("previous view lost on fetch failure: %+v", snap.Entries)
	}
	if snap.LastError == "" {
		t.Fatalf("LastError not recorded")
	}

	// Recovery clears the error.
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "a", NetworkID: "net-1", Status: broadcast.StatusPending},
	}, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap := s.Snapshot(); snap.LastError != "" {
		t.Fatalf("LastError not cleared after recovery: %q", snap.LastError)
	}
}

func TestRefreshPublishesStatusTransitions(t *testing.T) {
	src := &fakeSource{}
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "a", NetworkID: "net-1", Title: "maintenance", Status: broadcast.StatusPending, Priority: broadcast.PriorityHigh},
	}, nil)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := newTestService(src, nil, bus)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	src.set([]broadcast.ScheduledBroadcast{
		{ID: "a", NetworkID: "net-1", Title: "maintenance", Status: broadcast.StatusSent, Priority: broadcast.PriorityHigh, UsersNotified: 7,
			SeenAt: time.Now().UTC().Format(time.RFC3339)},
	}, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	e := drainUntil(t, events, eventbus.TopicTransition)
	tr, ok := e.Data.(Transition)
	if !ok {
		t.Fatalf("event data = %T, want Transition", e.Data)
	}
	if tr.From != broadcast.StatusPending || tr.To != broadcast.StatusSent {
		t.Fatalf("transition = %s -> %s, want pending -> sent", tr.From, tr.To)
	}
	if tr.UsersNotified != 7 || tr.Priority != broadcast.PriorityHigh {
		t.Fatalf("transition detail = %+v", tr)
	}
}

func TestNeedsPoll(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mk := func(entries ...Entry) *Service {
		s := newTestService(&fakeSource{}, nil, nil)
		s.stateMu.Lock()
		s.entries = entries
		s.refreshed = true
		s.stateMu.Unlock()
		return s
	}
	pending := func(at time.Time) Entry {
		return Entry{Broadcast: broadcast.ScheduledBroadcast{ID: "p", Status: broadcast.StatusPending, ScheduledAt: at}}
	}
	sent := func(seenAt string) Entry {
		return Entry{Broadcast: broadcast.ScheduledBroadcast{ID: "s", Status: broadcast.StatusSent, SeenAt: seenAt}}
	}

	cases := []struct {
		name string
		s    *Service
		want bool
	}{
		{"never refreshed", newTestService(&fakeSource{}, nil, nil), true},
		{"empty view", mk(), false},
		{"future pending only", mk(pending(now.Add(time.Hour))), false},
		{"past-due pending", mk(pending(now.Add(-time.Second))), true},
		{"sent unseen", mk(sent("")), true},
		{"sent seen inside window", mk(sent(now.Add(-2 * time.Second).Format(time.RFC3339))), true},
		{"sent seen outside window", mk(sent(now.Add(-time.Minute).Format(time.RFC3339))), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.needsPoll(now); got != tc.want {
				t.Fatalf("needsPoll = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRecomputeFlipsPendingToSending(t *testing.T) {
	now := time.Now()
	src := &fakeSource{}
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "a", NetworkID: "net-1", Status: broadcast.StatusPending, ScheduledAt: now.Add(50 * time.Millisecond)},
	}, nil)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := newTestService(src, nil, bus)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap := s.Snapshot(); snap.Entries[0].Sending {
		t.Fatalf("not yet due, Sending must be false")
	}

	s.recompute(now.Add(time.Second))

	snap := s.Snapshot()
	if !snap.Entries[0].Sending {
		t.Fatalf("past-due pending entry must flip to Sending")
	}
	if snap.Entries[0].Display.Label != "Sending..." {
		t.Fatalf("label = %q, want Sending...", snap.Entries[0].Display.Label)
	}

	e := drainUntil(t, events, eventbus.TopicTransition)
	tr := e.Data.(Transition)
	if !tr.Sending || tr.From != broadcast.StatusPending || tr.To != broadcast.StatusPending {
		t.Fatalf("sending flip transition = %+v", tr)
	}

	// The flip is edge-triggered: a second recompute must not re-announce.
	s.recompute(now.Add(2 * time.Second))
	select {
	case e := <-events:
		if e.Type == eventbus.TopicTransition {
			t.Fatalf("duplicate sending transition published")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPrimeSeedsUntilFirstRefresh(t *testing.T) {
	src := &fakeSource{}
	src.set([]broadcast.ScheduledBroadcast{
		{ID: "live", NetworkID: "net-1", Status: broadcast.StatusPending},
	}, nil)
	s := newTestService(src, nil, nil)

	savedAt := time.Now().Add(-time.Minute)
	s.Prime([]broadcast.ScheduledBroadcast{
		{ID: "cached", NetworkID: "net-1", Status: broadcast.StatusPending},
	}, savedAt)

	snap := s.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Broadcast.ID != "cached" {
		t.Fatalf("primed entries = %+v", snap.Entries)
	}
	if !snap.LastRefresh.Equal(savedAt) {
		t.Fatalf("LastRefresh = %v, want snapshot save time %v", snap.LastRefresh, savedAt)
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap = s.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Broadcast.ID != "live" {
		t.Fatalf("refresh did not replace primed seed: %+v", snap.Entries)
	}

	// A prime after the first refresh must be a no-op.
	s.Prime([]broadcast.ScheduledBroadcast{
		{ID: "stale", NetworkID: "net-1", Status: broadcast.StatusPending},
	}, time.Now())
	if snap := s.Snapshot(); snap.Entries[0].Broadcast.ID != "live" {
		t.Fatalf("prime overwrote live data: %+v", snap.Entries)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	src := &fakeSource{}
	src.set(nil, nil)
	s := newTestService(src, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	waitFor(t, "priming refresh", func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls >= 1
	})

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	s.mu.Lock()
	stopped := s.stopCh == nil
	s.mu.Unlock()
	if !stopped {
		t.Fatalf("tracker did not stop")
	}

	// Restart must work after a full stop.
	s.Start(ctx)
	s.Stop(stopCtx)
}
