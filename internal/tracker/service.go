package tracker

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/eventbus"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

const minInterval = time.Second

// New builds a tracker for cfg.NetworkID. marker and sink may be nil
// (acknowledgements respectively persistence are then disabled); src must
// not be.
func New(cfg Config, src BroadcastSource, marker SeenMarker, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.TickInterval < minInterval {
		cfg.TickInterval = minInterval
	}
	if cfg.PollInterval < minInterval {
		cfg.PollInterval = minInterval
	}
	if cfg.SentDisplayWindow <= 0 {
		cfg.SentDisplayWindow = SentDisplayWindow
	}
	return &Service{
		cfg:      cfg,
		src:      src,
		marker:   marker,
		log:      log.With(logx.String("network", cfg.NetworkID)),
		bus:      bus,
		acks:     NewAckSet(),
		statuses: map[string]broadcast.Status{},
		sending:  map[string]bool{},
	}
}

// SetSnapshotSink installs an optional persistence sink. Call before Start().
func (s *Service) SetSnapshotSink(sink SnapshotSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Apply updates reloadable settings. Interval changes take effect on the
// next Start(); the display window and include_completed flag apply on the
// next cycle.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.SentDisplayWindow <= 0 {
		cfg.SentDisplayWindow = SentDisplayWindow
	}
	s.cfg.SentDisplayWindow = cfg.SentDisplayWindow
	s.cfg.IncludeCompleted = cfg.IncludeCompleted
}

// Start launches the countdown tick loop and the conditional poll loop.
// Both are torn down together by Stop().
func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double loops).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	stopCh := s.stopCh
	runCtx := s.runCtx
	tick := s.cfg.TickInterval
	poll := s.cfg.PollInterval

	s.loopWG.Add(2)
	go func() {
		defer s.loopWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in countdown loop", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		s.tickLoop(stopCh, tick)
	}()
	go func() {
		defer s.loopWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in poll loop", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		s.pollLoop(runCtx, stopCh, poll)
	}()

	s.log.Info("tracker started", logx.Duration("tick", tick), logx.Duration("poll", poll))
}

// Stop tears down both loops. In-flight mark-seen requests are abandoned via
// context cancellation; their callbacks check the run context before
// touching shared state.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	// If a stop is already in progress, just wait for it.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.loopWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("tracker stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

func (s *Service) tickLoop(stopCh <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case now := <-t.C:
			s.recompute(now)
		}
	}
}

func (s *Service) pollLoop(ctx context.Context, stopCh <-chan struct{}, interval time.Duration) {
	// Prime immediately so the first snapshot doesn't wait a full interval.
	_ = s.Refresh(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case now := <-t.C:
			if !s.needsPoll(now) {
				continue
			}
			if err := s.refresh(ctx, now); err != nil && ctx.Err() == nil {
				s.log.Warn("broadcast list refresh failed", logx.Err(err))
			}
		}
	}
}

// needsPoll gates the poll loop: refresh only while something is actively
// transitioning (a past-due pending broadcast, or a sent one still inside
// its display window / awaiting acknowledgement).
func (s *Service) needsPoll(now time.Time) bool {
	s.mu.Lock()
	window := s.cfg.SentDisplayWindow
	s.mu.Unlock()

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if !s.refreshed {
		return true
	}
	for i := range s.entries {
		b := &s.entries[i].Broadcast
		switch b.Status {
		case broadcast.StatusPending:
			if !b.ScheduledAt.After(now) {
				return true
			}
		case broadcast.StatusSent:
			if !b.Seen() {
				return true
			}
			if seenAt, ok := b.SeenTime(); !ok || now.Sub(seenAt) < window {
				return true
			}
		}
	}
	return false
}

// recompute refreshes the derived display state from local data only and
// announces pending broadcasts that just crossed into "sending".
func (s *Service) recompute(now time.Time) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	for i := range s.entries {
		e := &s.entries[i]
		wasSending := e.Sending
		*e = computeEntry(e.Broadcast, now)
		if e.Sending && !wasSending {
			s.sending[e.Broadcast.ID] = true
			s.publish(eventbus.Event{Type: eventbus.TopicTransition, Time: now, Data: Transition{
				ID:        e.Broadcast.ID,
				Title:     e.Broadcast.Title,
				NetworkID: e.Broadcast.NetworkID,
				Priority:  e.Broadcast.Priority,
				From:      e.Broadcast.Status,
				To:        e.Broadcast.Status,
				Sending:   true,
			}})
		}
	}
}

func (s *Service) publish(e eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func computeEntry(b broadcast.ScheduledBroadcast, now time.Time) Entry {
	e := Entry{Broadcast: b, Display: Classify(&b, now)}
	if b.Status == broadcast.StatusPending {
		if left := b.ScheduledAt.Sub(now); left > 0 {
			e.TimeLeft = left
		} else {
			e.Sending = true
		}
	}
	return e
}
