package composer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/api"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

// Config controls the composer.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty = host zone
	Entries  []Entry
}

// Entry is one recurring broadcast definition.
type Entry struct {
	Name      string
	Schedule  string // cron spec (5/6-field) or "@every <duration>"
	NetworkID string
	Title     string
	Message   string
	EventType broadcast.EventType
	Priority  broadcast.Priority
	// Lead shifts the delivery time past the fire time, so members get the
	// countdown before the event starts.
	Lead time.Duration
}

// Creator schedules a broadcast on the backend. *api.Client satisfies it.
type Creator interface {
	Create(ctx context.Context, d api.Draft) (broadcast.ScheduledBroadcast, error)
}

// Service fires recurring broadcast creations on cron schedules. It is the
// producer side of the tracker: everything it creates shows up in the next
// list poll as a pending broadcast.
type Service struct {
	mu sync.Mutex

	cfg     Config
	creator Creator
	log     logx.Logger

	parser cron.Parser
	loc    *time.Location
	c      *cron.Cron

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, creator Creator, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		creator: creator,
		log:     log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateSpec reports whether a schedule string is acceptable. Used by the
// config reload validator so a bad entry never reaches a running composer.
func ValidateSpec(spec string) error {
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := p.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c != nil {
		// re-register entries under the (possibly new) timezone
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Debug("composer disabled")
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.startLocked()
}

func (s *Service) startLocked() {
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	registered := 0
	for _, e := range s.cfg.Entries {
		e := e
		if _, err := s.c.AddFunc(e.Schedule, func() { s.fire(e) }); err != nil {
			s.log.Warn("composer entry rejected", logx.String("entry", e.Name), logx.String("schedule", e.Schedule), logx.Err(err))
			continue
		}
		registered++
	}
	s.c.Start()
	s.log.Info("composer started", logx.String("tz", loc.String()), logx.Int("entries", registered))
}

func (s *Service) restartLocked() {
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	if s.cfg.Enabled {
		s.startLocked()
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("composer stopped")
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("unknown composer timezone; using host zone", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// fire creates one broadcast for a due entry. The idempotency key makes the
// client-side retry safe when the backend is flaky around the fire time.
func (s *Service) fire(e Entry) {
	s.mu.Lock()
	ctx := s.runCtx
	loc := s.loc
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prio := e.Priority
	if prio == "" {
		prio = broadcast.PriorityMedium
	}
	tz := ""
	if loc != nil {
		tz = loc.String()
	}
	draft := api.Draft{
		NetworkID:      e.NetworkID,
		Title:          e.Title,
		Message:        e.Message,
		EventType:      e.EventType,
		Priority:       prio,
		ScheduledAt:    time.Now().Add(e.Lead).UTC(),
		Timezone:       tz,
		IdempotencyKey: uuid.NewString(),
	}
	created, err := s.creator.Create(cctx, draft)
	if err != nil {
		s.log.Warn("composer create failed", logx.String("entry", e.Name), logx.String("network", e.NetworkID), logx.Err(err))
		return
	}
	s.log.Info("broadcast scheduled",
		logx.String("entry", e.Name),
		logx.String("id", created.ID),
		logx.String("network", created.NetworkID),
		logx.Time("scheduled_at", created.ScheduledAt),
	)
}
