package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/eventbus"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/tracker"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// MinPriority suppresses transitions below this broadcast priority.
	MinPriority broadcast.Priority
	RatePerSec  int
}

// Announcer forwards broadcast lifecycle transitions to an operator chat.
// Best-effort by design: a dropped or failed message only costs visibility,
// never correctness, so sends are rate limited and failures are logged at
// debug.
type Announcer struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	unsub  func()
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, log logx.Logger) (*Announcer, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("announce: telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("announce: telegram chat_id is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("announce: telegram init: %w", err)
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Announcer{
		cfg:     cfg,
		log:     log,
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Apply updates the reloadable knobs (priority floor, rate).
func (a *Announcer) Apply(cfg Config) {
	a.mu.Lock()
	a.cfg.MinPriority = cfg.MinPriority
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	a.mu.Unlock()
}

// Start subscribes to the bus and forwards transition events until Stop().
func (a *Announcer) Start(ctx context.Context, bus eventbus.Bus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopCh != nil {
		return
	}
	ch, unsub := bus.Subscribe(64)
	a.unsub = unsub
	a.stopCh = make(chan struct{})

	stopCh := a.stopCh
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Type != eventbus.TopicTransition {
					continue
				}
				tr, ok := ev.Data.(tracker.Transition)
				if !ok {
					continue
				}
				a.announce(ctx, tr)
			}
		}
	}()
	a.log.Info("announcer started", logx.Int64("chat_id", a.cfg.ChatID))
}

func (a *Announcer) Stop(ctx context.Context) {
	a.mu.Lock()
	stopCh := a.stopCh
	unsub := a.unsub
	a.stopCh = nil
	a.unsub = nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	if unsub != nil {
		unsub()
	}
	close(stopCh)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	a.log.Info("announcer stopped")
}

func (a *Announcer) announce(ctx context.Context, tr tracker.Transition) {
	a.mu.Lock()
	min := a.cfg.MinPriority
	lim := a.limiter
	chatID := a.cfg.ChatID
	threadID := a.cfg.ThreadID
	a.mu.Unlock()

	if min != "" && tr.Priority.Rank() < min.Rank() {
		return
	}
	if !lim.Allow() {
		// Dropping beats queueing here: a stale transition ping is noise.
		return
	}

	msg := formatTransition(tr)
	if msg == "" {
		return
	}

	if ctx.Err() != nil {
		return
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, msg, &tele.SendOptions{ThreadID: threadID, DisableWebPagePreview: true})
	if err != nil {
		a.log.Debug("announce send failed", logx.String("broadcast", tr.ID), logx.Err(err))
	}
}

func formatTransition(tr tracker.Transition) string {
	switch {
	case tr.Sending:
		return fmt.Sprintf("⏳ %s — delivery in progress (network %s)", tr.Title, tr.NetworkID)
	case tr.To == broadcast.StatusSent:
		if tr.UsersNotified > 0 {
			return fmt.Sprintf("✅ %s — sent to %d users (network %s)", tr.Title, tr.UsersNotified, tr.NetworkID)
		}
		return fmt.Sprintf("✅ %s — sent (network %s)", tr.Title, tr.NetworkID)
	case tr.To == broadcast.StatusFailed:
		return fmt.Sprintf("❌ %s — delivery failed (network %s)", tr.Title, tr.NetworkID)
	case tr.To == broadcast.StatusCancelled:
		return fmt.Sprintf("🚫 %s — cancelled (network %s)", tr.Title, tr.NetworkID)
	default:
		return ""
	}
}
