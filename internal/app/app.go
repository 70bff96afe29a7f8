package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	telegram "github.com/Stratiform-Networking/cartographer-sub000/internal/announce/telegram"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/api"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/composer"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/config"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/eventbus"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/storage"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/tracker"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

// App owns every long-lived service and wires them together: config manager,
// logging, event bus, optional storage, the backend client, one tracker per
// configured network, and the optional composer/announcer.
type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	bus    eventbus.Bus
	store  storage.Store
	client *api.Client

	// trackers preserves the config order; byNetwork indexes the same set.
	trackers  []*tracker.Service
	byNetwork map[string]*tracker.Service

	comp *composer.Service
	ann  *telegram.Announcer

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New loads and validates the config at cfgPath and constructs every service
// without starting anything. A config error here is fatal; after Start(),
// the same error on a hot reload only rejects the new file.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	// Load() does not run the reload validator; check the initial file too.
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := api.New(apiCfg, log.With(logx.String("comp", "api")))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		logs:      logSvc,
		log:       log,
		bus:       bus,
		store:     store,
		client:    client,
		byNetwork: map[string]*tracker.Service{},
	}

	for _, n := range cfg.Networks {
		tc, err := mapTrackerConfig(cfg, n)
		if err != nil {
			return nil, err
		}
		tr := tracker.New(tc, client, client,
			log.With(logx.String("comp", "tracker"), logx.String("network", n.ID)), bus)
		if store != nil {
			tr.SetSnapshotSink(store)
			if items, savedAt, ok, err := store.LoadBroadcasts(context.Background(), n.ID); err != nil {
				log.Debug("broadcast snapshot load failed", logx.String("network", n.ID), logx.Err(err))
			} else if ok {
				tr.Prime(items, savedAt)
			}
		}
		a.trackers = append(a.trackers, tr)
		a.byNetwork[n.ID] = tr
	}

	compCfg, err := mapComposerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.comp = composer.New(compCfg, client, log.With(logx.String("comp", "composer")))

	if telegramEnabled(cfg) {
		ann, err := telegram.New(mapTelegramConfig(cfg), log.With(logx.String("comp", "announcer")))
		if err != nil {
			return nil, err
		}
		a.ann = ann
	}

	return a, nil
}

// validateConfig layers the schedule-spec check the composer owns on top of
// the config package's own cross-field validation.
func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Composer != nil {
		for i, e := range cfg.Composer.Entries {
			if err := composer.ValidateSpec(e.Schedule); err != nil {
				return fmt.Errorf("composer.entries[%d].schedule: %w", i, err)
			}
		}
	}
	return nil
}

// Tracker returns the tracker for a network id, or nil.
func (a *App) Tracker(networkID string) *tracker.Service { return a.byNetwork[networkID] }

// Trackers returns the trackers in config order.
func (a *App) Trackers() []*tracker.Service { return a.trackers }

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(ctx)

	for _, tr := range a.trackers {
		tr.Start(a.runCtx)
	}
	if a.comp.Enabled() {
		a.comp.Start(a.runCtx)
	}
	if a.ann != nil {
		a.ann.Start(a.runCtx, a.bus)
	}
	if a.store != nil {
		a.startTransitionJournal()
	}
	a.startReloadLoop()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(a.runCtx); err != nil && a.runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started", logx.Int("trackers", len(a.trackers)))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.runCancel != nil {
		a.runCancel()
	}

	// One component must not stall the whole shutdown.
	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(stepCtx)
		}()
		select {
		case <-done:
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("composer", 2*time.Second, func(c context.Context) { a.comp.Stop(c) })
	step("trackers", 3*time.Second, func(c context.Context) {
		for _, tr := range a.trackers {
			tr.Stop(c)
		}
	})
	if a.ann != nil {
		step("announcer", 2*time.Second, func(c context.Context) { a.ann.Stop(c) })
	}

	a.wg.Wait()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("app stopped")
	return a.logs.Close()
}

// startTransitionJournal subscribes to the bus and appends every observed
// lifecycle change to the store. Best-effort; a write failure is logged and
// the event dropped.
func (a *App) startTransitionJournal() {
	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-a.runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Type != eventbus.TopicTransition {
					continue
				}
				tr, ok := e.Data.(tracker.Transition)
				if !ok {
					continue
				}
				entry := storage.TransitionEntry{
					At:          e.Time,
					BroadcastID: tr.ID,
					NetworkID:   tr.NetworkID,
					Title:       tr.Title,
					From:        string(tr.From),
					To:          string(tr.To),
					Sending:     tr.Sending,
				}
				if err := a.store.AppendTransition(a.runCtx, entry); err != nil {
					a.log.Debug("transition journal append failed", logx.Err(err))
				}
			}
		}
	}()
}

// startReloadLoop applies committed config updates to the running services.
// Backend, networks, and storage changes need a restart; everything else is
// applied live.
func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-a.runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest committed config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					lastApplied = newCfg
					continue
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Debug("config change summary", fields...)
				lastApplied = newCfg

				a.applyReload(sections, newCfg)

				a.log.Info("config reloaded", fields...)
			}
		}
	}()
}

func (a *App) applyReload(sections []string, cfg *config.Config) {
	changed := func(name string) bool {
		for _, s := range sections {
			if s == name {
				return true
			}
		}
		return false
	}

	for _, s := range sections {
		switch s {
		case "backend", "networks", "storage":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	if changed("logging") {
		a.logs.Apply(mapLoggingConfig(cfg))
	}

	if changed("tracker") || changed("networks") {
		for _, n := range cfg.Networks {
			tr := a.byNetwork[n.ID]
			if tr == nil {
				continue
			}
			tc, err := mapTrackerConfig(cfg, n)
			if err != nil {
				a.log.Warn("invalid tracker config; keeping previous", logx.Err(err))
				break
			}
			tr.Apply(tc)
		}
	}

	if changed("composer") {
		compCfg, err := mapComposerConfig(cfg)
		if err != nil {
			a.log.Warn("invalid composer config; keeping previous", logx.Err(err))
		} else {
			prev := a.comp.Enabled()
			a.comp.Apply(compCfg)
			if prev && !compCfg.Enabled {
				a.log.Info("composer disabled via config")
				stopCtx, cancel := context.WithTimeout(a.runCtx, 3*time.Second)
				a.comp.Stop(stopCtx)
				cancel()
			} else if !prev && compCfg.Enabled {
				a.log.Info("composer enabled via config")
				a.comp.Start(a.runCtx)
			}
		}
	}

	if changed("telegram") {
		wantEnabled := telegramEnabled(cfg)
		switch {
		case a.ann != nil && wantEnabled:
			a.ann.Apply(mapTelegramConfig(cfg))
		case a.ann != nil && !wantEnabled:
			a.log.Info("announcer disabled via config")
			stopCtx, cancel := context.WithTimeout(a.runCtx, 3*time.Second)
			a.ann.Stop(stopCtx)
			cancel()
			a.ann = nil
		case a.ann == nil && wantEnabled:
			ann, err := telegram.New(mapTelegramConfig(cfg), a.log.With(logx.String("comp", "announcer")))
			if err != nil {
				a.log.Warn("invalid telegram config; announcer stays off", logx.Err(err))
			} else {
				a.ann = ann
				a.ann.Start(a.runCtx, a.bus)
				a.log.Info("announcer enabled via config")
			}
		}
	}
}
