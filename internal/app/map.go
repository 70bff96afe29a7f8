package app

import (
	"strings"

	telegram "github.com/Stratiform-Networking/cartographer-sub000/internal/announce/telegram"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/api"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/composer"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/config"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/storage"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/tracker"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

// Mapping between the declarative config types and the runtime service
// configs. Kept separate so New() and the reload loop share one translation.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	timeout, err := config.ParseDurationField("backend.timeout", cfg.Backend.Timeout)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		BaseURL:    cfg.Backend.BaseURL,
		Token:      cfg.Backend.Token,
		Timeout:    timeout,
		RatePerSec: cfg.Backend.RatePerSec,
		RetryMax:   cfg.Backend.RetryMax,
	}, nil
}

func mapTrackerConfig(cfg *config.Config, n config.NetworkConfig) (tracker.Config, error) {
	tick, err := config.ParseDurationField("tracker.tick_interval", cfg.Tracker.TickInterval)
	if err != nil {
		return tracker.Config{}, err
	}
	poll, err := config.ParseDurationField("tracker.poll_interval", cfg.Tracker.PollInterval)
	if err != nil {
		return tracker.Config{}, err
	}
	window, err := config.ParseDurationField("tracker.sent_display_window", cfg.Tracker.SentDisplayWindow)
	if err != nil {
		return tracker.Config{}, err
	}
	return tracker.Config{
		NetworkID:         n.ID,
		TickInterval:      tick,
		PollInterval:      poll,
		SentDisplayWindow: window,
		IncludeCompleted:  n.IncludeCompleted,
	}, nil
}

// mapStorageConfig returns (cfg, enabled, err). Storage stays optional;
// absent or driver "none" means the tracker runs purely in memory.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapComposerConfig(cfg *config.Config) (composer.Config, error) {
	if cfg.Composer == nil {
		return composer.Config{}, nil
	}
	out := composer.Config{
		Enabled:  cfg.Composer.Enabled,
		Timezone: cfg.Composer.Timezone,
		Entries:  make([]composer.Entry, 0, len(cfg.Composer.Entries)),
	}
	for _, e := range cfg.Composer.Entries {
		lead, err := config.ParseDurationField("composer.entries.lead", e.Lead)
		if err != nil {
			return composer.Config{}, err
		}
		prio := broadcast.Priority(strings.TrimSpace(e.Priority))
		if prio == "" {
			prio = broadcast.PriorityMedium
		}
		out.Entries = append(out.Entries, composer.Entry{
			Name:      e.Name,
			Schedule:  e.Schedule,
			NetworkID: e.NetworkID,
			Title:     e.Title,
			Message:   e.Message,
			EventType: broadcast.EventType(strings.TrimSpace(e.EventType)),
			Priority:  prio,
			Lead:      lead,
		})
	}
	return out, nil
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	if cfg.Telegram == nil {
		return telegram.Config{}
	}
	prio := broadcast.Priority(strings.TrimSpace(cfg.Telegram.MinPriority))
	if prio == "" {
		prio = broadcast.PriorityLow
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		ChatID:      cfg.Telegram.ChatID,
		ThreadID:    cfg.Telegram.ThreadID,
		MinPriority: prio,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}
}

func telegramEnabled(cfg *config.Config) bool {
	return cfg.Telegram != nil && cfg.Telegram.Enabled
}
