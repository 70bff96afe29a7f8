package config

import (
	"fmt"
	"strings"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
)

type Config struct {
	Backend BackendConfig `json:"backend"`

	// Networks lists the networks to track; one tracker instance per entry.
	Networks []NetworkConfig `json:"networks"`

	Tracker TrackerConfig `json:"tracker"`
	Logging LoggingConfig `json:"logging"`

	Storage  *StorageConfig  `json:"storage,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Composer *ComposerConfig `json:"composer,omitempty"`
}

// BackendConfig points at the scheduled-broadcast REST backend.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type BackendConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`

	// Timeout bounds one HTTP exchange. Default "10s".
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
}

type NetworkConfig struct {
	ID string `json:"id"`
	// IncludeCompleted also fetches already-delivered broadcasts; the
	// display window still applies client-side.
	IncludeCompleted bool `json:"include_completed,omitempty"`
}

// TrackerConfig tunes the per-network tracker loops. The defaults are the
// product constants; raising the intervals only slows down the view.
type TrackerConfig struct {
	// TickInterval drives the countdown recompute. Default "1s", floor "1s".
	TickInterval string `json:"tick_interval,omitempty"`
	// PollInterval drives the conditional list refresh. Default "1s".
	PollInterval string `json:"poll_interval,omitempty"`
	// SentDisplayWindow is how long a seen "sent" broadcast stays visible.
	// Default "5s".
	SentDisplayWindow string `json:"sent_display_window,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional broadcast snapshot/journal cache.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tracker_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TelegramConfig controls the optional transition announcer.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// MinPriority suppresses announcements below this broadcast priority.
	// One of low/medium/high/critical; default "low" (announce everything).
	MinPriority string `json:"min_priority,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

// ComposerConfig drives scheduled creation of broadcasts.
type ComposerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone is the IANA zone cron specs are evaluated in, e.g.
	// "Europe/Berlin". Empty means the host zone.
	Timezone string          `json:"timezone,omitempty"`
	Entries  []ComposerEntry `json:"entries,omitempty"`
}

// ComposerEntry is one recurring broadcast definition. Schedule accepts
// 5/6-field cron specs and "@every <duration>".
type ComposerEntry struct {
	Name      string `json:"name"`
	Schedule  string `json:"schedule"`
	NetworkID string `json:"network_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	EventType string `json:"event_type"`
	Priority  string `json:"priority,omitempty"`
	// Lead is how far ahead of the fire time delivery is scheduled,
	// e.g. "15m" warns members before a maintenance window. Default "0s".
	Lead string `json:"lead,omitempty"`
}

// Validate checks cross-field consistency beyond what strict decoding
// catches. It is also installed as the reload validator so a bad edit never
// reaches running services.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if _, err := ParseDurationField("backend.timeout", c.Backend.Timeout); err != nil {
		return err
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network is required")
	}
	seen := map[string]struct{}{}
	for i, n := range c.Networks {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			return fmt.Errorf("networks[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("networks[%d]: duplicate network id %q", i, id)
		}
		seen[id] = struct{}{}
	}
	for _, f := range []struct{ path, raw string }{
		{"tracker.tick_interval", c.Tracker.TickInterval},
		{"tracker.poll_interval", c.Tracker.PollInterval},
		{"tracker.sent_display_window", c.Tracker.SentDisplayWindow},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Telegram != nil && c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram.enabled")
		}
		if p := strings.TrimSpace(c.Telegram.MinPriority); p != "" && !broadcast.Priority(p).Valid() {
			return fmt.Errorf("telegram.min_priority: unknown priority %q", p)
		}
	}
	if c.Composer != nil && c.Composer.Enabled {
		for i, e := range c.Composer.Entries {
			if strings.TrimSpace(e.Name) == "" {
				return fmt.Errorf("composer.entries[%d].name is required", i)
			}
			if strings.TrimSpace(e.Schedule) == "" {
				return fmt.Errorf("composer.entries[%d].schedule is required", i)
			}
			if strings.TrimSpace(e.NetworkID) == "" {
				return fmt.Errorf("composer.entries[%d].network_id is required", i)
			}
			if !broadcast.EventType(strings.TrimSpace(e.EventType)).Valid() {
				return fmt.Errorf("composer.entries[%d].event_type: unknown event type %q", i, e.EventType)
			}
			if p := strings.TrimSpace(e.Priority); p != "" && !broadcast.Priority(p).Valid() {
				return fmt.Errorf("composer.entries[%d].priority: unknown priority %q", i, p)
			}
			if _, err := ParseDurationField(fmt.Sprintf("composer.entries[%d].lead", i), e.Lead); err != nil {
				return err
			}
		}
	}
	return nil
}
