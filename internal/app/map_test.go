package app

import (
	"testing"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/config"
)

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		storage *config.StorageConfig
		enabled bool
	}{
		{"absent", nil, false},
		{"empty driver", &config.StorageConfig{}, false},
		{"none driver", &config.StorageConfig{Driver: "none"}, false},
		{"file driver", &config.StorageConfig{Driver: "File", Path: "./s"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tc.storage})
			if err != nil {
				t.Fatalf("mapStorageConfig: %v", err)
			}
			if enabled != tc.enabled {
				t.Fatalf("enabled = %v, want %v", enabled, tc.enabled)
			}
			if enabled && sc.Driver != "file" {
				t.Fatalf("driver = %q, want normalized lowercase", sc.Driver)
			}
		})
	}

	if _, _, err := mapStorageConfig(&config.Config{
		Storage: &config.StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "soon"},
	}); err == nil {
		t.Fatalf("bad busy_timeout must error")
	}
}

func TestMapTrackerConfig(t *testing.T) {
	cfg := &config.Config{
		Tracker: config.TrackerConfig{TickInterval: "2s", PollInterval: "3s", SentDisplayWindow: "7s"},
	}
	tc, err := mapTrackerConfig(cfg, config.NetworkConfig{ID: "net-1", IncludeCompleted: true})
	if err != nil {
		t.Fatalf("mapTrackerConfig: %v", err)
	}
	if tc.NetworkID != "net-1" || !tc.IncludeCompleted {
		t.Fatalf("mapped = %+v", tc)
	}
	if tc.TickInterval != 2*time.Second || tc.PollInterval != 3*time.Second || tc.SentDisplayWindow != 7*time.Second {
		t.Fatalf("mapped durations = %+v", tc)
	}
}

func TestMapComposerDefaults(t *testing.T) {
	cfg := &config.Config{Composer: &config.ComposerConfig{
		Enabled: true,
		Entries: []config.ComposerEntry{
			{Name: "n", Schedule: "@every 1h", NetworkID: "net-1", EventType: "maintenance", Lead: "15m"},
		},
	}}
	cc, err := mapComposerConfig(cfg)
	if err != nil {
		t.Fatalf("mapComposerConfig: %v", err)
	}
	if len(cc.Entries) != 1 {
		t.Fatalf("entries = %+v", cc.Entries)
	}
	e := cc.Entries[0]
	if e.Priority != broadcast.PriorityMedium {
		t.Fatalf("priority = %q, want medium default", e.Priority)
	}
	if e.Lead != 15*time.Minute || e.EventType != broadcast.EventMaintenance {
		t.Fatalf("entry = %+v", e)
	}
}

func TestMapTelegramDefaults(t *testing.T) {
	if got := mapTelegramConfig(&config.Config{}); got.MinPriority != "" {
		t.Fatalf("absent telegram section = %+v", got)
	}
	got := mapTelegramConfig(&config.Config{Telegram: &config.TelegramConfig{Token: "t", ChatID: 9}})
	if got.MinPriority != broadcast.PriorityLow {
		t.Fatalf("min_priority = %q, want low default", got.MinPriority)
	}
	if !telegramEnabled(&config.Config{Telegram: &config.TelegramConfig{Enabled: true}}) {
		t.Fatalf("telegramEnabled = false")
	}
	if telegramEnabled(&config.Config{}) {
		t.Fatalf("telegramEnabled without section = true")
	}
}
