package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalJSON = `{
	"backend": {"base_url": "https://api.example.test"},
	"networks": [{"id": "net-1"}],
	"tracker": {},
	"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}
}`

func TestParseJSON(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.test" {
		t.Fatalf("base_url = %q", cfg.Backend.BaseURL)
	}
	if len(cfg.Networks) != 1 || cfg.Networks[0].ID != "net-1" {
		t.Fatalf("networks = %+v", cfg.Networks)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	body := `
backend:
  base_url: https://api.example.test
  timeout: 5s
networks:
  - id: net-1
    include_completed: true
tracker:
  sent_display_window: 5s
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
`
	m := NewManager(writeConfig(t, "config.yaml", body))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Networks[0].IncludeCompleted {
		t.Fatalf("include_completed not decoded: %+v", cfg.Networks[0])
	}
	if cfg.Tracker.SentDisplayWindow != "5s" {
		t.Fatalf("sent_display_window = %q", cfg.Tracker.SentDisplayWindow)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	body := strings.Replace(minimalJSON, `"tracker": {}`, `"tracker": {"tick_intervall": "1s"}`, 1)
	m := NewManager(writeConfig(t, "config.json", body))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("typo'd field must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json", minimalJSON+`{"extra":true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("trailing data must be rejected")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Backend:  BackendConfig{BaseURL: "https://api.example.test"},
			Networks: []NetworkConfig{{ID: "net-1"}},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing base_url", func(c *Config) { c.Backend.BaseURL = " " }, "base_url"},
		{"no networks", func(c *Config) { c.Networks = nil }, "network"},
		{"duplicate network", func(c *Config) { c.Networks = append(c.Networks, NetworkConfig{ID: "net-1"}) }, "duplicate"},
		{"bad duration", func(c *Config) { c.Tracker.PollInterval = "fast" }, "poll_interval"},
		{"negative duration", func(c *Config) { c.Tracker.TickInterval = "-1s" }, "tick_interval"},
		{"telegram without token", func(c *Config) { c.Telegram = &TelegramConfig{Enabled: true, ChatID: 1} }, "token"},
		{"telegram bad priority", func(c *Config) {
			c.Telegram = &TelegramConfig{Enabled: true, Token: "x", ChatID: 1, MinPriority: "urgent"}
		}, "min_priority"},
		{"composer entry without schedule", func(c *Config) {
			c.Composer = &ComposerConfig{Enabled: true, Entries: []ComposerEntry{{Name: "n", NetworkID: "net-1", EventType: "maintenance"}}}
		}, "schedule"},
		{"composer bad event type", func(c *Config) {
			c.Composer = &ComposerConfig{Enabled: true, Entries: []ComposerEntry{{Name: "n", Schedule: "@every 1h", NetworkID: "net-1", EventType: "reboot"}}}
		}, "event_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", " 1m30s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v, want 0", d, err)
	}
	if _, err := ParseDurationField("x", "-3s"); err == nil {
		t.Fatalf("negative must error")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatalf("garbage must error")
	}
	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	next := &Config{Backend: BackendConfig{BaseURL: "https://other.example.test"}}
	m.Commit(next)
	m.publish(next)

	select {
	case got := <-ch:
		if got.Backend.BaseURL != "https://other.example.test" {
			t.Fatalf("published = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no config published")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed on Unsubscribe")
	}
}
