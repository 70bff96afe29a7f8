package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

// SummarizeChange returns a compact sorted list of changed sections plus safe
// structured attrs for logging. Secrets (backend token, telegram token) are
// reduced to set/unset booleans.
//
// The app uses the section list to decide which services to re-Apply or
// restart on a live reload.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Backend, newCfg.Backend) {
		changed = append(changed, "backend")
		attrs = append(attrs,
			logx.String("backend.base_url", strings.TrimSpace(newCfg.Backend.BaseURL)),
			logx.Bool("backend.token_set", strings.TrimSpace(newCfg.Backend.Token) != ""),
			logx.Int("backend.rate_per_sec", newCfg.Backend.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Networks, newCfg.Networks) {
		changed = append(changed, "networks")
		attrs = append(attrs, logx.Int("networks.count", len(newCfg.Networks)))
	}

	if oldCfg.Tracker != newCfg.Tracker {
		changed = append(changed, "tracker")
		attrs = append(attrs,
			logx.String("tracker.tick_interval", strings.TrimSpace(newCfg.Tracker.TickInterval)),
			logx.String("tracker.poll_interval", strings.TrimSpace(newCfg.Tracker.PollInterval)),
			logx.String("tracker.sent_display_window", strings.TrimSpace(newCfg.Tracker.SentDisplayWindow)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage: nil means disabled.
	if !equalStorage(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver string
		var pathSet bool
		if newCfg.Storage != nil {
			driver = strings.TrimSpace(newCfg.Storage.Driver)
			pathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
		}
		attrs = append(attrs,
			logx.String("storage.driver", driver),
			logx.Bool("storage.path_set", pathSet),
		)
	}

	// Telegram announcer (never log token).
	oTG, nTG := derefTelegram(oldCfg.Telegram), derefTelegram(newCfg.Telegram)
	if oTG != nTG || (oldCfg.Telegram == nil) != (newCfg.Telegram == nil) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nTG.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(nTG.Token) != ""),
			logx.Bool("telegram.chat_set", nTG.ChatID != 0),
			logx.String("telegram.min_priority", strings.TrimSpace(nTG.MinPriority)),
		)
	}

	oC, nC := derefComposer(oldCfg.Composer), derefComposer(newCfg.Composer)
	if !reflect.DeepEqual(oC, nC) {
		changed = append(changed, "composer")
		attrs = append(attrs,
			logx.Bool("composer.enabled", nC.Enabled),
			logx.String("composer.timezone", strings.TrimSpace(nC.Timezone)),
			logx.Int("composer.entries", len(nC.Entries)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func equalStorage(a, b *StorageConfig) bool {
	var ad, bd, ap, bp, ab, bb string
	if a != nil {
		ad, ap, ab = strings.TrimSpace(a.Driver), strings.TrimSpace(a.Path), strings.TrimSpace(a.BusyTimeout)
	}
	if b != nil {
		bd, bp, bb = strings.TrimSpace(b.Driver), strings.TrimSpace(b.Path), strings.TrimSpace(b.BusyTimeout)
	}
	return ad == bd && ap == bp && ab == bb
}

func derefTelegram(t *TelegramConfig) TelegramConfig {
	if t == nil {
		return TelegramConfig{}
	}
	return *t
}

func derefComposer(c *ComposerConfig) ComposerConfig {
	if c == nil {
		return ComposerConfig{}
	}
	return *c
}
