package config

import (
	"reflect"
	"strings"

	"wadispatch/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for logging. Secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr))
	}

	ow, nw := oldCfg.WhatsApp, newCfg.WhatsApp
	if ow != nw {
		changed = append(changed, "whatsapp")
		attrs = append(attrs,
			logx.String("whatsapp.api_version", nw.APIVersion),
			logx.Bool("whatsapp.token_set", set(nw.Token)),
			logx.Bool("whatsapp.token_changed", ow.Token != nw.Token),
			logx.Bool("whatsapp.phone_number_id_set", set(nw.PhoneNumberID)),
		)
	}

	if oldCfg.AI != newCfg.AI {
		changed = append(changed, "ai")
		attrs = append(attrs,
			logx.String("ai.model", newCfg.AI.Model),
			logx.Bool("ai.api_key_set", set(newCfg.AI.APIKey)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Agents, newCfg.Agents) {
		changed = append(changed, "agents")
		attrs = append(attrs, logx.Int("agents.count", len(newCfg.Agents)))
	}

	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.String("broadcast.send_interval", newCfg.Broadcast.SendInterval),
			logx.String("broadcast.fallback_template", newCfg.Broadcast.FallbackTemplate),
			logx.Bool("broadcast.async", newCfg.Broadcast.AsyncEnabled()),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	if !reflect.DeepEqual(oldCfg.Schedules, newCfg.Schedules) {
		changed = append(changed, "schedules")
		attrs = append(attrs, logx.Int("schedules.count", len(newCfg.Schedules)))
	}

	return changed, attrs
}
