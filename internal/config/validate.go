package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard 5-field spec or a descriptor like "@daily".
func ParseCron(spec string) (cron.Schedule, error) {
	return cronParser.Parse(strings.TrimSpace(spec))
}

// Validate checks everything that can be checked without network access.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	dur("http.read_timeout", cfg.HTTP.ReadTimeout)
	dur("http.write_timeout", cfg.HTTP.WriteTimeout)
	dur("http.idle_timeout", cfg.HTTP.IdleTimeout)
	dur("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	dur("whatsapp.timeout", cfg.WhatsApp.Timeout)
	dur("ai.timeout", cfg.AI.Timeout)
	dur("broadcast.send_interval", cfg.Broadcast.SendInterval)
	dur("broadcast.status_ttl", cfg.Broadcast.StatusTTL)
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if p := strings.TrimSpace(cfg.Broadcast.PersonalizedPattern); p != "" {
		if _, err := regexp.Compile(p); err != nil {
			add(fmt.Errorf("broadcast.personalized_pattern: %w", err))
		}
	}
	if cfg.Broadcast.MinDigits < 0 || cfg.Broadcast.Workers < 0 || cfg.Broadcast.QueueSize < 0 {
		add(errors.New("broadcast: min_digits, workers and queue_size must be >= 0"))
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(fmt.Errorf("storage.path is required for driver %s", d))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	agents := map[string]struct{}{}
	for i, a := range cfg.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			add(fmt.Errorf("agents[%d].id is required", i))
			continue
		}
		if _, dup := agents[id]; dup {
			add(fmt.Errorf("agents[%d]: duplicate id %q", i, id))
		}
		agents[id] = struct{}{}
	}

	names := map[string]struct{}{}
	for i, s := range cfg.Schedules {
		path := fmt.Sprintf("schedules[%d]", i)
		name := strings.TrimSpace(s.Name)
		if name == "" {
			add(fmt.Errorf("%s.name is required", path))
		} else if _, dup := names[name]; dup {
			add(fmt.Errorf("%s: duplicate name %q", path, name))
		}
		names[name] = struct{}{}
		if _, err := ParseCron(s.Spec); err != nil {
			add(fmt.Errorf("%s.spec: %w", path, err))
		}
		if tz := strings.TrimSpace(s.Timezone); tz != "" {
			if _, err := LoadLocation(tz); err != nil {
				add(fmt.Errorf("%s.timezone: %w", path, err))
			}
		}
		if len(s.Recipients) == 0 {
			add(fmt.Errorf("%s.recipients must not be empty", path))
		}
		switch strings.ToLower(strings.TrimSpace(s.Message.Type)) {
		case "template":
			if strings.TrimSpace(s.Message.TemplateName) == "" {
				add(fmt.Errorf("%s.message.template_name is required", path))
			}
		case "custom_text", "text":
			if strings.TrimSpace(s.Message.Body) == "" {
				add(fmt.Errorf("%s.message.body is required", path))
			}
		case "ai_agent", "ai":
			if _, ok := agents[strings.TrimSpace(s.Message.AgentID)]; !ok {
				add(fmt.Errorf("%s.message.agent_id %q is not a configured agent", path, s.Message.AgentID))
			}
		default:
			add(fmt.Errorf("%s.message.type: unknown type %q", path, s.Message.Type))
		}
	}
	return errors.Join(errs...)
}
