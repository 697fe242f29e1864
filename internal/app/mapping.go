package app

import (
	"regexp"
	"strings"
	"time"

	"wadispatch/internal/agent"
	"wadispatch/internal/broadcast"
	"wadispatch/internal/config"
	"wadispatch/internal/httpapi"
	"wadispatch/internal/storage"
	"wadispatch/internal/strategy"
	"wadispatch/internal/whatsapp"
	"wadispatch/pkg/logx"
	"wadispatch/pkg/phone"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapWhatsAppConfig(cfg *config.Config) (whatsapp.Config, whatsapp.Credentials, error) {
	timeout, err := config.ParseDurationOrDefault("whatsapp.timeout", cfg.WhatsApp.Timeout, 20*time.Second)
	if err != nil {
		return whatsapp.Config{}, whatsapp.Credentials{}, err
	}
	return whatsapp.Config{
			APIBase:    cfg.WhatsApp.APIBase,
			APIVersion: cfg.WhatsApp.APIVersion,
			Timeout:    timeout,
		}, whatsapp.Credentials{
			Token:         cfg.WhatsApp.Token,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		}, nil
}

func mapGeneratorConfig(cfg *config.Config) (agent.GeneratorConfig, error) {
	timeout, err := config.ParseDurationOrDefault("ai.timeout", cfg.AI.Timeout, 30*time.Second)
	if err != nil {
		return agent.GeneratorConfig{}, err
	}
	return agent.GeneratorConfig{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: timeout,
	}, nil
}

func mapAgents(cfg *config.Config) []agent.Config {
	out := make([]agent.Config, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		out = append(out, agent.Config{
			ID:           strings.TrimSpace(a.ID),
			Name:         a.Name,
			SystemPrompt: a.SystemPrompt,
			Model:        a.Model,
		})
	}
	return out
}

func mapBroadcastSettings(cfg *config.Config) (broadcast.Settings, error) {
	b := cfg.Broadcast
	set := broadcast.DefaultSettings()

	// An explicit "0s" disables pacing; empty keeps the default.
	if strings.TrimSpace(b.SendInterval) != "" {
		d, err := config.ParseDurationField("broadcast.send_interval", b.SendInterval)
		if err != nil {
			return broadcast.Settings{}, err
		}
		set.SendInterval = d
	}
	set.FallbackTemplate = strings.TrimSpace(b.FallbackTemplate)
	set.FallbackLanguage = strings.TrimSpace(b.FallbackLanguage)
	set.DefaultLanguage = strings.TrimSpace(b.DefaultLanguage)
	set.PlaceholderName = strings.TrimSpace(b.PlaceholderName)

	if p := strings.TrimSpace(b.PersonalizedPattern); p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return broadcast.Settings{}, err
		}
		set.Personalize = re
	} else {
		set.Personalize = strategy.DefaultPersonalizedPattern
	}

	phones, err := phone.New(phone.Options{
		DefaultCountryCode: b.DefaultCountryCode,
		KnownPrefixes:      b.KnownPrefixes,
		MinDigits:          b.MinDigits,
	})
	if err != nil {
		return broadcast.Settings{}, err
	}
	set.Phones = phones
	return set, nil
}

func mapServiceConfig(cfg *config.Config) (broadcast.ServiceConfig, error) {
	ttl, err := config.ParseDurationField("broadcast.status_ttl", cfg.Broadcast.StatusTTL)
	if err != nil {
		return broadcast.ServiceConfig{}, err
	}
	return broadcast.ServiceConfig{
		Enabled:   cfg.Broadcast.AsyncEnabled(),
		Workers:   cfg.Broadcast.Workers,
		QueueSize: cfg.Broadcast.QueueSize,
		StatusMax: cfg.Broadcast.StatusMax,
		StatusTTL: ttl,
	}, nil
}

func mapServerConfig(cfg *config.Config) (httpapi.ServerConfig, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 15*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	write, err := config.ParseDurationField("http.write_timeout", h.WriteTimeout)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	shutdown, err := config.ParseDurationOrDefault("http.shutdown_timeout", h.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return httpapi.ServerConfig{}, err
	}
	return httpapi.ServerConfig{
		Addr:            strings.TrimSpace(h.Addr),
		ReadTimeout:     read,
		WriteTimeout:    write,
		IdleTimeout:     idle,
		ShutdownTimeout: shutdown,
	}, nil
}
