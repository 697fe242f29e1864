package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides lists the variables that take precedence over the file.
type envOverrides struct {
	WhatsAppToken         string `env:"WHATSAPP_TOKEN"`
	WhatsAppPhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAPIBase       string `env:"WHATSAPP_API_BASE"`
	WhatsAppAPIVersion    string `env:"WHATSAPP_API_VERSION"`
	OpenAIAPIKey          string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL         string `env:"OPENAI_BASE_URL"`
	LogLevel              string `env:"WADISPATCH_LOG_LEVEL"`
	HTTPAddr              string `env:"WADISPATCH_HTTP_ADDR"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{})
}

// ApplyEnvFrom is ApplyEnv against an explicit environment.
func ApplyEnvFrom(cfg *Config, environ map[string]string) error {
	return applyEnv(cfg, env.Options{Environment: environ})
}

func applyEnv(cfg *Config, opts env.Options) error {
	if cfg == nil {
		return nil
	}
	var o envOverrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.WhatsApp.Token, o.WhatsAppToken)
	set(&cfg.WhatsApp.PhoneNumberID, o.WhatsAppPhoneNumberID)
	set(&cfg.WhatsApp.APIBase, o.WhatsAppAPIBase)
	set(&cfg.WhatsApp.APIVersion, o.WhatsAppAPIVersion)
	set(&cfg.AI.APIKey, o.OpenAIAPIKey)
	set(&cfg.AI.BaseURL, o.OpenAIBaseURL)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.HTTP.Addr, o.HTTPAddr)
	return nil
}
