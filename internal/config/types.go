package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets may be left empty here and supplied through the environment; see
// ApplyEnv.
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	HTTP      HTTPConfig       `json:"http"`
	WhatsApp  WhatsAppConfig   `json:"whatsapp"`
	AI        AIConfig         `json:"ai,omitempty"`
	Agents    []AgentConfig    `json:"agents,omitempty"`
	Broadcast BroadcastConfig  `json:"broadcast"`
	Storage   StorageConfig    `json:"storage"`
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// HTTPConfig controls the API listener. An empty Addr disables it.
//
// Defaults:
//   - read_timeout: 15s
//   - write_timeout: 0s (sync broadcasts can be long)
//   - idle_timeout: 60s
//   - shutdown_timeout: 10s
//   - max_recipients: 1000
type HTTPConfig struct {
	Addr            string `json:"addr"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	MaxRecipients   int    `json:"max_recipients,omitempty"`
	// Pprof mounts net/http/pprof under /debug on the API listener.
	Pprof bool `json:"pprof,omitempty"`
}

// WhatsAppConfig points at the Cloud API. Token and phone_number_id are
// usually supplied via WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID.
type WhatsAppConfig struct {
	APIBase       string `json:"api_base,omitempty"`
	APIVersion    string `json:"api_version,omitempty"`
	Token         string `json:"token,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

// AIConfig configures the OpenAI-compatible generator used by ai_agent
// broadcasts.
type AIConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type AgentConfig struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model,omitempty"`
}

// BroadcastConfig controls dispatch behaviour.
//
// Defaults (when fields are omitted/zero):
//   - send_interval: 500ms
//   - fallback_template: hello_world
//   - fallback_language / default_language: en_US
//   - personalized_pattern: (?i)(welcome|greet|personal|name)
//   - placeholder_name: Customer
//   - default_country_code: 91
//   - min_digits: 8
//   - async: true, workers: 2, queue_size: 64
type BroadcastConfig struct {
	SendInterval        string   `json:"send_interval,omitempty"`
	FallbackTemplate    string   `json:"fallback_template,omitempty"`
	FallbackLanguage    string   `json:"fallback_language,omitempty"`
	DefaultLanguage     string   `json:"default_language,omitempty"`
	PersonalizedPattern string   `json:"personalized_pattern,omitempty"`
	PlaceholderName     string   `json:"placeholder_name,omitempty"`
	DefaultCountryCode  string   `json:"default_country_code,omitempty"`
	KnownPrefixes       []string `json:"known_prefixes,omitempty"`
	MinDigits           int      `json:"min_digits,omitempty"`

	// Async is a pointer so an omitted value means enabled.
	Async     *bool  `json:"async,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	StatusMax int    `json:"status_max,omitempty"`
	StatusTTL string `json:"status_ttl,omitempty"`
}

func (b BroadcastConfig) AsyncEnabled() bool { return b.Async == nil || *b.Async }

// StorageConfig selects the delivery log backend: memory, file or sqlite.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ScheduleConfig declares a cron-triggered campaign.
type ScheduleConfig struct {
	Name     string `json:"name"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Spec     string `json:"spec"`
	Timezone string `json:"timezone,omitempty"`
	// Campaign is the base campaign name; each run appends its start time.
	Campaign   string            `json:"campaign,omitempty"`
	Message    MessageConfig     `json:"message"`
	Recipients []RecipientConfig `json:"recipients"`
}

func (s ScheduleConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

type MessageConfig struct {
	Type         string `json:"type"`
	TemplateName string `json:"template_name,omitempty"`
	Language     string `json:"language,omitempty"`
	Body         string `json:"body,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	Context      string `json:"context,omitempty"`
}

type RecipientConfig struct {
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Email string   `json:"email,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}
