package config

// Config is the full daemon configuration. Durations are Go duration
// strings (e.g. "500ms", "30s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	ZAPI      ZAPIConfig      `json:"zapi"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Scheduler SchedulerConfig `json:"scheduler"`
	AI        AIConfig        `json:"ai,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the sqlite database.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ZAPIConfig holds the provider credentials. SendTextURL wins when
// set; otherwise the URL is derived from instance id + token. Values
// stored via the settings table override these at send time.
type ZAPIConfig struct {
	InstanceID    string `json:"instance_id,omitempty"`
	InstanceToken string `json:"instance_token,omitempty"`
	SendTextURL   string `json:"send_text_url,omitempty"`
	ClientToken   string `json:"client_token,omitempty"`
	Timeout       string `json:"timeout,omitempty"` // default 30s
}

// DispatchConfig controls the bulk dispatcher.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - rate_per_sec: 1
//   - send_timeout: "30s"
//   - status_max: 200, status_ttl: "24h"
type DispatchConfig struct {
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	StatusMax     int    `json:"status_max,omitempty"`
	StatusTTL     string `json:"status_ttl,omitempty"`
	DefaultRegion string `json:"default_region,omitempty"` // e.g. "BR"
}

// SchedulerConfig controls the schedule runner tick loop.
type SchedulerConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"` // nil = enabled
	Tick     string `json:"tick,omitempty"`    // default "15s"
	Timezone string `json:"timezone,omitempty"`
}

// AIConfig configures the optional message composer. Provider picks
// the default backend ("openrouter" or "ollama"); compose requests may
// override it. Model, URL, and host fields fall back to the composer's
// defaults when empty; timeout defaults to 30s.
type AIConfig struct {
	Provider         string `json:"provider,omitempty"`
	OpenRouterAPIKey string `json:"openrouter_api_key,omitempty"`
	OpenRouterModel  string `json:"openrouter_model,omitempty"`
	OpenRouterURL    string `json:"openrouter_url,omitempty"`
	OllamaHost       string `json:"ollama_host,omitempty"`
	OllamaModel      string `json:"ollama_model,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
}

// MetricsConfig controls the optional prometheus listener. Prefer
// binding to localhost.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9464"
}
