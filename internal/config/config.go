// Package config loads and hot-reloads the application's JSON configuration,
// following the teacher repository's split between a "config.json" (provider
// and channel wiring) and a "system.json" (engine tunables) file.
package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the provider/channel wiring document ("config.json").
type Config struct {
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	LLM      jsoniter.RawMessage            `json:"llm"`
}

// Validate performs the minimal structural checks needed before the rest of
// the system starts wiring providers and channels.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("config: missing 'llm' section")
	}
	return nil
}

// SystemConfig holds engine-level technical parameters — timeouts, retry
// counts, buffer sizes — that tune behavior without altering semantics.
type SystemConfig struct {
	// LLM call shape
	MaxRetries   int `json:"max_retries"`   // extra attempts after the first failure (Variable Extractor, §4.3)
	RetryDelayMs int `json:"retry_delay_ms"`
	LLMTimeoutMs int `json:"llm_timeout_ms"`

	// Session store
	SessionsDir    string `json:"sessions_dir"`
	SessionTTLSecs int    `json:"session_ttl_secs"` // 0 disables TTL eviction

	// Realtime plane (§4.7, §4.8)
	WSIdleTimeoutSecs    int `json:"ws_idle_timeout_secs"`    // 120s default
	WSConnectTimeoutSecs int `json:"ws_connect_timeout_secs"` // 10s default
	WSCleanupDelaySecs   int `json:"ws_cleanup_delay_secs"`   // 5s default
	WSHeartbeatSecs      int `json:"ws_heartbeat_secs"`       // 30s default
	WSPongGraceSecs      int `json:"ws_pong_grace_secs"`      // 10s default

	// Adapter (§4.9)
	SingleFlightWaitSecs int `json:"single_flight_wait_secs"` // 60s default
	TypingIntervalSecs   int `json:"typing_interval_secs"`    // 4s default
	StreamingBudgetSecs  int `json:"streaming_budget_secs"`   // 90s default
	DedupWindowSecs      int `json:"dedup_window_secs"`       // 2s default
	MessageLengthCap     int `json:"message_length_cap"`      // 4096 default
	MessageChunkSize     int `json:"message_chunk_size"`      // 4090 default

	// Control plane / webhook
	WebhookBaseURL string `json:"webhook_base_url"`
	HTTPAddr       string `json:"http_addr"`

	// Ambient
	LogLevel string `json:"log_level"`

	// Credential encryption key, used as raw bytes and required to be exactly
	// 32 bytes long; held in memory only.
	EncryptionKey string `json:"encryption_key"`
}

// DefaultSystemConfig returns safe defaults matching the numeric constants
// named throughout SPEC_FULL.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:           2,
		RetryDelayMs:         500,
		LLMTimeoutMs:         30_000,
		SessionsDir:          "data/sessions",
		SessionTTLSecs:       0,
		WSIdleTimeoutSecs:    120,
		WSConnectTimeoutSecs: 10,
		WSCleanupDelaySecs:   5,
		WSHeartbeatSecs:      30,
		WSPongGraceSecs:      10,
		SingleFlightWaitSecs: 60,
		TypingIntervalSecs:   4,
		StreamingBudgetSecs:  90,
		DedupWindowSecs:      2,
		MessageLengthCap:     4096,
		MessageChunkSize:     4090,
		HTTPAddr:             ":8080",
		LogLevel:             "info",
	}
}

// Load reads "config.json" and "system.json" from the working directory,
// validating the former and falling back to defaults for the latter on
// any read or parse failure.
func Load() (*Config, *SystemConfig, error) {
	data, err := os.ReadFile("config.json")
	if err != nil {
		return nil, nil, fmt.Errorf("config: reading config.json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("config: parsing config.json: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")
	return &cfg, sysCfg, nil
}

// LoadSystemConfig reads path and overlays it onto DefaultSystemConfig,
// returning the defaults unchanged if the file is absent or malformed.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultSystemConfig()
	}
	return cfg
}
