// Package config holds client construction configuration and its JSON
// file persistence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/statcode-ai/mcpclient/internal/protocol"
	"github.com/statcode-ai/mcpclient/internal/transport"
)

// ReconnectConfig controls automatic reconnection after an unexpected
// disconnect.
type ReconnectConfig struct {
	Enabled     bool `json:"enabled"`
	MaxAttempts int  `json:"max_attempts"`
	BackoffMs   int  `json:"backoff_ms"`
	Exponential bool `json:"exponential"`
}

// Config is the full client configuration.
type Config struct {
	// ClientID identifies this client instance in request metadata.
	// Generated when empty.
	ClientID string `json:"client_id,omitempty"`

	Transport transport.Config `json:"transport"`
	Reconnect ReconnectConfig  `json:"reconnect"`

	// DefaultContext seeds the context store.
	DefaultContext *protocol.Context `json:"default_context,omitempty"`

	// RequestTimeoutMs is the client-wide default request timeout,
	// overridable per call.
	RequestTimeoutMs int `json:"request_timeout_ms,omitempty"`

	// Feature gates for optional external collaborators.
	EnableMetrics bool `json:"enable_metrics"`
	EnableLogging bool `json:"enable_logging"`
	EnableCaching bool `json:"enable_caching"`

	// Logging sink, used when EnableLogging is set.
	LogLevel string `json:"log_level,omitempty"`
	LogPath  string `json:"log_path,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Transport: transport.Config{
			Type:      "websocket",
			TimeoutMs: 10000,
		},
		Reconnect: ReconnectConfig{
			Enabled:     true,
			MaxAttempts: 5,
			BackoffMs:   1000,
			Exponential: true,
		},
		RequestTimeoutMs: 30000,
		EnableMetrics:    true,
		EnableLogging:    true,
		LogLevel:         "info",
	}
}

// Load reads a configuration file, layering it over defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// RequestTimeout returns the default per-request timeout in
// milliseconds, falling back to 30000 when unset.
func (c *Config) RequestTimeout() int {
	if c.RequestTimeoutMs > 0 {
		return c.RequestTimeoutMs
	}
	return 30000
}
