// Package config provides the configuration schema, loader, and LLM provider
// registry for the voxfill form-filling service.
package config

import "time"

// LogLevel controls log verbosity for the voxfill server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SessionBackend selects where conversation state is persisted.
type SessionBackend string

const (
	// BackendMemory keeps sessions in process memory. Lost on restart.
	BackendMemory SessionBackend = "memory"

	// BackendPostgres persists sessions in PostgreSQL.
	BackendPostgres SessionBackend = "postgres"
)

// IsValid reports whether b is a recognised session backend.
func (b SessionBackend) IsValid() bool {
	return b == BackendMemory || b == BackendPostgres
}

// Config is the root configuration structure for voxfill.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Sessions SessionsConfig `yaml:"sessions"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the voxfill server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LLMConfig selects and configures the language-model backend serving both
// the extraction and correction capabilities.
type LLMConfig struct {
	// Provider selects the backend (e.g., "openai", "anthropic", "ollama").
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API. Leave empty
	// to use the provider's environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`
}

// SessionsConfig configures conversation state persistence.
type SessionsConfig struct {
	// Backend selects the session store. Default: memory.
	Backend SessionBackend `yaml:"backend"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// TTL is how long an idle session survives. Zero means the store
	// default (30 minutes).
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval is how often expired sessions are evicted. Zero derives
	// a default from TTL.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PipelineConfig tunes turn processing.
type PipelineConfig struct {
	// CapabilityTimeout bounds each LLM capability call within a turn.
	// Zero means the pipeline default (30 seconds).
	CapabilityTimeout time.Duration `yaml:"capability_timeout"`

	// MaxConcurrentTurns bounds process-wide in-flight turns. Zero means
	// the pipeline default.
	MaxConcurrentTurns int64 `yaml:"max_concurrent_turns"`
}
