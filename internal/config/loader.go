package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists provider names the registry can construct.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider must be set"))
	} else if !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is unknown; valid values: %v", cfg.LLM.Provider, ValidLLMProviders))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model must be set"))
	}

	if cfg.Sessions.Backend != "" && !cfg.Sessions.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("sessions.backend %q is invalid; valid values: memory, postgres", cfg.Sessions.Backend))
	}
	if cfg.Sessions.Backend == BackendPostgres && cfg.Sessions.PostgresDSN == "" {
		errs = append(errs, errors.New("sessions.postgres_dsn must be set for the postgres backend"))
	}
	if cfg.Sessions.TTL < 0 {
		errs = append(errs, fmt.Errorf("sessions.ttl %v must not be negative", cfg.Sessions.TTL))
	}

	if cfg.Pipeline.CapabilityTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.capability_timeout %v must not be negative", cfg.Pipeline.CapabilityTimeout))
	}
	if cfg.Pipeline.MaxConcurrentTurns < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_concurrent_turns %d must not be negative", cfg.Pipeline.MaxConcurrentTurns))
	}

	return errors.Join(errs...)
}
