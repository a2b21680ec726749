package config

import (
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	llm "github.com/MrWong99/voxfill/pkg/provider/llm"
	"github.com/MrWong99/voxfill/pkg/provider/llm/anyllm"
	"github.com/MrWong99/voxfill/pkg/provider/llm/openai"
)

// BuildProvider constructs the [llm.Provider] selected by cfg.
//
// The "openai" provider uses the official SDK directly so its request
// options stay available; every other provider goes through the universal
// anyllm backend.
func BuildProvider(cfg LLMConfig) (llm.Provider, error) {
	if cfg.Provider == "openai" && cfg.APIKey != "" {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		p, err := openai.New(cfg.APIKey, cfg.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("config: build openai provider: %w", err)
		}
		return p, nil
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	p, err := anyllm.New(cfg.Provider, cfg.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("config: build %q provider: %w", cfg.Provider, err)
	}
	return p, nil
}
