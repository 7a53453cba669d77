package nl2sql

import (
	"context"
	"fmt"

	"github.com/askdb/askdb/internal/config"
)

// NewCompleter builds the client for the configured provider.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err := NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderAnthropic:
		client, err := NewAnthropicClient(AnthropicConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, GeminiConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
