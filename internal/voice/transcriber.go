package voice

import (
	"context"
	"fmt"

	"github.com/askdb/askdb/internal/config"
)

// NewTranscriber returns nil when voice input is disabled.
func NewTranscriber(ctx context.Context, cfg config.VoiceConfig) (Transcriber, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		transcriber, err := NewOpenAITranscriber(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return transcriber, nil
	case config.ProviderGemini:
		transcriber, err := NewGeminiTranscriber(ctx, GeminiConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return transcriber, nil
	default:
		return nil, fmt.Errorf("unsupported voice provider %q", cfg.Provider)
	}
}
