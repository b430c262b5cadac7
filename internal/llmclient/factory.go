package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
)

// NewClient creates the LLMClient named by the configured provider.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
}
