package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/argus/internal/config"
	"github.com/agenthands/argus/internal/logger"
)

// NewClient builds the text and embedding collaborators for the configured provider. The
// embedder is nil for providers without embeddings, and queries then run without the
// semantic signal.
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, Embedder, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.BaseURL, cfg.EmbeddingVersion)
		return c, c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.EmbeddingVersion)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil

	case "claude":
		c := NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
		return c, nil, nil

	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		logger.Info("using ollama through its OpenAI-compatible API", "base_url", baseURL)

		// Ollama ignores the key but the client requires one.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		version := cfg.EmbeddingVersion
		if version == "" && cfg.EmbeddingModel != "" {
			version = "ollama/" + cfg.EmbeddingModel
		}
		c := NewOpenAIClient(apiKey, cfg.Model, cfg.EmbeddingModel, baseURL, version)
		return c, c, nil

	case "", "none":
		return nil, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
