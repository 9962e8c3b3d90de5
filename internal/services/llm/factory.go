package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
)

// NewLLMService builds the chat-completion provider named by config.
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.LLM.Provider {
	case "ollama":
		return NewOllamaService(&config.Ollama, &config.Embedding, logger)
	case "claude":
		return NewClaudeService(&config.Claude, logger)
	case "gemini":
		return NewGeminiService(&config.Gemini, &config.Embedding, logger)
	case "mock":
		return NewMockService(config.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", config.LLM.Provider)
	}
}

// NewEmbeddingService builds the embedding provider named by config.
// Claude has no embedding API, so it is not a valid embedding provider.
func NewEmbeddingService(config *common.Config, logger arbor.ILogger) (interfaces.EmbeddingService, error) {
	switch config.Embedding.Provider {
	case "ollama":
		return NewOllamaService(&config.Ollama, &config.Embedding, logger)
	case "gemini":
		return NewGeminiService(&config.Gemini, &config.Embedding, logger)
	case "mock":
		return NewMockService(config.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", config.Embedding.Provider)
	}
}
