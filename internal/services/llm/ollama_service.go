package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// OllamaService implements LLMService and EmbeddingService against a local
// Ollama server. Chat and embeddings may use different models.
type OllamaService struct {
	chat       *ollama.LLM
	embedder   *ollama.LLM
	dimensions int
	timeout    time.Duration
	logger     arbor.ILogger
}

// NewOllamaService creates a new Ollama service instance.
func NewOllamaService(config *common.OllamaConfig, embedding *common.EmbeddingConfig, logger arbor.ILogger) (*OllamaService, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		return nil, fmt.Errorf("ollama.model is required")
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama timeout %q: %w", config.Timeout, err)
	}

	chat, err := ollama.New(
		ollama.WithServerURL(config.BaseURL),
		ollama.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama chat client: %w", err)
	}

	embedModel := config.EmbeddingModel
	dimensions := 1024
	if embedding != nil {
		if embedding.Model != "" {
			embedModel = embedding.Model
		}
		if embedding.Dimensions > 0 {
			dimensions = embedding.Dimensions
		}
	}
	if embedModel == "" {
		embedModel = config.Model
	}

	embedder, err := ollama.New(
		ollama.WithServerURL(config.BaseURL),
		ollama.WithModel(embedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama embedding client: %w", err)
	}

	logger.Debug().
		Str("base_url", config.BaseURL).
		Str("model", config.Model).
		Str("embed_model", embedModel).
		Msg("Ollama service initialized")

	return &OllamaService{
		chat:       chat,
		embedder:   embedder,
		dimensions: dimensions,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Name identifies the provider for logging.
func (s *OllamaService) Name() string { return "ollama" }

// Generate produces a completion for the conversation.
func (s *OllamaService) Generate(ctx context.Context, messages []models.Message) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := convertMessagesToLangchain(messages)
	if err != nil {
		return "", err
	}

	resp, err := s.chat.GenerateContent(timeoutCtx, content)
	if err != nil {
		return "", fmt.Errorf("Ollama completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response generated from Ollama")
	}
	return resp.Choices[0].Content, nil
}

// GenerateStream produces a completion, delivering chunks to fn.
func (s *OllamaService) GenerateStream(ctx context.Context, messages []models.Message, fn interfaces.StreamFunc) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := convertMessagesToLangchain(messages)
	if err != nil {
		return "", err
	}

	resp, err := s.chat.GenerateContent(timeoutCtx, content,
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if fn != nil && len(chunk) > 0 {
				return fn(string(chunk))
			}
			return nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("Ollama streaming failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response generated from Ollama")
	}
	return resp.Choices[0].Content, nil
}

// Embed embeds a single text.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds a batch of texts in one round trip.
func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vectors, err := s.embedder.CreateEmbedding(timeoutCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("Ollama embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("Ollama returned %d embeddings for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// Dimensions reports the vector width this provider produces.
func (s *OllamaService) Dimensions() int { return s.dimensions }

func convertMessagesToLangchain(messages []models.Message) ([]llms.MessageContent, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		var role llms.ChatMessageType
		switch msg.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}
	return content, nil
}
