package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// GeminiService implements LLMService and EmbeddingService using the
// Google Gemini API.
type GeminiService struct {
	config     *common.GeminiConfig
	client     *genai.Client
	embedModel string
	dimensions int
	timeout    time.Duration
	logger     arbor.ILogger
}

// NewGeminiService creates a new Gemini service instance.
func NewGeminiService(config *common.GeminiConfig, embedding *common.EmbeddingConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or gemini.api_key)")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid gemini timeout %q: %w", config.Timeout, err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	embedModel := "text-embedding-004"
	dimensions := 768
	if embedding != nil {
		if embedding.Model != "" {
			embedModel = embedding.Model
		}
		if embedding.Dimensions > 0 {
			dimensions = embedding.Dimensions
		}
	}

	logger.Debug().
		Str("model", config.Model).
		Str("embed_model", embedModel).
		Msg("Gemini service initialized")

	return &GeminiService{
		config:     config,
		client:     client,
		embedModel: embedModel,
		dimensions: dimensions,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Name identifies the provider for logging.
func (s *GeminiService) Name() string { return "gemini" }

// Generate produces a completion for the conversation.
func (s *GeminiService) Generate(ctx context.Context, messages []models.Message) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents, config, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Models.GenerateContent(timeoutCtx, s.config.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			out.WriteString(part.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no response generated from Gemini API")
	}
	return out.String(), nil
}

// GenerateStream produces a completion, delivering text deltas to fn.
func (s *GeminiService) GenerateStream(ctx context.Context, messages []models.Message, fn interfaces.StreamFunc) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents, config, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for resp, err := range s.client.Models.GenerateContentStream(timeoutCtx, s.config.Model, contents, config) {
		if err != nil {
			return out.String(), fmt.Errorf("Gemini streaming failed: %w", err)
		}
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text == "" {
					continue
				}
				out.WriteString(part.Text)
				if fn != nil {
					if err := fn(part.Text); err != nil {
						return out.String(), err
					}
				}
			}
		}
	}
	return out.String(), nil
}

// Embed embeds a single text.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds a batch of texts in one round trip.
func (s *GeminiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	dims := int32(s.dimensions)
	result, err := s.client.Models.EmbedContent(timeoutCtx, s.embedModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini embedding call failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("Gemini returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Dimensions reports the vector width this provider produces.
func (s *GeminiService) Dimensions() int { return s.dimensions }

func convertMessagesToGemini(messages []models.Message) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if len(messages) == 0 {
		return nil, nil, fmt.Errorf("messages cannot be empty")
	}

	config := &genai.GenerateContentConfig{}
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if config.SystemInstruction == nil {
				config.SystemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)
			}
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("at least one non-system message is required")
	}
	return contents, config, nil
}
