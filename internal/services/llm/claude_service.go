package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// ClaudeService implements LLMService using the Anthropic API.
type ClaudeService struct {
	config    *common.ClaudeConfig
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
	logger    arbor.ILogger
}

// NewClaudeService creates a new Claude LLM service instance.
func NewClaudeService(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key)")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid claude timeout %q: %w", config.Timeout, err)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude LLM service initialized")

	return &ClaudeService{
		config:    config,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Name identifies the provider for logging.
func (s *ClaudeService) Name() string { return "claude" }

// Generate produces a completion for the conversation.
func (s *ClaudeService) Generate(ctx context.Context, messages []models.Message) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params, err := s.buildParams(messages)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}
	return out.String(), nil
}

// GenerateStream produces a completion, delivering text deltas to fn.
func (s *ClaudeService) GenerateStream(ctx context.Context, messages []models.Message, fn interfaces.StreamFunc) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params, err := s.buildParams(messages)
	if err != nil {
		return "", err
	}

	stream := s.client.Messages.NewStreaming(timeoutCtx, params)
	var out strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch delta := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			text := delta.Delta.Text
			if text == "" {
				continue
			}
			out.WriteString(text)
			if fn != nil {
				if err := fn(text); err != nil {
					return out.String(), err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return out.String(), fmt.Errorf("Claude streaming failed: %w", err)
	}
	return out.String(), nil
}

func (s *ClaudeService) buildParams(messages []models.Message) (anthropic.MessageNewParams, error) {
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("messages cannot be empty")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}
	if len(claudeMessages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("at least one non-system message is required")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages:  claudeMessages,
	}
	if s.config.Temp > 0 {
		params.Temperature = anthropic.Float(s.config.Temp)
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}
	return params, nil
}
