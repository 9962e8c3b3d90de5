package interfaces

import (
	"context"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// StreamFunc receives completion chunks as they are generated.
type StreamFunc func(chunk string) error

// LLMService is a chat-completion provider.
type LLMService interface {
	// Generate produces a completion for the conversation.
	Generate(ctx context.Context, messages []models.Message) (string, error)
	// GenerateStream produces a completion, delivering chunks to fn as they
	// arrive, and returns the full text.
	GenerateStream(ctx context.Context, messages []models.Message, fn StreamFunc) (string, error)
	// Name identifies the provider for logging.
	Name() string
}

// EmbeddingService converts text into fixed-dimension vectors.
type EmbeddingService interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds a batch of texts in one round trip. The result has
	// one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the vector width this provider produces.
	Dimensions() int
}
