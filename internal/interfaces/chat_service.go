package interfaces

import (
	"context"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// ChatService answers questions bounded to a caller-supplied issue set.
type ChatService interface {
	// Ask produces a complete answer in one call.
	Ask(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)
	// AskStream produces the answer as a stream of events. The emit func is
	// called in order; an error from emit aborts the stream.
	AskStream(ctx context.Context, req *models.ChatRequest, emit func(models.ChatStreamEvent) error) error
	// History returns the retained messages of a conversation, newest last.
	History(ctx context.Context, conversationID string) ([]models.Message, error)
}
