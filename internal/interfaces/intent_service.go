package interfaces

import (
	"context"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// IntentService parses natural-language queries into structured intents.
type IntentService interface {
	// Parse classifies the query. Never fails hard: when the LLM is
	// unavailable or returns garbage it falls back to a keyword intent.
	Parse(ctx context.Context, query string) (*models.SearchIntent, error)
	// ToIMSSyntax renders the intent as an IMS search string.
	ToIMSSyntax(intent *models.SearchIntent) string
}
