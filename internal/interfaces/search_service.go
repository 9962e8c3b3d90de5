package interfaces

import (
	"context"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// SearchService ranks a user's stored issues against a free-text query by
// combining lexical and vector scores.
type SearchService interface {
	// Hybrid returns up to limit issues ranked by combined score, with
	// hybrid_score attached via the score side channel.
	Hybrid(ctx context.Context, userID, query string, limit int) ([]*models.Issue, error)
}
