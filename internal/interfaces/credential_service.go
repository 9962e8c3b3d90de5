package interfaces

import (
	"context"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// CredentialService manages per-user IMS credentials at rest.
type CredentialService interface {
	// Upsert encrypts and stores credentials, resetting validation state and
	// invalidating any live scraper session for the user.
	Upsert(ctx context.Context, userID, baseURL, username, password string) (*models.UserCredentials, error)
	// Get returns the stored record without plaintext.
	Get(ctx context.Context, userID string) (*models.UserCredentials, error)
	// Decrypt returns the transient plaintext form for a crawl.
	Decrypt(ctx context.Context, userID string) (models.IMSCredentials, error)
	// Validate performs a live login probe and records the outcome.
	Validate(ctx context.Context, userID string) error
}
