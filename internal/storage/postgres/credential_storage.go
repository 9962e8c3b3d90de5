package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// CredentialStorage persists encrypted IMS credentials.
type CredentialStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// Upsert stores credentials keyed on user_id.
func (s *CredentialStorage) Upsert(ctx context.Context, creds *models.UserCredentials) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ims_user_credentials (
			user_id, ims_base_url, encrypted_username, encrypted_password,
			is_validated, last_validated_at, validation_error, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id) DO UPDATE SET
			ims_base_url = EXCLUDED.ims_base_url,
			encrypted_username = EXCLUDED.encrypted_username,
			encrypted_password = EXCLUDED.encrypted_password,
			is_validated = EXCLUDED.is_validated,
			last_validated_at = EXCLUDED.last_validated_at,
			validation_error = EXCLUDED.validation_error,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		creds.UserID, creds.IMSBaseURL, creds.EncryptedUsername,
		creds.EncryptedPassword, creds.IsValidated, creds.LastValidatedAt,
		creds.ValidationError, creds.CreatedAt, creds.UpdatedAt,
	).Scan(&creds.ID)
	if err != nil {
		return fmt.Errorf("failed to save credentials for %s: %w", creds.UserID, err)
	}
	return nil
}

// GetByUserID returns the stored record, or nil when absent.
func (s *CredentialStorage) GetByUserID(ctx context.Context, userID string) (*models.UserCredentials, error) {
	creds := &models.UserCredentials{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, ims_base_url, encrypted_username, encrypted_password,
			is_validated, last_validated_at, validation_error, created_at, updated_at
		FROM ims_user_credentials WHERE user_id = $1`, userID,
	).Scan(
		&creds.ID, &creds.UserID, &creds.IMSBaseURL, &creds.EncryptedUsername,
		&creds.EncryptedPassword, &creds.IsValidated, &creds.LastValidatedAt,
		&creds.ValidationError, &creds.CreatedAt, &creds.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return creds, nil
}
