package models

import "time"

// UserCredentials holds a user's encrypted IMS credentials. Ciphertext is
// decrypted only transiently by the scraper for the duration of one job.
type UserCredentials struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"user_id"`
	IMSBaseURL        string     `json:"ims_base_url"`
	EncryptedUsername []byte     `json:"-"`
	EncryptedPassword []byte     `json:"-"`
	IsValidated       bool       `json:"is_validated"`
	LastValidatedAt   *time.Time `json:"last_validated_at,omitempty"`
	ValidationError   string     `json:"validation_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IMSCredentials is the transient decrypted form handed to the scraper.
// Never persisted, never logged.
type IMSCredentials struct {
	BaseURL  string
	Username string
	Password string
}
