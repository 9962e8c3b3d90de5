package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/scrypt"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

const (
	saltSize = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keySize = 32
)

// Service implements CredentialService. Plaintext exists only inside
// Decrypt calls; storage holds salt-prefixed AES-GCM ciphertext.
type Service struct {
	storage    interfaces.CredentialStorage
	scraper    interfaces.ScraperService
	passphrase string
	logger     arbor.ILogger
}

// NewService creates a new credential service
func NewService(storage interfaces.CredentialStorage, scraper interfaces.ScraperService, passphrase string, logger arbor.ILogger) (*Service, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption key is required")
	}
	return &Service{
		storage:    storage,
		scraper:    scraper,
		passphrase: passphrase,
		logger:     logger,
	}, nil
}

// Upsert encrypts and stores credentials for the user. Validation state is
// reset and any live scraper session is dropped so the next crawl
// authenticates with the new credentials.
func (s *Service) Upsert(ctx context.Context, userID, baseURL, username, password string) (*models.UserCredentials, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("base_url, username and password are required")
	}

	encUser, err := s.encrypt([]byte(username))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt username: %w", err)
	}
	encPass, err := s.encrypt([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	now := time.Now().UTC()
	creds := &models.UserCredentials{
		UserID:            userID,
		IMSBaseURL:        strings.TrimRight(baseURL, "/"),
		EncryptedUsername: encUser,
		EncryptedPassword: encPass,
		IsValidated:       false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.storage.Upsert(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	if s.scraper != nil {
		s.scraper.InvalidateSession()
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("ims_base_url", creds.IMSBaseURL).
		Msg("Credentials stored")

	return creds, nil
}

// Get returns the stored record without plaintext.
func (s *Service) Get(ctx context.Context, userID string) (*models.UserCredentials, error) {
	return s.storage.GetByUserID(ctx, userID)
}

// Decrypt returns the transient plaintext form for a crawl.
func (s *Service) Decrypt(ctx context.Context, userID string) (models.IMSCredentials, error) {
	creds, err := s.storage.GetByUserID(ctx, userID)
	if err != nil {
		return models.IMSCredentials{}, err
	}
	if creds == nil {
		return models.IMSCredentials{}, fmt.Errorf("no credentials stored for user %s", userID)
	}

	username, err := s.decrypt(creds.EncryptedUsername)
	if err != nil {
		return models.IMSCredentials{}, fmt.Errorf("failed to decrypt username: %w", err)
	}
	password, err := s.decrypt(creds.EncryptedPassword)
	if err != nil {
		return models.IMSCredentials{}, fmt.Errorf("failed to decrypt password: %w", err)
	}

	return models.IMSCredentials{
		BaseURL:  creds.IMSBaseURL,
		Username: string(username),
		Password: string(password),
	}, nil
}

// Validate performs a live login probe and records the outcome.
func (s *Service) Validate(ctx context.Context, userID string) error {
	plain, err := s.Decrypt(ctx, userID)
	if err != nil {
		return err
	}

	creds, err := s.storage.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	loginErr := s.scraper.Login(ctx, plain)

	creds.LastValidatedAt = &now
	creds.UpdatedAt = now
	if loginErr != nil {
		creds.IsValidated = false
		creds.ValidationError = loginErr.Error()
	} else {
		creds.IsValidated = true
		creds.ValidationError = ""
	}

	if err := s.storage.Upsert(ctx, creds); err != nil {
		return fmt.Errorf("failed to record validation result: %w", err)
	}

	if loginErr != nil {
		s.logger.Warn().
			Str("user_id", userID).
			Err(loginErr).
			Msg("Credential validation failed")
		return loginErr
	}

	s.logger.Info().
		Str("user_id", userID).
		Msg("Credentials validated")
	return nil
}

// encrypt seals plaintext with AES-GCM under a per-value scrypt key.
// Output layout: salt | nonce | ciphertext.
func (s *Service) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (s *Service) decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	salt, rest := data[:saltSize], data[saltSize:]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := rest[:nonceSize], rest[nonceSize:]

	return gcm.Open(nil, nonce, sealed, nil)
}

func (s *Service) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(s.passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
