package credentials

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// memCredentialStorage keeps records in a map keyed by user id.
type memCredentialStorage struct {
	records map[string]*models.UserCredentials
}

func newMemCredentialStorage() *memCredentialStorage {
	return &memCredentialStorage{records: make(map[string]*models.UserCredentials)}
}

func (m *memCredentialStorage) Upsert(ctx context.Context, creds *models.UserCredentials) error {
	m.records[creds.UserID] = creds
	return nil
}

func (m *memCredentialStorage) GetByUserID(ctx context.Context, userID string) (*models.UserCredentials, error) {
	return m.records[userID], nil
}

// stubScraper records session invalidations and login attempts.
type stubScraper struct {
	invalidated int
	loginErr    error
	lastCreds   models.IMSCredentials
}

func (s *stubScraper) Login(ctx context.Context, creds models.IMSCredentials) error {
	s.lastCreds = creds
	return s.loginErr
}
func (s *stubScraper) InvalidateSession() { s.invalidated++ }
func (s *stubScraper) Search(ctx context.Context, query string, productCodes []string, maxIssues int, progress models.ProgressFunc) (*interfaces.SearchOutcome, error) {
	return nil, nil
}
func (s *stubScraper) CrawlDetails(ctx context.Context, userID string, rows []interfaces.SearchRow, includeRelated bool, progress models.ProgressFunc) (*interfaces.CrawlOutcome, error) {
	return nil, nil
}
func (s *stubScraper) CrawlIssue(ctx context.Context, userID, imsID string) (*models.Issue, error) {
	return nil, nil
}
func (s *stubScraper) FetchFile(ctx context.Context, fileURL string) ([]byte, error) {
	return nil, nil
}

func newTestService(t *testing.T, scraper interfaces.ScraperService) (*Service, *memCredentialStorage) {
	t.Helper()
	storage := newMemCredentialStorage()
	svc, err := NewService(storage, scraper, "test-passphrase", arbor.NewLogger())
	require.NoError(t, err)
	return svc, storage
}

func TestNewServiceRequiresPassphrase(t *testing.T) {
	_, err := NewService(newMemCredentialStorage(), nil, "", arbor.NewLogger())
	require.Error(t, err)
}

func TestUpsertAndDecryptRoundtrip(t *testing.T) {
	scraper := &stubScraper{}
	svc, storage := newTestService(t, scraper)

	stored, err := svc.Upsert(context.Background(), "user-1", "http://ims.local/", "kim", "secret123")
	require.NoError(t, err)

	assert.Equal(t, "http://ims.local", stored.IMSBaseURL)
	assert.False(t, stored.IsValidated)
	assert.Equal(t, 1, scraper.invalidated)

	// Ciphertext never contains the plaintext.
	record := storage.records["user-1"]
	assert.NotContains(t, string(record.EncryptedUsername), "kim")
	assert.NotContains(t, string(record.EncryptedPassword), "secret123")

	plain, err := svc.Decrypt(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "http://ims.local", plain.BaseURL)
	assert.Equal(t, "kim", plain.Username)
	assert.Equal(t, "secret123", plain.Password)
}

func TestDecryptMissingUser(t *testing.T) {
	svc, _ := newTestService(t, &stubScraper{})

	_, err := svc.Decrypt(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials stored")
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	svc, storage := newTestService(t, &stubScraper{})

	_, err := svc.Upsert(context.Background(), "user-1", "http://ims.local", "kim", "secret123")
	require.NoError(t, err)

	record := storage.records["user-1"]
	record.EncryptedPassword[len(record.EncryptedPassword)-1] ^= 0xFF

	_, err = svc.Decrypt(context.Background(), "user-1")
	require.Error(t, err)
}

func TestValidateRecordsOutcome(t *testing.T) {
	scraper := &stubScraper{}
	svc, storage := newTestService(t, scraper)

	_, err := svc.Upsert(context.Background(), "user-1", "http://ims.local", "kim", "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Validate(context.Background(), "user-1"))
	assert.Equal(t, "kim", scraper.lastCreds.Username)

	record := storage.records["user-1"]
	assert.True(t, record.IsValidated)
	assert.Empty(t, record.ValidationError)
	assert.NotNil(t, record.LastValidatedAt)

	scraper.loginErr = fmt.Errorf("Authentication failed")
	require.Error(t, svc.Validate(context.Background(), "user-1"))

	record = storage.records["user-1"]
	assert.False(t, record.IsValidated)
	assert.Equal(t, "Authentication failed", record.ValidationError)
}
