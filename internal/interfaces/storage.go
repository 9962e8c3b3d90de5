package interfaces

import (
	"context"
	"time"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// IssueStorage persists crawled issues, their embeddings, and relations.
type IssueStorage interface {
	// Save upserts an issue keyed on (user_id, ims_id) and returns its id.
	Save(ctx context.Context, issue *models.Issue) (int64, error)
	// SaveEmbedding stores or replaces the embedding vector for an issue,
	// together with the exact text that was embedded.
	SaveEmbedding(ctx context.Context, issueID int64, embedding []float32, text string) error
	// SaveRelation records a directed relation edge between two issues.
	SaveRelation(ctx context.Context, sourceID, targetID int64, kind models.RelationKind) error

	FindByID(ctx context.Context, id int64) (*models.Issue, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*models.Issue, error)
	FindByIMSID(ctx context.Context, userID, imsID string) (*models.Issue, error)
	FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Issue, error)

	// SearchByVector returns the user's issues nearest to the query vector,
	// with cosine similarity attached via the score side channel.
	SearchByVector(ctx context.Context, userID string, vector []float32, limit int) ([]*models.Issue, error)
	// GetEmbeddings returns stored vectors for the given issue ids. Issues
	// without an embedding are absent from the map.
	GetEmbeddings(ctx context.Context, ids []int64) (map[int64][]float32, error)
	// GetEmbeddedIMSIDs reports which of the given ims ids already carry an
	// embedding for the user, for retry and backfill paths. A nil id list
	// checks all of the user's issues.
	GetEmbeddedIMSIDs(ctx context.Context, userID string, imsIDs []string) (map[string]bool, error)

	CountByUser(ctx context.Context, userID string) (int, error)
}

// JobStorage persists crawl jobs.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.CrawlJob) error
	GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error)
	// FindRecentCompleted returns the newest completed job for the same user
	// and raw query created after the cutoff, or nil when none exists.
	FindRecentCompleted(ctx context.Context, userID, rawQuery string, since time.Time) (*models.CrawlJob, error)
	// DeleteExpired removes terminal jobs completed before the cutoff and
	// returns how many were deleted.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	GetJobStats(ctx context.Context, userID string) (map[string]int, error)
}

// CredentialStorage persists encrypted IMS credentials.
type CredentialStorage interface {
	Upsert(ctx context.Context, creds *models.UserCredentials) error
	GetByUserID(ctx context.Context, userID string) (*models.UserCredentials, error)
}
