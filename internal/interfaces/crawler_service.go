package interfaces

import (
	"context"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// CrawlerService orchestrates crawl jobs end to end.
type CrawlerService interface {
	// CreateJob registers a new job for the query, or returns a cached
	// completed job when an identical query finished within the cache TTL.
	// forceRefresh bypasses the cache. The bool reports whether the
	// returned job was served from cache.
	CreateJob(ctx context.Context, userID, query string, config models.JobConfig, forceRefresh bool) (*models.CrawlJob, bool, error)
	// ExecuteJob runs the job through its phases. Blocking; callers run it
	// on a goroutine and follow progress via the event stream.
	ExecuteJob(ctx context.Context, jobID string) error
	GetStatus(ctx context.Context, jobID string) (*models.CrawlJob, error)
	// Cancel requests cooperative cancellation. Idempotent; cancelling a
	// terminal job is a no-op.
	Cancel(ctx context.Context, jobID string) error
	// BackfillEmbeddings re-embeds the user's stored issues that are missing
	// vectors, outside any job.
	BackfillEmbeddings(ctx context.Context, userID string) (int, error)
}
