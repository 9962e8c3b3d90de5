package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/models"
)

// Service orchestrates crawl jobs end to end.
type Service struct {
	config      *common.Config
	scraper     interfaces.ScraperService
	credentials interfaces.CredentialService
	intents     interfaces.IntentService
	embedder    interfaces.EmbeddingService
	extractor   interfaces.AttachmentExtractor
	issues      interfaces.IssueStorage
	jobs        interfaces.JobStorage
	events      interfaces.EventService
	logger      arbor.ILogger

	mu      sync.Mutex
	running map[string]context.CancelFunc

	cron *cron.Cron
}

// NewService creates a new crawler orchestration service
func NewService(
	config *common.Config,
	scraper interfaces.ScraperService,
	credentials interfaces.CredentialService,
	intents interfaces.IntentService,
	embedder interfaces.EmbeddingService,
	extractor interfaces.AttachmentExtractor,
	issues interfaces.IssueStorage,
	jobs interfaces.JobStorage,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:      config,
		scraper:     scraper,
		credentials: credentials,
		intents:     intents,
		embedder:    embedder,
		extractor:   extractor,
		issues:      issues,
		jobs:        jobs,
		events:      events,
		running:     make(map[string]context.CancelFunc),
		logger:      logger,
	}
}

// StartCleanup schedules the expired-job sweep when enabled.
func (s *Service) StartCleanup() error {
	if !s.config.Crawler.CacheCleanupEnabled {
		return nil
	}
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.config.Crawler.CacheCleanupCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.cleanupExpired(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Scheduled job cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.config.Crawler.CacheCleanupCron, err)
	}
	s.cron.Start()
	return nil
}

// StopCleanup halts the cleanup scheduler.
func (s *Service) StopCleanup() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// CreateJob registers a new job, or serves a completed job from the query
// cache when one finished within the TTL.
func (s *Service) CreateJob(ctx context.Context, userID, query string, config models.JobConfig, forceRefresh bool) (*models.CrawlJob, bool, error) {
	query = strings.TrimSpace(query)
	if userID == "" || query == "" {
		return nil, false, fmt.Errorf("user_id and query are required")
	}

	ttlHours := s.config.Crawler.QueryCacheHours
	if ttlHours > 0 && !forceRefresh {
		cutoff := time.Now().UTC().Add(-time.Duration(ttlHours) * time.Hour)
		cached, err := s.jobs.FindRecentCompleted(ctx, userID, query, cutoff)
		if err != nil {
			return nil, false, fmt.Errorf("cache lookup failed: %w", err)
		}
		if cached != nil {
			s.logger.Info().
				Str("job_id", cached.ID).
				Str("user_id", userID).
				Msg("Query served from job cache")
			return cached, true, nil
		}
		// Opportunistic sweep between scheduled runs. Honors the same
		// switch as the scheduled cleanup.
		if s.config.Crawler.CacheCleanupEnabled {
			go func() {
				sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := s.cleanupExpired(sweepCtx); err != nil {
					s.logger.Debug().Err(err).Msg("Opportunistic job cleanup failed")
				}
			}()
		}
	}

	if config.MaxIssues <= 0 {
		config.MaxIssues = s.config.Crawler.DefaultMaxIssues
	}

	job := &models.CrawlJob{
		ID:        common.NewJobID(),
		UserID:    userID,
		RawQuery:  query,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
		Config:    config,
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, false, fmt.Errorf("failed to persist job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("query", query).
		Msg("Crawl job created")

	return job, false, nil
}

// GetStatus returns the job's persisted state.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

// Cancel requests cooperative cancellation. The job is persisted as failed
// with a cancellation message; the running execution observes the context
// at its next suspension point. Idempotent on terminal jobs.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.IsTerminal() {
		return nil
	}

	job.Fail(models.CancelledByUserMessage)
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	s.events.Publish(models.ProgressEvent{
		Type:    models.EventJobFailed,
		JobID:   jobID,
		Message: models.CancelledByUserMessage,
	})

	s.logger.Info().
		Str("job_id", jobID).
		Msg("Crawl job cancelled")
	return nil
}

func (s *Service) cleanupExpired(ctx context.Context) (int64, error) {
	ttlHours := s.config.Crawler.QueryCacheHours
	if ttlHours <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-time.Duration(ttlHours) * time.Hour)
	deleted, err := s.jobs.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Debug().
			Int64("deleted", deleted).
			Msg("Expired jobs removed")
	}
	return deleted, nil
}
