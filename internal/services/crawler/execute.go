package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeiths2202/ims-crawler/internal/models"
	"github.com/jeiths2202/ims-crawler/internal/services/scraper"
)

// Progress percentages at phase boundaries. Within the crawl and embed
// spans, per-batch progress interpolates between the endpoints.
const (
	progressAuth      = 5
	progressParsing   = 10
	progressCrawlFrom = 15
	progressSearchTo  = 20
	progressCrawlTo   = 60
	progressEmbedFrom = 75
	progressEmbedTo   = 95
)

// ExecuteJob runs a pending job through authentication, search, crawl, and
// ingestion. Blocking; callers run it on a goroutine and follow progress on
// the event stream. The job stream is closed when execution ends.
func (s *Service) ExecuteJob(ctx context.Context, jobID string) error {
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

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[jobID] = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
		s.events.CloseJob(jobID)

		if r := recover(); r != nil {
			s.failJob(job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.publish(job, models.ProgressEvent{Type: models.EventJobStarted})

	if err := s.runJob(runCtx, job); err != nil {
		if errors.Is(err, context.Canceled) || job.Error == models.CancelledByUserMessage {
			// Cancel already persisted the terminal state.
			return nil
		}
		s.failJob(job, err.Error())
		return err
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job *models.CrawlJob) error {
	// Authenticate
	s.transition(ctx, job, models.JobStatusAuthenticating, "Authenticating with IMS", progressAuth)
	s.publish(job, models.ProgressEvent{Type: models.EventAuthenticating})

	creds, err := s.credentials.Decrypt(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("credentials unavailable: %w", err)
	}
	if err := s.scraper.Login(ctx, creds); err != nil {
		if errors.Is(err, scraper.ErrAuthenticationFailed) {
			return scraper.ErrAuthenticationFailed
		}
		return fmt.Errorf("login failed: %w", err)
	}
	s.publish(job, models.ProgressEvent{Type: models.EventAuthenticated})

	// Parse intent. Failure never blocks the crawl; the raw query is
	// what IMS receives either way.
	s.transition(ctx, job, models.JobStatusParsing, "Parsing query", progressParsing)
	if intent, err := s.intents.Parse(ctx, job.RawQuery); err == nil {
		job.Intent = string(intent.Kind)
		job.ParsedQuery = s.intents.ToIMSSyntax(intent)
	}

	// Search
	s.transition(ctx, job, models.JobStatusCrawling, "Searching IMS", progressCrawlFrom)
	s.publish(job, models.ProgressEvent{Type: models.EventSearching})

	searchOutcome, err := s.scraper.Search(ctx, job.RawQuery, job.Config.ProductCodes, job.Config.MaxIssues, s.progressFunc(job))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	job.IssuesFound = len(searchOutcome.Rows)
	s.save(ctx, job)

	if len(searchOutcome.Rows) == 0 {
		s.complete(ctx, job)
		return nil
	}

	// Crawl details
	s.transition(ctx, job, models.JobStatusCrawling, "Crawling issue details", progressSearchTo)
	s.publish(job, models.ProgressEvent{Type: models.EventCrawlingStarted, Total: len(searchOutcome.Rows)})

	crawlOutcome, err := s.scraper.CrawlDetails(ctx, job.UserID, searchOutcome.Rows, job.Config.IncludeRelated, s.crawlProgressFunc(job))
	if err != nil {
		return fmt.Errorf("detail crawl failed: %w", err)
	}
	job.IssuesCrawled = len(crawlOutcome.Issues)
	s.transition(ctx, job, models.JobStatusCrawling, "Issue details fetched", progressCrawlTo)

	// Ingest
	if err := s.ingest(ctx, job, crawlOutcome.Issues); err != nil {
		return err
	}

	s.complete(ctx, job)
	return nil
}

func (s *Service) complete(ctx context.Context, job *models.CrawlJob) {
	s.transition(ctx, job, models.JobStatusCompleted, "Completed", 100)
	s.publish(job, models.ProgressEvent{
		Type:          models.EventJobCompleted,
		IssuesCrawled: job.IssuesCrawled,
		Percent:       100,
	})
	s.logger.Info().
		Str("job_id", job.ID).
		Int("issues_crawled", job.IssuesCrawled).
		Msg("Crawl job completed")
}

func (s *Service) failJob(job *models.CrawlJob, message string) {
	job.Fail(message)
	s.save(context.Background(), job)
	s.publish(job, models.ProgressEvent{
		Type:    models.EventJobFailed,
		Message: message,
	})
	s.logger.Warn().
		Str("job_id", job.ID).
		Str("error", message).
		Msg("Crawl job failed")
}

// transition moves the job and persists it. Persistence failure here is
// logged, not fatal; the in-memory job stays authoritative for execution.
func (s *Service) transition(ctx context.Context, job *models.CrawlJob, status models.JobStatus, step string, progress int) {
	if err := job.Transition(status, step, progress); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Invalid job transition")
		return
	}
	s.save(ctx, job)
	s.publish(job, models.ProgressEvent{
		Type:    models.EventPhaseStarted,
		Step:    step,
		Percent: job.Progress,
	})
}

func (s *Service) save(ctx context.Context, job *models.CrawlJob) {
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job")
	}
}

func (s *Service) publish(job *models.CrawlJob, event models.ProgressEvent) {
	event.JobID = job.ID
	if event.Percent == 0 {
		event.Percent = job.Progress
	}
	s.events.Publish(event)
}

// progressFunc forwards scraper search events onto the job's stream. Page
// completion maps onto the job's search progress span; the stream-level
// percent is always the job's own progress, which stays monotone.
func (s *Service) progressFunc(job *models.CrawlJob) models.ProgressFunc {
	return func(event models.ProgressEvent) {
		if event.Type == models.EventSearchPage && event.TotalPages > 0 {
			span := progressSearchTo - progressCrawlFrom
			progress := progressCrawlFrom + span*event.CurrentPage/event.TotalPages
			if err := job.Transition(models.JobStatusCrawling, job.CurrentStep, progress); err == nil {
				s.save(context.Background(), job)
			}
		}
		event.Percent = job.Progress
		s.publish(job, event)
	}
}

// crawlProgressFunc forwards crawl events and maps batch completion onto
// the job's crawl progress span.
func (s *Service) crawlProgressFunc(job *models.CrawlJob) models.ProgressFunc {
	return func(event models.ProgressEvent) {
		if event.Type == models.EventCrawlBatchComplete && event.TotalBatches > 0 {
			span := progressCrawlTo - progressCrawlFrom
			progress := progressCrawlFrom + span*event.Batch/event.TotalBatches
			if err := job.Transition(models.JobStatusCrawling, job.CurrentStep, progress); err == nil {
				s.save(context.Background(), job)
			}
			event.Percent = job.Progress
		}
		s.publish(job, event)
	}
}
