package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// JobStorage persists crawl jobs.
type JobStorage struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

const jobColumns = `id, user_id, raw_query, parsed_query, intent, status,
	current_step, progress, issues_found, issues_crawled,
	attachments_processed, related_crawled, created_at, started_at,
	completed_at, error, retry_count, config, result_issue_ids`

// SaveJob upserts the job row.
func (s *JobStorage) SaveJob(ctx context.Context, job *models.CrawlJob) error {
	config, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal job config: %w", err)
	}

	resultIDs := job.ResultIssueIDs
	if resultIDs == nil {
		resultIDs = []int64{}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ims_crawl_jobs (
			id, user_id, raw_query, parsed_query, intent, status,
			current_step, progress, issues_found, issues_crawled,
			attachments_processed, related_crawled, created_at, started_at,
			completed_at, error, retry_count, config, result_issue_ids
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
		)
		ON CONFLICT (id) DO UPDATE SET
			parsed_query = EXCLUDED.parsed_query,
			intent = EXCLUDED.intent,
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			progress = EXCLUDED.progress,
			issues_found = EXCLUDED.issues_found,
			issues_crawled = EXCLUDED.issues_crawled,
			attachments_processed = EXCLUDED.attachments_processed,
			related_crawled = EXCLUDED.related_crawled,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error,
			retry_count = EXCLUDED.retry_count,
			result_issue_ids = EXCLUDED.result_issue_ids`,
		job.ID, job.UserID, job.RawQuery, job.ParsedQuery, job.Intent,
		string(job.Status), job.CurrentStep, job.Progress, job.IssuesFound,
		job.IssuesCrawled, job.AttachmentsProcessed, job.RelatedCrawled,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.Error,
		job.RetryCount, config, resultIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns one job, or nil when absent.
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ims_crawl_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// FindRecentCompleted returns the newest completed job for the same user and
// raw query created after the cutoff, or nil.
func (s *JobStorage) FindRecentCompleted(ctx context.Context, userID, rawQuery string, since time.Time) (*models.CrawlJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ims_crawl_jobs
		 WHERE user_id = $1 AND raw_query = $2 AND status = 'completed' AND created_at > $3
		 ORDER BY created_at DESC
		 LIMIT 1`, userID, rawQuery, since)
	job, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// DeleteExpired removes terminal jobs completed before the cutoff.
func (s *JobStorage) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM ims_crawl_jobs
		WHERE status IN ('completed','failed','cancelled') AND completed_at < $1`,
		before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetJobStats returns per-status counts for the user's jobs.
func (s *JobStorage) GetJobStats(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM ims_crawl_jobs WHERE user_id = $1 GROUP BY status`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanJob(row rowScanner) (*models.CrawlJob, error) {
	job := &models.CrawlJob{}
	var status string
	var config []byte
	err := row.Scan(
		&job.ID, &job.UserID, &job.RawQuery, &job.ParsedQuery, &job.Intent,
		&status, &job.CurrentStep, &job.Progress, &job.IssuesFound,
		&job.IssuesCrawled, &job.AttachmentsProcessed, &job.RelatedCrawled,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.Error,
		&job.RetryCount, &config, &job.ResultIssueIDs,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if len(config) > 0 {
		if err := json.Unmarshal(config, &job.Config); err != nil {
			return nil, fmt.Errorf("corrupt config for job %s: %w", job.ID, err)
		}
	}
	return job, nil
}
