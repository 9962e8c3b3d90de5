package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a crawl job.
type JobStatus string

const (
	JobStatusPending               JobStatus = "pending"
	JobStatusAuthenticating        JobStatus = "authenticating"
	JobStatusParsing               JobStatus = "parsing"
	JobStatusCrawling              JobStatus = "crawling"
	JobStatusProcessingAttachments JobStatus = "processing_attachments"
	JobStatusEmbedding             JobStatus = "embedding"
	JobStatusCompleted             JobStatus = "completed"
	JobStatusFailed                JobStatus = "failed"
	JobStatusCancelled             JobStatus = "cancelled"
)

// MaxJobRetries bounds how many times an operator may resubmit a failed job.
const MaxJobRetries = 3

// CancelledByUserMessage is the terminal error recorded on operator cancel.
const CancelledByUserMessage = "Cancelled by user"

// JobConfig is the crawl configuration snapshot taken at job creation time.
type JobConfig struct {
	IncludeAttachments bool     `json:"include_attachments"`
	IncludeRelated     bool     `json:"include_related"`
	MaxIssues          int      `json:"max_issues"`
	ProductCodes       []string `json:"product_codes,omitempty"`
}

// CrawlJob is the unit of orchestration. It is created on submit, mutated by
// the orchestrator through Transition, and persisted on every transition.
type CrawlJob struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	RawQuery    string    `json:"raw_query"`
	ParsedQuery string    `json:"parsed_query,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Status      JobStatus `json:"status"`
	CurrentStep string    `json:"current_step,omitempty"`
	Progress    int       `json:"progress_percentage"` // 0-100, monotone within one execution

	IssuesFound          int `json:"issues_found"`
	IssuesCrawled        int `json:"issues_crawled"`
	AttachmentsProcessed int `json:"attachments_processed"`
	RelatedCrawled       int `json:"related_crawled"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`

	Config JobConfig `json:"config"`

	// ResultIssueIDs preserve phase-1 persistence order: non-deterministic
	// within a parallel batch, monotone across batches (descending ims_id).
	ResultIssueIDs []int64 `json:"result_issue_ids"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *CrawlJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanRetry reports whether an operator may resubmit this job.
func (j *CrawlJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < MaxJobRetries
}

// Transition moves the job to a new state, recording the display step and
// progress percentage. Progress is clamped monotone non-decreasing; writes
// against an already-terminal job are no-ops so terminal states stay sticky.
func (j *CrawlJob) Transition(status JobStatus, step string, progress int) error {
	if j.IsTerminal() {
		return nil
	}
	if progress > 100 {
		return fmt.Errorf("progress %d exceeds 100", progress)
	}
	if progress < j.Progress {
		progress = j.Progress
	}

	now := time.Now().UTC()
	if j.StartedAt == nil && status != JobStatusPending {
		j.StartedAt = &now
	}

	j.Status = status
	j.CurrentStep = step
	j.Progress = progress

	switch status {
	case JobStatusCompleted:
		j.Progress = 100
		j.CompletedAt = &now
	case JobStatusFailed, JobStatusCancelled:
		j.CompletedAt = &now
	}
	return nil
}

// Fail transitions the job to failed with a descriptive message.
func (j *CrawlJob) Fail(message string) {
	if j.IsTerminal() {
		return
	}
	j.Error = message
	_ = j.Transition(JobStatusFailed, message, j.Progress)
}
