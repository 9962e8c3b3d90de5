package models

import "time"

// ProgressEventType enumerates the progress event taxonomy. Consumers treat
// unknown event types as no-ops.
type ProgressEventType string

const (
	EventJobStarted         ProgressEventType = "job_started"
	EventAuthenticating     ProgressEventType = "authenticating"
	EventAuthenticated      ProgressEventType = "authenticated"
	EventSearching          ProgressEventType = "searching"
	EventSearchStart        ProgressEventType = "search_start"
	EventSearchCount        ProgressEventType = "search_count"
	EventSearchPage         ProgressEventType = "search_page"
	EventSearchComplete     ProgressEventType = "search_complete"
	EventSearchCompleted    ProgressEventType = "search_completed"
	EventCrawlingStarted    ProgressEventType = "crawling_started"
	EventCrawlStart         ProgressEventType = "crawl_start"
	EventCrawlBatchStart    ProgressEventType = "crawl_batch_start"
	EventCrawlBatchComplete ProgressEventType = "crawl_batch_complete"
	EventCrawlComplete      ProgressEventType = "crawl_complete"
	EventCrawlFetchDone     ProgressEventType = "crawl_fetch_completed"
	EventPhaseStarted       ProgressEventType = "phase_started"
	EventSavingProgress     ProgressEventType = "saving_progress"
	EventEmbeddingProgress  ProgressEventType = "embedding_progress"
	EventEmbeddingSaveProg  ProgressEventType = "embedding_save_progress"
	EventEmbeddingFailed    ProgressEventType = "embedding_failed"
	EventIssueSaveFailed    ProgressEventType = "issue_save_failed"
	EventJobCompleted       ProgressEventType = "job_completed"
	EventJobFailed          ProgressEventType = "job_failed"
)

// ProgressEvent is the typed payload emitted on a job's progress stream.
// Fields are typed here and serialized to JSON only at the transport
// boundary; zero-valued fields are omitted on the wire.
type ProgressEvent struct {
	Type      ProgressEventType `json:"event"`
	JobID     string            `json:"job_id"`
	Timestamp time.Time         `json:"timestamp"`

	Step    string `json:"step,omitempty"`
	Percent int    `json:"progress_percent,omitempty"`
	Message string `json:"message,omitempty"`

	// Search fields
	Total        int  `json:"total,omitempty"`
	TotalPages   int  `json:"total_pages,omitempty"`
	CurrentPage  int  `json:"current_page,omitempty"`
	FetchedCount int  `json:"fetched_count,omitempty"`
	Truncated    bool `json:"truncated,omitempty"`

	// Crawl/pipeline batch fields
	Batch        int    `json:"batch,omitempty"`
	TotalBatches int    `json:"total_batches,omitempty"`
	BatchSuccess int    `json:"batch_success,omitempty"`
	BatchFail    int    `json:"batch_fail,omitempty"`
	Processed    int    `json:"processed,omitempty"`
	Phase        string `json:"phase,omitempty"`
	IMSID        string `json:"ims_id,omitempty"`

	IssuesCrawled int `json:"issues_crawled,omitempty"`
}

// ProgressFunc is the callback the scraper and pipeline use to report
// progress without knowing about the event bus.
type ProgressFunc func(event ProgressEvent)
