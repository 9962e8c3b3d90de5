package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionProgress(t *testing.T) {
	job := &CrawlJob{Status: JobStatusPending}

	require.NoError(t, job.Transition(JobStatusAuthenticating, "Authenticating", 5))
	assert.Equal(t, 5, job.Progress)
	assert.NotNil(t, job.StartedAt)

	require.NoError(t, job.Transition(JobStatusCrawling, "Crawling", 40))
	assert.Equal(t, 40, job.Progress)

	// Progress never moves backwards.
	require.NoError(t, job.Transition(JobStatusCrawling, "Crawling", 20))
	assert.Equal(t, 40, job.Progress)

	// Over 100 is rejected outright.
	assert.Error(t, job.Transition(JobStatusCrawling, "Crawling", 101))
	assert.Equal(t, 40, job.Progress)
}

func TestTransitionCompleted(t *testing.T) {
	job := &CrawlJob{Status: JobStatusPending}
	require.NoError(t, job.Transition(JobStatusCompleted, "Completed", 90))

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.NotNil(t, job.CompletedAt)
	assert.True(t, job.IsTerminal())
}

func TestTerminalStateSticky(t *testing.T) {
	job := &CrawlJob{Status: JobStatusPending}
	job.Fail("search failed")

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "search failed", job.Error)
	assert.NotNil(t, job.CompletedAt)

	// Later transitions against a terminal job are no-ops.
	require.NoError(t, job.Transition(JobStatusCrawling, "Crawling", 50))
	assert.Equal(t, JobStatusFailed, job.Status)

	job.Fail("second failure")
	assert.Equal(t, "search failed", job.Error)
}

func TestCanRetry(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		retry  int
		want   bool
	}{
		{"failed under limit", JobStatusFailed, 0, true},
		{"failed at limit", JobStatusFailed, MaxJobRetries, false},
		{"completed never retries", JobStatusCompleted, 0, false},
		{"pending never retries", JobStatusPending, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &CrawlJob{Status: tt.status, RetryCount: tt.retry}
			assert.Equal(t, tt.want, job.CanRetry())
		})
	}
}
