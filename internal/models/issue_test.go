package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want IssueStatus
	}{
		{"closed english", "Closed", IssueStatusClosed},
		{"closed variant", "CLOSED_P", IssueStatusClosed},
		{"closed korean", "종료", IssueStatusClosed},
		{"resolved", "Resolved", IssueStatusResolved},
		{"resolved korean", "처리완료", IssueStatusResolved},
		{"in progress with space", "In Progress", IssueStatusInProgress},
		{"in progress korean", "진행중", IssueStatusInProgress},
		{"pending", "On Hold", IssueStatusPending},
		{"pending korean", "보류", IssueStatusPending},
		{"rejected", "Won't Fix", IssueStatusRejected},
		{"open", "New", IssueStatusOpen},
		{"open korean", "접수", IssueStatusOpen},
		{"unknown maps to open", "whatever", IssueStatusOpen},
		{"empty maps to open", "", IssueStatusOpen},
		{"whitespace only", "   ", IssueStatusOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.raw))
		})
	}
}

func TestNormalizePriority(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want IssuePriority
	}{
		{"critical", "Critical", IssuePriorityCritical},
		{"urgent", "URGENT", IssuePriorityCritical},
		{"critical korean", "긴급", IssuePriorityCritical},
		{"high", "High", IssuePriorityHigh},
		{"major", "Major", IssuePriorityHigh},
		{"medium", "Normal", IssuePriorityMedium},
		{"low", "Low", IssuePriorityLow},
		{"minor", "Minor", IssuePriorityLow},
		{"trivial", "Trivial", IssuePriorityTrivial},
		// LOWEST contains LOW; the trivial pattern must win.
		{"lowest beats low", "Lowest", IssuePriorityTrivial},
		{"unknown maps to medium", "P99", IssuePriorityMedium},
		{"empty maps to medium", "", IssuePriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePriority(tt.raw))
		})
	}
}

func TestEnsureTitle(t *testing.T) {
	issue := &Issue{IMSID: "123456"}
	issue.EnsureTitle()
	assert.Equal(t, "Issue 123456", issue.Title)

	issue = &Issue{IMSID: "123456", Title: "  "}
	issue.EnsureTitle()
	assert.Equal(t, "Issue 123456", issue.Title)

	issue = &Issue{IMSID: "123456", Title: "DB deadlock"}
	issue.EnsureTitle()
	assert.Equal(t, "DB deadlock", issue.Title)
}

func TestTruncateActionLog(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "short", TruncateActionLog("short"))
	})

	t.Run("ascii cut at cap", func(t *testing.T) {
		long := strings.Repeat("a", ActionLogMaxBytes+500)
		got := TruncateActionLog(long)
		assert.Len(t, got, ActionLogMaxBytes)
	})

	t.Run("multibyte cut stays valid utf8", func(t *testing.T) {
		// 3 bytes per rune; the cap lands mid-rune.
		long := strings.Repeat("한", ActionLogMaxBytes/3+100)
		got := TruncateActionLog(long)
		require.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), ActionLogMaxBytes)
		assert.Greater(t, len(got), ActionLogMaxBytes-utf8.UTFMax)
	})
}

func TestEmbeddingText(t *testing.T) {
	issue := &Issue{Title: "Title", Description: "Body"}
	assert.Equal(t, "Title Body", issue.EmbeddingText(nil))
	assert.Equal(t, "Title Body pdf text", issue.EmbeddingText([]string{"pdf text"}))

	empty := &Issue{}
	assert.Equal(t, "", empty.EmbeddingText(nil))
}

func TestScoreSideChannel(t *testing.T) {
	issue := &Issue{}

	_, ok := issue.Score("hybrid_score")
	assert.False(t, ok)

	issue.SetScore("hybrid_score", 0.42)
	got, ok := issue.Score("hybrid_score")
	require.True(t, ok)
	assert.InDelta(t, 0.42, got, 1e-9)
}
