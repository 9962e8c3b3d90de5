package models

import (
	"fmt"
	"strings"
	"time"
)

// IssueStatus is the normalized lifecycle state of an IMS issue.
// The verbatim IMS string is preserved separately in Issue.RawStatus.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusClosed     IssueStatus = "closed"
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusRejected   IssueStatus = "rejected"
)

// IssuePriority is the normalized priority of an IMS issue.
type IssuePriority string

const (
	IssuePriorityCritical IssuePriority = "critical"
	IssuePriorityHigh     IssuePriority = "high"
	IssuePriorityMedium   IssuePriority = "medium"
	IssuePriorityLow      IssuePriority = "low"
	IssuePriorityTrivial  IssuePriority = "trivial"
)

// RelationKind is the directed edge type between two persisted issues.
type RelationKind string

const (
	RelationRelatesTo  RelationKind = "relates_to"
	RelationBlocks     RelationKind = "blocks"
	RelationDuplicates RelationKind = "duplicates"
)

// ActionLogMaxBytes caps the concatenated action-log text stored per issue.
const ActionLogMaxBytes = 10000

// Issue is the canonical crawled record. Created by the scraper, upserted
// by the store keyed on (user_id, ims_id), never mutated outside ingestion.
type Issue struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	IMSID       string `json:"ims_id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	Status      IssueStatus   `json:"status"`
	Priority    IssuePriority `json:"priority"`
	RawStatus   string        `json:"raw_status"`   // verbatim IMS string, for display
	RawPriority string        `json:"raw_priority"` // verbatim IMS string, for display

	Category string `json:"category"`
	Product  string `json:"product"`
	Version  string `json:"version"`
	Module   string `json:"module"`
	Customer string `json:"customer"`

	IssuedDate string `json:"issued_date"`
	Reporter   string `json:"reporter"`
	Assignee   string `json:"assignee"`
	ProjectKey string `json:"project_key"`
	IssueType  string `json:"issue_type"`

	Labels          []string `json:"labels"`
	CommentCount    int      `json:"comment_count"`
	AttachmentCount int      `json:"attachment_count"`

	IssueDetails string `json:"issue_details"` // detail page body
	ActionLog    string `json:"action_log"`    // concatenated action-log text, capped

	// AttachmentURLs are session-relative download links discovered on the
	// detail page. Transient; only the extracted text is persisted.
	AttachmentURLs []string `json:"-"`

	RelatedIMSIDs []string  `json:"related_ims_ids,omitempty"`
	SourceURL     string    `json:"source_url"`
	CrawledAt     time.Time `json:"crawled_at"`

	// CustomFields is a JSON side-channel: similarity_score and hybrid_score
	// are attached here by the retrieval paths and never persisted back.
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
}

// EnsureTitle synthesizes a display title when IMS provides none.
func (i *Issue) EnsureTitle() {
	if strings.TrimSpace(i.Title) == "" {
		i.Title = fmt.Sprintf("Issue %s", i.IMSID)
	}
}

// SetScore attaches a retrieval score to the custom-fields side channel.
func (i *Issue) SetScore(key string, value float64) {
	if i.CustomFields == nil {
		i.CustomFields = make(map[string]interface{})
	}
	i.CustomFields[key] = value
}

// Score reads a retrieval score from the custom-fields side channel.
func (i *Issue) Score(key string) (float64, bool) {
	if i.CustomFields == nil {
		return 0, false
	}
	v, ok := i.CustomFields[key].(float64)
	return v, ok
}

// EmbeddingText is the text snapshot submitted to the embedding model:
// title, description, and any extracted attachment text.
func (i *Issue) EmbeddingText(attachmentTexts []string) string {
	parts := []string{i.Title, i.Description}
	parts = append(parts, attachmentTexts...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// statusPatterns maps case-insensitive substrings of raw IMS status strings
// to the normalized enum. Earlier entries win.
var statusPatterns = []struct {
	substrings []string
	status     IssueStatus
}{
	{[]string{"CLOSED", "CLOSED_P", "종료"}, IssueStatusClosed},
	{[]string{"RESOLVED", "FIXED", "COMPLETE", "완료", "해결"}, IssueStatusResolved},
	{[]string{"IN PROGRESS", "IN_PROGRESS", "PROGRESS", "WORKING", "진행"}, IssueStatusInProgress},
	{[]string{"PENDING", "HOLD", "WAIT", "보류", "대기"}, IssueStatusPending},
	{[]string{"REJECT", "DENIED", "WON'T", "WONT", "반려"}, IssueStatusRejected},
	{[]string{"OPEN", "NEW", "CREATED", "접수"}, IssueStatusOpen},
}

// NormalizeStatus derives the status enum from a raw IMS string via
// case-insensitive substring matching. Unknown strings map to open.
func NormalizeStatus(raw string) IssueStatus {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return IssueStatusOpen
	}
	for _, p := range statusPatterns {
		for _, sub := range p.substrings {
			if strings.Contains(upper, sub) {
				return p.status
			}
		}
	}
	return IssueStatusOpen
}

var priorityPatterns = []struct {
	substrings []string
	priority   IssuePriority
}{
	{[]string{"CRITICAL", "URGENT", "VERY HIGH", "BLOCKER", "긴급"}, IssuePriorityCritical},
	{[]string{"TRIVIAL", "LOWEST", "사소"}, IssuePriorityTrivial},
	{[]string{"HIGH", "MAJOR", "높음"}, IssuePriorityHigh},
	{[]string{"LOW", "MINOR", "낮음"}, IssuePriorityLow},
	{[]string{"MEDIUM", "NORMAL", "보통"}, IssuePriorityMedium},
}

// NormalizePriority derives the priority enum from a raw IMS string.
// Unknown strings map to medium.
func NormalizePriority(raw string) IssuePriority {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return IssuePriorityMedium
	}
	for _, p := range priorityPatterns {
		for _, sub := range p.substrings {
			if strings.Contains(upper, sub) {
				return p.priority
			}
		}
	}
	return IssuePriorityMedium
}

// TruncateActionLog enforces the storage cap on concatenated action-log text.
func TruncateActionLog(text string) string {
	if len(text) <= ActionLogMaxBytes {
		return text
	}
	// Cut on a rune boundary so multi-byte CJK text stays valid UTF-8.
	cut := ActionLogMaxBytes
	for cut > 0 && (text[cut]&0xC0) == 0x80 {
		cut--
	}
	return text[:cut]
}
