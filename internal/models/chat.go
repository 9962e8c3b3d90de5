package models

import "time"

// Message is one turn of an LLM conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest asks a question strictly within the context of a caller-supplied
// issue id list.
type ChatRequest struct {
	UserID           string  `json:"user_id" validate:"required"`
	Question         string  `json:"question" validate:"required"`
	IssueIDs         []int64 `json:"issue_ids" validate:"required,min=1"`
	ConversationID   string  `json:"conversation_id,omitempty"`
	Language         string  `json:"language,omitempty" validate:"omitempty,oneof=auto ko ja en"`
	Stream           bool    `json:"stream,omitempty"`
	// MaxContextIssues bounds the issue enumeration. nil uses the configured
	// default; an explicit 0 yields an empty enumeration and a declined answer.
	MaxContextIssues *int `json:"max_context_issues,omitempty" validate:"omitempty,min=0,max=50"`
}

// ChatUsage reports approximate token accounting for one exchange.
type ChatUsage struct {
	PromptChars     int `json:"prompt_chars"`
	CompletionChars int `json:"completion_chars"`
	EstimatedTokens int `json:"estimated_tokens"`
}

// ChatResponse is the non-streaming chat result.
type ChatResponse struct {
	ConversationID   string    `json:"conversation_id"`
	MessageID        string    `json:"message_id"`
	Content          string    `json:"content"`
	ReferencedIssues []string  `json:"referenced_issues"`
	Usage            ChatUsage `json:"usage"`
	CreatedAt        time.Time `json:"created_at"`
}

// ChatStreamEventType enumerates streaming chat events.
type ChatStreamEventType string

const (
	ChatEventStart   ChatStreamEventType = "start"
	ChatEventToken   ChatStreamEventType = "token"
	ChatEventSources ChatStreamEventType = "sources"
	ChatEventDone    ChatStreamEventType = "done"
	ChatEventError   ChatStreamEventType = "error"
)

// ChatSource describes one in-scope issue enumerated in a sources event.
type ChatSource struct {
	IssueID int64  `json:"issue_id"`
	IMSID   string `json:"ims_id"`
	Title   string `json:"title"`
}

// ChatStreamEvent is one element of a streaming chat response. The stream is
// start, zero or more token events, a sources event, then a terminal done;
// on failure an error event ends the stream.
type ChatStreamEvent struct {
	Event            ChatStreamEventType `json:"event"`
	ConversationID   string              `json:"conversation_id,omitempty"`
	MessageID        string              `json:"message_id,omitempty"`
	IssueCount       int                 `json:"issue_count,omitempty"`
	Content          string              `json:"content,omitempty"`
	Sources          []ChatSource        `json:"sources,omitempty"`
	ReferencedIssues []string            `json:"referenced_issues,omitempty"`
	Error            string              `json:"error,omitempty"`
}
