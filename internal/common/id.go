package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique crawl job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewConversationID generates a unique conversation ID with the "conv_" prefix
func NewConversationID() string {
	return "conv_" + uuid.New().String()
}

// NewMessageID generates a unique chat message ID with the "msg_" prefix
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}
