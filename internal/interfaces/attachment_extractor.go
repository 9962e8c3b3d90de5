package interfaces

import "context"

// AttachmentExtractor pulls searchable text out of issue attachments.
type AttachmentExtractor interface {
	// ExtractText downloads the attachment at url through the given fetch
	// func and returns its text, or "" for unsupported formats.
	ExtractText(ctx context.Context, url, filename string, fetch func(ctx context.Context, url string) ([]byte, error)) (string, error)
}
