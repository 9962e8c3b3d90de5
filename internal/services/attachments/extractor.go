package attachments

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/ternarybob/arbor"
)

// maxExtractBytes caps how much attachment text feeds the embedding text.
const maxExtractBytes = 20000

// Extractor implements AttachmentExtractor for PDF and plain-text
// attachments. Other formats are skipped, not errors.
type Extractor struct {
	logger arbor.ILogger
}

// NewExtractor creates a new attachment extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

// ExtractText downloads the attachment through fetch and returns its text.
// Unsupported formats return "" with no error.
func (e *Extractor) ExtractText(ctx context.Context, url, filename string, fetch func(ctx context.Context, url string) ([]byte, error)) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".pdf", ".txt", ".log", ".md", ".csv":
	default:
		return "", nil
	}

	data, err := fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to download attachment %s: %w", filename, err)
	}

	var text string
	if ext == ".pdf" {
		text, err = extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from %s: %w", filename, err)
		}
	} else {
		if !utf8.Valid(data) {
			return "", nil
		}
		text = string(data)
	}

	text = strings.TrimSpace(text)
	if len(text) > maxExtractBytes {
		cut := maxExtractBytes
		for cut > 0 && (text[cut]&0xC0) == 0x80 {
			cut--
		}
		text = text[:cut]
	}

	e.logger.Debug().
		Str("filename", filename).
		Int("bytes", len(text)).
		Msg("Attachment text extracted")

	return text, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}
