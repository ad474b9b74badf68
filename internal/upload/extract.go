package upload

import (
	"context"
	"os"
	"strings"
)

const truncationNotice = "\n\n[Text truncated after 50,000 words.]"

// Extractor turns stored file bytes into plain text for prompt
// injection. Rich formats (PDF, DOCX, XLSX) are converted by an
// external service before they reach this boundary.
type Extractor interface {
	Extract(ctx context.Context, path, contentType string) (string, error)
}

// TextExtractor reads a file as UTF-8 text and truncates it to a
// maximum word budget.
type TextExtractor struct {
	WordLimit int
}

func NewTextExtractor(wordLimit int) *TextExtractor {
	if wordLimit <= 0 {
		wordLimit = 50000
	}
	return &TextExtractor{WordLimit: wordLimit}
}

func (e *TextExtractor) Extract(ctx context.Context, path, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return TruncateWords(string(b), e.WordLimit), nil
}

// TruncateWords caps text at limit words, appending a marker when
// anything was dropped.
func TruncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if limit <= 0 || len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ") + truncationNotice
}
