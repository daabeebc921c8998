package extract

import (
	"context"
	"fmt"
	"strings"

	"docuquery/internal/service"
)

// Extractor converts raw file bytes into an ordered sequence of text blocks.
// Implementations are format-specific; the rest of the pipeline treats
// extraction as a black box.
type Extractor interface {
	Extract(ctx context.Context, fileBytes []byte) ([]string, error)
}

// Registry dispatches extraction by source format.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the default extractors registered.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register("md", NewMarkdownExtractor())
	r.Register("markdown", NewMarkdownExtractor())
	r.Register("txt", PlainTextExtractor{})
	r.Register("text", PlainTextExtractor{})
	r.Register("csv", PlainTextExtractor{})
	return r
}

// Register adds an extractor for a source format. Formats are matched
// case-insensitively without a leading dot.
func (r *Registry) Register(format string, e Extractor) {
	r.extractors[normalizeFormat(format)] = e
}

// Extract runs the extractor registered for the given format.
// Unknown formats fail with service.ErrParse.
func (r *Registry) Extract(ctx context.Context, fileBytes []byte, format string) ([]string, error) {
	e, ok := r.extractors[normalizeFormat(format)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported source format %q", service.ErrParse, format)
	}
	blocks, err := e.Extract(ctx, fileBytes)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// Supported reports whether a format has a registered extractor.
func (r *Registry) Supported(format string) bool {
	_, ok := r.extractors[normalizeFormat(format)]
	return ok
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

// PlainTextExtractor treats the file as UTF-8 text and splits it into blocks
// on blank lines.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(_ context.Context, fileBytes []byte) ([]string, error) {
	text := string(fileBytes)
	if !strings.Contains(text, "\n\n") {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return []string{}, nil
		}
		return []string{trimmed}, nil
	}

	raw := strings.Split(text, "\n\n")
	blocks := make([]string, 0, len(raw))
	for _, b := range raw {
		trimmed := strings.TrimSpace(b)
		if trimmed == "" {
			continue
		}
		blocks = append(blocks, trimmed)
	}
	return blocks, nil
}
