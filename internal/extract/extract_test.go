package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docuquery/internal/service"
)

func TestRegistry_Extract_UnsupportedFormat(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract(context.Background(), []byte("data"), "pdf")
	if !errors.Is(err, service.ErrParse) {
		t.Errorf("Extract() error = %v, want ErrParse", err)
	}
}

func TestRegistry_FormatNormalization(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		format string
		want   bool
	}{
		{format: "md", want: true},
		{format: ".md", want: true},
		{format: "MD", want: true},
		{format: " markdown ", want: true},
		{format: "txt", want: true},
		{format: "csv", want: true},
		{format: "docx", want: false},
		{format: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			if got := r.Supported(tt.format); got != tt.want {
				t.Errorf("Supported(%q) = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestPlainTextExtractor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single block",
			input: "just one paragraph",
			want:  []string{"just one paragraph"},
		},
		{
			name:  "blank line separated",
			input: "first paragraph\n\nsecond paragraph\n\nthird",
			want:  []string{"first paragraph", "second paragraph", "third"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
		{
			name:  "whitespace only",
			input: "   \n\n   ",
			want:  []string{},
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  padded  \n\n  also padded  ",
			want:  []string{"padded", "also padded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlainTextExtractor{}.Extract(context.Background(), []byte(tt.input))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Extract() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("block %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMarkdownExtractor_HeadingSections(t *testing.T) {
	input := `# Title

Intro paragraph.

## Section One

Body of section one.

## Section Two

Body of section two.
`

	blocks, err := NewMarkdownExtractor().Extract(context.Background(), []byte(input))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(blocks) != 3 {
		t.Fatalf("Extract() returned %d blocks, want 3: %v", len(blocks), blocks)
	}

	if !strings.HasPrefix(blocks[0], "Title") {
		t.Errorf("first block should start with the heading, got %q", blocks[0])
	}
	if !strings.Contains(blocks[1], "Section One") || !strings.Contains(blocks[1], "Body of section one.") {
		t.Errorf("second block should contain the heading and its body, got %q", blocks[1])
	}
}

func TestMarkdownExtractor_CodeBlock(t *testing.T) {
	input := "# Code\n\n```go\nfunc main() {}\n```\n"

	blocks, err := NewMarkdownExtractor().Extract(context.Background(), []byte(input))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("Extract() returned %d blocks, want 1", len(blocks))
	}
	if !strings.Contains(blocks[0], "func main() {}") {
		t.Errorf("code block content missing from %q", blocks[0])
	}
}

func TestMarkdownExtractor_Table(t *testing.T) {
	input := `# Data

| Name | Value |
|------|-------|
| a    | 1     |
| b    | 2     |
`

	blocks, err := NewMarkdownExtractor().Extract(context.Background(), []byte(input))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("Extract() returned %d blocks, want 1: %v", len(blocks), blocks)
	}
	if !strings.Contains(blocks[0], "Name | Value") {
		t.Errorf("table header should be pipe-joined, got %q", blocks[0])
	}
	if !strings.Contains(blocks[0], "a | 1") {
		t.Errorf("table row should be pipe-joined, got %q", blocks[0])
	}
}

func TestMarkdownExtractor_Empty(t *testing.T) {
	blocks, err := NewMarkdownExtractor().Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("Extract() = %v, want empty", blocks)
	}
}
