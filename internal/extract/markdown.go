package extract

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor extracts text blocks from markdown content using goldmark
// AST parsing. Each heading section becomes one block, with the heading text
// prepended so retrieval keeps the section context.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a new markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

func (e *MarkdownExtractor) Extract(_ context.Context, fileBytes []byte) ([]string, error) {
	if len(fileBytes) == 0 {
		return []string{}, nil
	}

	reader := text.NewReader(fileBytes)
	doc := e.parser.Parser().Parse(reader)

	var blocks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			blocks = append(blocks, s)
		}
		current.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			// A heading starts a new block; keep the heading text in it.
			flush()
			current.WriteString(extractTextFromNode(node, fileBytes))
			current.WriteString("\n")
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			segment := node.Segment
			current.Write(segment.Value(fileBytes))
			return ast.WalkContinue, nil

		case *ast.String:
			current.Write(node.Value)
			return ast.WalkContinue, nil

		case *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				current.Write(line.Value(fileBytes))
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				current.Write(line.Value(fileBytes))
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.List, *ast.ListItem:
			if current.Len() > 0 && !strings.HasSuffix(current.String(), "\n") {
				current.WriteString("\n")
			}
			return ast.WalkContinue, nil

		default:
			// Table rows from the table extension are flattened with pipe
			// separators, matching how cells read in the source.
			kindName := n.Kind().String()
			if strings.Contains(kindName, "TableRow") || strings.Contains(kindName, "TableHeader") {
				if current.Len() > 0 && !strings.HasSuffix(current.String(), "\n") {
					current.WriteString("\n")
				}
				current.WriteString(extractTableRowText(n, fileBytes))
				current.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		}
	})

	flush()
	if blocks == nil {
		blocks = []string{}
	}
	return blocks, nil
}

// extractTextFromNode extracts text content from a node and its children.
func extractTextFromNode(n ast.Node, content []byte) string {
	var textBuilder strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := node.(type) {
		case *ast.Text:
			segment := v.Segment
			textBuilder.Write(segment.Value(content))
		case *ast.String:
			textBuilder.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(textBuilder.String())
}

// extractTableRowText extracts text from a table row, formatting cells with pipe separators.
func extractTableRowText(row ast.Node, content []byte) string {
	var rowBuilder strings.Builder
	cellCount := 0

	_ = ast.Walk(row, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		kindName := node.Kind().String()
		if strings.Contains(kindName, "TableCell") {
			cellText := extractTextFromNode(node, content)
			if cellCount > 0 {
				rowBuilder.WriteString(" | ")
			}
			rowBuilder.WriteString(cellText)
			cellCount++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return rowBuilder.String()
}
