// Package enrich annotates chunks with extra context before indexing.
package enrich

import (
	"context"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/studygraph/studygraph/rag"
)

// HeadingEnricher tags markdown chunks with the section they belong to. The
// first heading found inside a chunk becomes its "section" metadata and is
// prepended to the content, which helps retrieval for chunks whose body never
// repeats the topic name.
type HeadingEnricher struct{}

// NewHeadingEnricher creates a HeadingEnricher.
func NewHeadingEnricher() *HeadingEnricher {
	return &HeadingEnricher{}
}

// Enrich annotates markdown chunks in place. Non-markdown chunks and chunks
// without headings pass through unchanged.
func (e *HeadingEnricher) Enrich(ctx context.Context, chunks []rag.Document) ([]rag.Document, error) {
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if chunks[i].Metadata["file_type"] != "markdown" {
			continue
		}
		heading := firstHeading(chunks[i].Content)
		if heading == "" {
			continue
		}
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]any{}
		}
		chunks[i].Metadata["section"] = heading
		chunks[i].Content = "Section: " + heading + "\n\n" + chunks[i].Content
	}
	return chunks, nil
}

// firstHeading returns the text of the first heading in the chunk.
func firstHeading(content string) string {
	doc := markdown.Parse([]byte(content), parser.New())

	var heading string
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		h, ok := node.(*ast.Heading)
		if !ok || !entering {
			return ast.GoToNext
		}
		heading = headingText(h)
		if heading != "" {
			return ast.Terminate
		}
		return ast.GoToNext
	})
	return heading
}

func headingText(h *ast.Heading) string {
	var sb strings.Builder
	ast.WalkFunc(h, func(node ast.Node, entering bool) ast.WalkStatus {
		if t, ok := node.(*ast.Text); ok && entering {
			sb.Write(t.Literal)
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(sb.String())
}

var _ rag.Enricher = (*HeadingEnricher)(nil)
